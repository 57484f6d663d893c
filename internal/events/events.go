// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type Type string

const (
	OrderPlaced        Type = "order.placed"
	OrderPaid          Type = "order.paid"
	OrderPaymentFailed Type = "order.payment_failed"
	OrderReclaimed     Type = "order.reclaimed"
)

type Event struct {
	Type          Type                 `json:"type"`
	OrderID       string               `json:"orderId"`
	OrderNumber   int64                `json:"orderNumber,omitempty"`
	BuyerID       string               `json:"buyerId"`
	SupplierID    string               `json:"supplierId,omitempty"`
	Status        domain.OrderStatus   `json:"status,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod,omitempty"`
	TotalCents    int64                `json:"totalCents"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// FromOrder builds an event of type t describing o.
func FromOrder(t Type, o domain.Order) Event {
	return Event{
		Type:          t,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		BuyerID:       o.BuyerID,
		SupplierID:    o.SupplierID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		TotalCents:    o.TotalPriceCents,
		OccurredAt:    time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON keyed by order id so all events of
// one order land on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	logger = logging.OrNop(logger)
	logger.Info("kafka publisher initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish event", zap.String("type", string(e.Type)), zap.String("order_id", e.OrderID), zap.Error(err))
		return err
	}
	p.logger.Debug("event published", zap.String("type", string(e.Type)), zap.String("order_id", e.OrderID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Emit publishes e and logs a failure instead of returning it. Order state is
// already committed when events go out.
func Emit(ctx context.Context, pub Publisher, logger *zap.Logger, e Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		logging.OrNop(logger).Warn("event not published", zap.String("type", string(e.Type)), zap.String("order_id", e.OrderID), zap.Error(err))
	}
}
