// Package gateway talks to the card payment gateway: it creates payment
// intentions and verifies the callbacks the gateway sends back.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/logging"
)

type Config struct {
	BaseURL        string
	SecretKey      string
	PublicKey      string
	IntegrationIDs []int
	Timeout        time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, logger: logging.OrNop(logger)}
}

type IntentionItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount"`
	Quantity    int    `json:"quantity"`
}

type BillingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Street      string `json:"street"`
	City        string `json:"city"`
	Country     string `json:"country"`
}

type IntentionRequest struct {
	AmountCents     int64
	Currency        string
	MerchantOrderID string
	Items           []IntentionItem
	Billing         BillingData
	NotificationURL string
	RedirectionURL  string
}

type Intention struct {
	ID             string
	ClientSecret   string
	GatewayOrderID string
}

type intentionBody struct {
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethods   []int           `json:"payment_methods"`
	Items            []IntentionItem `json:"items"`
	BillingData      BillingData     `json:"billing_data"`
	SpecialReference string          `json:"special_reference"`
	NotificationURL  string          `json:"notification_url"`
	RedirectionURL   string          `json:"redirection_url,omitempty"`
}

type intentionResponse struct {
	ID               string      `json:"id"`
	ClientSecret     string      `json:"client_secret"`
	IntentionOrderID json.Number `json:"intention_order_id"`
}

// CreateIntention registers a payment for the order with the gateway.
func (c *Client) CreateIntention(ctx context.Context, in IntentionRequest) (*Intention, error) {
	if c.cfg.SecretKey == "" || c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: gateway not configured", domain.ErrGatewayUnavailable)
	}
	payload, err := json.Marshal(intentionBody{
		Amount:           in.AmountCents,
		Currency:         in.Currency,
		PaymentMethods:   c.cfg.IntegrationIDs,
		Items:            in.Items,
		BillingData:      in.Billing,
		SpecialReference: in.MerchantOrderID,
		NotificationURL:  in.NotificationURL,
		RedirectionURL:   in.RedirectionURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/intention/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("gateway: create intention", zap.String("order_id", in.MerchantOrderID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("gateway: intention rejected",
			zap.String("order_id", in.MerchantOrderID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var out intentionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, fmt.Errorf("%w: incomplete intention response", domain.ErrGatewayUnavailable)
	}
	c.logger.Info("gateway: intention created", zap.String("order_id", in.MerchantOrderID), zap.String("intention_id", out.ID))
	return &Intention{ID: out.ID, ClientSecret: out.ClientSecret, GatewayOrderID: out.IntentionOrderID.String()}, nil
}

// CheckoutURL is the hosted checkout page for an intention.
func (c *Client) CheckoutURL(clientSecret string) string {
	q := url.Values{}
	q.Set("publicKey", c.cfg.PublicKey)
	q.Set("clientSecret", clientSecret)
	return c.cfg.BaseURL + "/unifiedcheckout/?" + q.Encode()
}

func (c *Client) PublicKey() string {
	return c.cfg.PublicKey
}
