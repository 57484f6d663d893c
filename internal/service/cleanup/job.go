// Package cleanup reclaims abandoned orders: their lines go back into the
// buyer's cart and the order is deleted.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pawmarket/internal/domain"
	"pawmarket/internal/events"
	"pawmarket/internal/logging"
	"pawmarket/internal/metrics"
	"pawmarket/internal/service/restore"
)

const (
	DefaultOlderThan  = 10 * time.Minute
	DefaultMaxDeletes = 100
	DefaultPageSize   = 50
)

type orderRepo interface {
	ListUnsuccessful(ctx context.Context, afterID string, limit int) ([]domain.Order, error)
	DeleteAbandoned(ctx context.Context, orderID string) (bool, error)
}

type restorer interface {
	RestoreToCart(ctx context.Context, order, buyer domain.Ref) (restore.Result, error)
}

type Options struct {
	OlderThan  time.Duration
	MaxDeletes int
	PageSize   int
}

// Report counts what one run did with each order it looked at.
type Report struct {
	Scanned           int `json:"scanned"`
	Deleted           int `json:"deleted"`
	SkippedPaid       int `json:"skippedPaid"`
	SkippedCash       int `json:"skippedCash"`
	SkippedFresh      int `json:"skippedFresh"`
	SkippedUnresolved int `json:"skippedUnresolved"`
	RestoreFailed     int `json:"restoreFailed"`
	DeleteFailed      int `json:"deleteFailed"`
}

type Job struct {
	orders    orderRepo
	restorer  restorer
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func New(orders orderRepo, r restorer, publisher events.Publisher, m *metrics.Metrics, logger *zap.Logger, opts Options) *Job {
	if opts.OlderThan <= 0 {
		opts.OlderThan = DefaultOlderThan
	}
	if opts.MaxDeletes <= 0 {
		opts.MaxDeletes = DefaultMaxDeletes
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Job{
		orders:    orders,
		restorer:  r,
		publisher: publisher,
		metrics:   m,
		logger:    logging.OrNop(logger),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps unsuccessful orders in id order. An order is deleted only after
// its lines were restored to the buyer's cart; orders that are paid, cash on
// delivery, updated after the cutoff or without a resolvable buyer are left
// alone. The sweep stops after MaxDeletes deletions or at the last page.
func (j *Job) Run(ctx context.Context) (Report, error) {
	started := j.now()
	cutoff := started.Add(-j.opts.OlderThan)
	log := j.logger.With(zap.Time("cutoff", cutoff), zap.Int("max_deletes", j.opts.MaxDeletes))

	var rep Report
	afterID := ""
	for rep.Deleted < j.opts.MaxDeletes {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		page, err := j.orders.ListUnsuccessful(ctx, afterID, j.opts.PageSize)
		if err != nil {
			return rep, fmt.Errorf("list orders after %q: %w", afterID, err)
		}
		for _, o := range page {
			if rep.Deleted >= j.opts.MaxDeletes {
				break
			}
			rep.Scanned++
			j.reclaim(ctx, log, o, cutoff, &rep)
		}
		if len(page) < j.opts.PageSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	j.record(rep)
	j.metrics.CleanupRun(started)
	log.Info("cleanup: run finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("deleted", rep.Deleted),
		zap.Int("restore_failed", rep.RestoreFailed),
		zap.Int("delete_failed", rep.DeleteFailed),
		zap.Duration("took", j.now().Sub(started)))
	return rep, nil
}

func (j *Job) reclaim(ctx context.Context, log *zap.Logger, o domain.Order, cutoff time.Time, rep *Report) {
	log = log.With(zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
	switch {
	case o.Status == domain.StatusPaid || o.Success:
		rep.SkippedPaid++
		return
	case o.Status == domain.StatusCODPending:
		rep.SkippedCash++
		return
	case o.UpdatedAt.After(cutoff):
		rep.SkippedFresh++
		return
	}

	orderRef := domain.NewRef(domain.CollectionOrders, o.ID)
	buyerRef := domain.ParseRef(domain.CollectionUsers, o.BuyerID)
	if buyerRef.IsZero() {
		log.Warn("cleanup: buyer unresolved, order kept")
		rep.SkippedUnresolved++
		return
	}

	res, err := j.restorer.RestoreToCart(ctx, orderRef, buyerRef)
	if err != nil {
		var mismatch *domain.SupplierMismatchError
		switch {
		case errors.Is(err, restore.ErrOrderPaid), errors.Is(err, domain.ErrNotFound):
			// Paid or removed after the listing.
			log.Info("cleanup: order settled before restore, skipped", zap.Error(err))
			rep.SkippedPaid++
			return
		case errors.As(err, &mismatch):
			log.Warn("cleanup: buyer cart holds another supplier, order kept",
				zap.String("active_supplier_id", mismatch.ActiveSupplierID))
		default:
			log.Error("cleanup: restore failed, order kept", zap.Error(err))
		}
		rep.RestoreFailed++
		return
	}

	deleted, err := j.orders.DeleteAbandoned(ctx, o.ID)
	if err != nil {
		log.Error("cleanup: delete failed", zap.Error(err))
		rep.DeleteFailed++
		return
	}
	if !deleted {
		// Paid or removed between the listing and the delete.
		rep.SkippedPaid++
		return
	}
	rep.Deleted++
	log.Info("cleanup: order reclaimed",
		zap.String("buyer_id", o.BuyerID),
		zap.Int("restored_item_count", res.RestoredItemCount),
		zap.Strings("skipped_products", res.SkippedProducts))
	events.Emit(ctx, j.publisher, log, events.FromOrder(events.OrderReclaimed, o))
}

func (j *Job) record(rep Report) {
	j.metrics.CleanupOrders("deleted", rep.Deleted)
	j.metrics.CleanupOrders("skipped_paid", rep.SkippedPaid)
	j.metrics.CleanupOrders("skipped_cash", rep.SkippedCash)
	j.metrics.CleanupOrders("skipped_fresh", rep.SkippedFresh)
	j.metrics.CleanupOrders("skipped_unresolved", rep.SkippedUnresolved)
	j.metrics.CleanupOrders("restore_failed", rep.RestoreFailed)
	j.metrics.CleanupOrders("delete_failed", rep.DeleteFailed)
}
