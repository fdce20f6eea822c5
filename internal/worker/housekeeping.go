package worker

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
	"order-pipeline/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// PaymentResolver is the callback-equivalent reconciliation entry point.
type PaymentResolver interface {
	Resolve(ctx context.Context, token, conversationID, orderID string) (*service.CallbackOutcome, error)
}

// Housekeeper sweeps stale pending orders. Orders that never reached the
// gateway are cancelled after a long grace; orders holding a payment token get
// one reconciliation attempt after a shorter grace and are failed if the
// gateway still reports nothing definite.
type Housekeeper struct {
	orders   repository.OrderRepo
	callback PaymentResolver
	cfg      config.Housekeeper
	now      func() time.Time
}

func NewHousekeeper(orders repository.OrderRepo, callback PaymentResolver, cfg config.Housekeeper) *Housekeeper {
	return &Housekeeper{orders: orders, callback: callback, cfg: cfg, now: time.Now}
}

// Run ticks until the context ends. One sweep per tick; a sweep error is
// logged and the next tick retries.
func (h *Housekeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	logger.Info().Dur("interval", h.cfg.Interval).Msg("housekeeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("housekeeper stopped")
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep runs both passes once.
func (h *Housekeeper) Sweep(ctx context.Context) {
	h.cancelAbandoned(ctx)
	h.reconcileStale(ctx)
}

// cancelAbandoned cancels pending orders that never obtained a payment token.
// Without a token there is no payment to reconcile, so cancellation is safe.
func (h *Housekeeper) cancelAbandoned(ctx context.Context) {
	cutoff := h.now().Add(-h.cfg.NoTokenGrace)
	orders, err := h.orders.FindStalePending(ctx, cutoff, false, h.cfg.BatchLimit)
	if err != nil {
		logger.Error().Err(err).Msg("stale order scan failed")
		return
	}
	for _, o := range orders {
		cancelled, err := h.orders.UpdateStatusIf(ctx, o.ID, entity.OrderPending, entity.OrderCancelled, nil)
		if err != nil {
			logger.Error().Err(err).Str("order_id", o.ID).Msg("stale order cancel failed")
			continue
		}
		if cancelled {
			logger.Info().Str("order_id", o.ID).Msg("abandoned order cancelled")
		}
	}
}

// reconcileStale gives token-holding pending orders one callback-equivalent
// reconciliation. A definite success flips them paid with full side effects; a
// still-indefinite outcome fails them so stock is never held hostage.
func (h *Housekeeper) reconcileStale(ctx context.Context) {
	cutoff := h.now().Add(-h.cfg.TokenGrace)
	orders, err := h.orders.FindStalePending(ctx, cutoff, true, h.cfg.BatchLimit)
	if err != nil {
		logger.Error().Err(err).Msg("stale order scan failed")
		return
	}
	for _, o := range orders {
		outcome, err := h.callback.Resolve(ctx, o.PaymentToken, o.ConversationID, o.ID)
		if err != nil {
			logger.Error().Err(err).Str("order_id", o.ID).Msg("stale order reconcile failed")
			continue
		}
		if outcome.Status == "success" {
			logger.Info().Str("order_id", o.ID).Msg("stale order reconciled as paid")
			continue
		}
		if outcome.Status == "pending" {
			failed, err := h.orders.UpdateStatusIf(ctx, o.ID, entity.OrderPending, entity.OrderFailed, nil)
			if err != nil {
				logger.Error().Err(err).Str("order_id", o.ID).Msg("stale order fail-out failed")
				continue
			}
			if failed {
				logger.Info().Str("order_id", o.ID).Msg("stale order failed after grace window")
			}
		}
	}
}
