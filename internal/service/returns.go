package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
)

// ReturnsService applies carrier webhooks to reverse-logistics records, under
// the same monotonic-rank and dedup rules as outbound shipping.
type ReturnsService struct {
	orders   repository.OrderRepo
	returns  repository.ReturnRepo
	events   repository.WebhookEventRepo
	cfg      config.Webhooks
	notifier *Notifier
	now      func() time.Time
}

func NewReturnsService(orders repository.OrderRepo, returns repository.ReturnRepo, events repository.WebhookEventRepo, cfg config.Webhooks, notifier *Notifier) *ReturnsService {
	return &ReturnsService{orders: orders, returns: returns, events: events, cfg: cfg, notifier: notifier, now: time.Now}
}

func (s *ReturnsService) Process(ctx context.Context, d WebhookDelivery) (outcome *WebhookOutcome, err error) {
	now := s.now()
	if !verifyDelivery(d, s.cfg.ReturnsSecret, s.cfg.ReturnsToken, s.cfg.ReplayWindow, now) {
		return nil, ErrUnauthorized
	}
	ev, err := normalizeShipment(d.Body)
	if err != nil {
		return nil, &ValidationError{Code: "MALFORMED_PAYLOAD", Message: err.Error()}
	}

	eventID := d.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	dup, err := s.events.Claim(ctx, "returns", eventID)
	if err != nil {
		return nil, err
	}
	if dup {
		return &WebhookOutcome{OK: true, Duplicate: true}, nil
	}

	journal := entity.WebhookEvent{
		EventID:    eventID,
		Source:     "returns",
		Carrier:    ev.Carrier,
		StatusRaw:  ev.Status,
		BodyHash:   bodyHash(d.Body),
		ReceivedAt: now,
	}
	defer func() {
		if err != nil {
			// Failed claims are released so the carrier's retry can reapply.
			if rerr := s.events.Release(ctx, "returns", eventID); rerr != nil {
				logger.Error().Err(rerr).Str("event_id", eventID).Msg("webhook claim release failed")
			}
			return
		}
		journal.ProcessedAt = s.now()
		if jerr := s.events.Journal(ctx, journal); jerr != nil {
			logger.Error().Err(jerr).Str("event_id", eventID).Msg("webhook journal failed")
		}
	}()

	ret, err := s.findReturn(ctx, ev)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, ErrNotFound
	}
	journal.ReturnID = ret.ID
	journal.OrderID = ret.OrderID

	mapped, known := returnsVocab[ev.Status]
	if known {
		journal.StatusMapped = string(mapped)
	}

	outcome = &WebhookOutcome{OK: true, ID: ret.ID, Return: ret.Status}
	if !known || mapped.Rank() <= ret.Status.Rank() {
		outcome.Unchanged = true
		return outcome, nil
	}

	var receivedAt *time.Time
	if mapped == entity.ReturnReceived {
		receivedAt = &now
	}
	advanced, err := s.returns.UpdateStatusIf(ctx, ret.ID, ret.Status, mapped, receivedAt)
	if err != nil {
		return nil, err
	}
	if !advanced {
		outcome.Unchanged = true
		return outcome, nil
	}

	ret.Status = mapped
	outcome.Return = mapped
	if order, oerr := s.orders.FindByID(ctx, ret.OrderID); oerr == nil && order != nil {
		s.notifier.ReturnStatus(ctx, order, ret)
	}
	return outcome, nil
}

func (s *ReturnsService) findReturn(ctx context.Context, ev *entity.ShipmentEvent) (*entity.Return, error) {
	if ev.ReturnID != "" {
		ret, err := s.returns.FindByID(ctx, ev.ReturnID)
		if err != nil || ret != nil {
			return ret, err
		}
	}
	if ev.OrderID != "" {
		return s.returns.LatestByOrder(ctx, ev.OrderID)
	}
	return nil, nil
}
