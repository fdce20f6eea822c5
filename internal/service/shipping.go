package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
)

// WebhookOutcome reports how one carrier delivery landed. Duplicate and
// Unchanged are both acked with 200 upstream so the carrier stops retrying.
type WebhookOutcome struct {
	OK        bool                `json:"ok"`
	ID        string              `json:"id,omitempty"`
	Status    entity.OrderStatus  `json:"status,omitempty"`
	Return    entity.ReturnStatus `json:"return_status,omitempty"`
	Unchanged bool                `json:"unchanged,omitempty"`
	Duplicate bool                `json:"duplicate,omitempty"`
}

// ShippingService applies carrier shipment webhooks to orders. Transitions are
// monotonic on the status rank; a late or replayed low-rank event updates
// nothing but is still journaled.
type ShippingService struct {
	orders   repository.OrderRepo
	events   repository.WebhookEventRepo
	cfg      config.Webhooks
	notifier *Notifier
	now      func() time.Time
}

func NewShippingService(orders repository.OrderRepo, events repository.WebhookEventRepo, cfg config.Webhooks, notifier *Notifier) *ShippingService {
	return &ShippingService{orders: orders, events: events, cfg: cfg, notifier: notifier, now: time.Now}
}

func (s *ShippingService) Process(ctx context.Context, d WebhookDelivery) (outcome *WebhookOutcome, err error) {
	now := s.now()
	if !verifyDelivery(d, s.cfg.ShippingSecret, s.cfg.ShippingToken, s.cfg.ReplayWindow, now) {
		return nil, ErrUnauthorized
	}
	ev, err := normalizeShipment(d.Body)
	if err != nil {
		return nil, &ValidationError{Code: "MALFORMED_PAYLOAD", Message: err.Error()}
	}

	// Carriers that send no event id still get exactly-once handling per
	// delivery; only explicit ids dedup across retries.
	eventID := d.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	dup, err := s.events.Claim(ctx, "shipping", eventID)
	if err != nil {
		return nil, err
	}
	if dup {
		return &WebhookOutcome{OK: true, Duplicate: true}, nil
	}

	journal := entity.WebhookEvent{
		EventID:    eventID,
		Source:     "shipping",
		Carrier:    ev.Carrier,
		StatusRaw:  ev.Status,
		BodyHash:   bodyHash(d.Body),
		ReceivedAt: now,
	}
	defer func() {
		if err != nil {
			// Failed claims are released so the carrier's retry can reapply.
			if rerr := s.events.Release(ctx, "shipping", eventID); rerr != nil {
				logger.Error().Err(rerr).Str("event_id", eventID).Msg("webhook claim release failed")
			}
			return
		}
		journal.ProcessedAt = s.now()
		if jerr := s.events.Journal(ctx, journal); jerr != nil {
			logger.Error().Err(jerr).Str("event_id", eventID).Msg("webhook journal failed")
		}
	}()

	order, err := s.findOrder(ctx, ev)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	journal.OrderID = order.ID

	mapped, known := shippingVocab[ev.Status]
	if known {
		journal.StatusMapped = string(mapped)
	}

	outcome = &WebhookOutcome{OK: true, ID: order.ID, Status: order.Status}
	advanced := false
	if known && mapped.Rank() > order.Status.Rank() && entity.CanTransition(order.Status, mapped) {
		advanced, err = s.orders.UpdateStatusIf(ctx, order.ID, order.Status, mapped, nil)
		if err != nil {
			return nil, err
		}
	}

	patch := repository.ShippingPatch{
		Carrier:        ev.Carrier,
		TrackingNumber: ev.TrackingNumber,
		TrackingURL:    ev.TrackingURL,
		ShippedAt:      ev.ShippedAt,
		DeliveredAt:    ev.DeliveredAt,
	}
	if advanced {
		if mapped == entity.OrderShipped && patch.ShippedAt == nil {
			patch.ShippedAt = &now
		}
		if mapped == entity.OrderDelivered && patch.DeliveredAt == nil {
			patch.DeliveredAt = &now
		}
	}
	updated, err := s.orders.UpdateShipping(ctx, order.ID, patch)
	if err != nil {
		return nil, err
	}

	if advanced {
		outcome.Status = mapped
		switch mapped {
		case entity.OrderShipped:
			s.notifier.OrderShipped(ctx, updated)
			s.notifier.PublishOrderEvent(ctx, updated, "shipped")
		case entity.OrderDelivered:
			s.notifier.OrderDelivered(ctx, updated)
			s.notifier.PublishOrderEvent(ctx, updated, "delivered")
		}
	} else {
		outcome.Unchanged = true
	}
	return outcome, nil
}

func (s *ShippingService) findOrder(ctx context.Context, ev *entity.ShipmentEvent) (*entity.Order, error) {
	if ev.OrderID != "" {
		order, err := s.orders.FindByID(ctx, ev.OrderID)
		if err != nil || order != nil {
			return order, err
		}
	}
	if ev.TrackingNumber != "" {
		return s.orders.FindByTracking(ctx, ev.TrackingNumber)
	}
	return nil, nil
}

// AdminShippingUpdate is a manual shipping patch by back-office staff. The same
// lifecycle rules apply: staff can only move an order along a legal transition,
// never rewind it.
type AdminShippingUpdate struct {
	Status         string `json:"status"`
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
}

func (s *ShippingService) AdminUpdate(ctx context.Context, orderID string, upd AdminShippingUpdate) (*entity.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}

	now := s.now()
	patch := repository.ShippingPatch{
		Carrier:        upd.Carrier,
		TrackingNumber: upd.TrackingNumber,
		TrackingURL:    upd.TrackingURL,
	}
	if upd.Status != "" {
		to := entity.OrderStatus(upd.Status)
		if !to.Valid() {
			return nil, &ValidationError{Code: "INVALID_STATUS", Message: "unknown order status " + upd.Status}
		}
		if !entity.CanTransition(order.Status, to) {
			return nil, &ValidationError{Code: "INVALID_TRANSITION", Message: "order is " + string(order.Status) + ", cannot move to " + upd.Status}
		}
		advanced, err := s.orders.UpdateStatusIf(ctx, orderID, order.Status, to, nil)
		if err != nil {
			return nil, err
		}
		if !advanced {
			return nil, &ValidationError{Code: "STATUS_CONFLICT", Message: "order status changed concurrently"}
		}
		if to == entity.OrderShipped {
			patch.ShippedAt = &now
		}
		if to == entity.OrderDelivered {
			patch.DeliveredAt = &now
		}
	}
	return s.orders.UpdateShipping(ctx, orderID, patch)
}

// Status resolves an order for the tracking page, by id or tracking number.
func (s *ShippingService) Status(ctx context.Context, orderID, trackingNumber string) (*entity.Order, error) {
	var order *entity.Order
	var err error
	switch {
	case orderID != "":
		order, err = s.orders.FindByID(ctx, orderID)
	case trackingNumber != "":
		order, err = s.orders.FindByTracking(ctx, trackingNumber)
	default:
		return nil, &ValidationError{Code: "MISSING_QUERY", Message: "order_id or tracking_number is required"}
	}
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}
