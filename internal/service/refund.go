package service

import (
	"context"
	"time"

	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
)

// Caller identifies who asked for the refund. Buyers may refund their own
// orders; everything else needs the admin role.
type Caller struct {
	UserID  string
	IsAdmin bool
}

// RefundOutcome describes what the refund did. AlreadyRefunded means the money
// was returned by an earlier request and nothing happened now.
type RefundOutcome struct {
	OrderID         string               `json:"order_id"`
	RefundedMinor   int64                `json:"refunded_minor"`
	TotalMinor      int64                `json:"total_minor"`
	PaymentStatus   entity.PaymentStatus `json:"payment_status"`
	OrderStatus     entity.OrderStatus   `json:"order_status"`
	AlreadyRefunded bool                 `json:"already_refunded,omitempty"`
}

// RefundService returns money to buyers. Money moves before state: the
// gateway call happens first and any gateway failure leaves the order
// untouched, so a retry is always safe.
type RefundService struct {
	orders   repository.OrderRepo
	catalog  repository.CatalogRepo
	audit    repository.AuditRepo
	gw       gateway.Gateway
	notifier *Notifier
	now      func() time.Time
}

func NewRefundService(
	orders repository.OrderRepo,
	catalog repository.CatalogRepo,
	audit repository.AuditRepo,
	gw gateway.Gateway,
	notifier *Notifier,
) *RefundService {
	return &RefundService{
		orders:   orders,
		catalog:  catalog,
		audit:    audit,
		gw:       gw,
		notifier: notifier,
		now:      time.Now,
	}
}

// Refund returns amountMinor to the buyer; zero means the whole remaining
// amount. Refunding the untouched total voids the payment, restores stock and
// cancels the order unless it already shipped; a partial refund moves money
// only, and the close-out after partials refunds just the remainder.
func (s *RefundService) Refund(ctx context.Context, orderID string, amountMinor int64, reason string, caller Caller) (*RefundOutcome, error) {
	if amountMinor < 0 {
		return nil, &ValidationError{Code: "INVALID_AMOUNT", Message: "refund amount cannot be negative"}
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if !caller.IsAdmin && (order.UserID == "" || order.UserID != caller.UserID) {
		return nil, ErrForbidden
	}

	if order.PaymentStatus == entity.PaymentRefunded {
		return &RefundOutcome{
			OrderID:         order.ID,
			RefundedMinor:   order.PaymentDebug.RefundedMinor,
			TotalMinor:      order.TotalMinor,
			PaymentStatus:   order.PaymentStatus,
			OrderStatus:     order.Status,
			AlreadyRefunded: true,
		}, nil
	}

	remaining := order.TotalMinor - order.PaymentDebug.RefundedMinor
	if amountMinor == 0 || amountMinor > remaining {
		amountMinor = remaining
	}

	if order.PaymentStatus == entity.PaymentUnpaid {
		return s.cancelUnpaid(ctx, order, amountMinor == remaining, reason)
	}

	debug := order.PaymentDebug
	// A void is only possible while the payment is whole: the requested amount
	// covers the original total and no partial refund ever happened. Once the
	// ledger has entries, the remainder moves through refund calls so the
	// gateway is never asked to return more than was captured.
	full := amountMinor >= order.TotalMinor && debug.RefundedMinor == 0
	paymentStatus := entity.PaymentPartialRefund
	if debug.RefundedMinor+amountMinor >= order.TotalMinor {
		paymentStatus = entity.PaymentRefunded
	}
	// Consult the payment state machine before any money moves.
	if !entity.CanTransitionPayment(order.PaymentStatus, paymentStatus) {
		return nil, &ValidationError{Code: "INVALID_TRANSITION", Message: "payment is " + string(order.PaymentStatus) + ", cannot move to " + string(paymentStatus)}
	}
	refundType := "refund"
	var txID string
	if full {
		refundType = "cancel"
		if debug.PaymentID == "" {
			return nil, &ValidationError{Code: "NO_PAYMENT_ID", Message: "order has no captured payment id to void"}
		}
		if err := s.gw.Cancel(ctx, debug.PaymentID); err != nil {
			return nil, &GatewayError{Op: "cancel", OrderID: order.ID, Err: err}
		}
	} else {
		if len(debug.TransactionIDs) == 0 {
			return nil, &ValidationError{Code: "NO_TRANSACTION", Message: "order has no transaction to refund against"}
		}
		txID = debug.TransactionIDs[0]
		if err := s.gw.Refund(ctx, txID, amountMinor, order.Currency); err != nil {
			return nil, &GatewayError{Op: "refund", OrderID: order.ID, Err: err}
		}
	}

	now := s.now()
	debug.RefundedMinor += amountMinor
	debug.Refunds = append(debug.Refunds, entity.RefundEntry{
		AmountMinor:   amountMinor,
		Type:          refundType,
		TransactionID: txID,
		At:            now,
	})

	orderStatus := order.Status
	if full && entity.CanTransition(order.Status, entity.OrderCancelled) {
		orderStatus = entity.OrderCancelled
	}

	if err := s.orders.UpdateRefund(ctx, order.ID, paymentStatus, orderStatus, debug); err != nil {
		return nil, err
	}
	if full {
		s.restoreStock(ctx, order.ID)
	}
	if aerr := s.audit.AppendRefundEvent(ctx, order.ID, amountMinor, refundType, txID, reason); aerr != nil {
		logger.Error().Err(aerr).Str("order_id", order.ID).Msg("refund event append failed")
	}

	order.Status = orderStatus
	order.PaymentStatus = paymentStatus
	order.PaymentDebug = debug
	eventKey := "refunded"
	if orderStatus == entity.OrderCancelled {
		eventKey = "cancelled"
	}
	s.notifier.PublishOrderEvent(ctx, order, eventKey)

	return &RefundOutcome{
		OrderID:       order.ID,
		RefundedMinor: debug.RefundedMinor,
		TotalMinor:    order.TotalMinor,
		PaymentStatus: paymentStatus,
		OrderStatus:   orderStatus,
	}, nil
}

// cancelUnpaid handles cancellation before any money was captured. Nothing to
// void at the gateway, and pending orders never decremented stock.
func (s *RefundService) cancelUnpaid(ctx context.Context, order *entity.Order, full bool, reason string) (*RefundOutcome, error) {
	if !full {
		return nil, &ValidationError{Code: "NOT_REFUNDABLE", Message: "order has no captured payment to partially refund"}
	}
	if order.Status != entity.OrderPending {
		return nil, &ValidationError{Code: "NOT_CANCELLABLE", Message: "order is already " + string(order.Status)}
	}
	cancelled, err := s.orders.UpdateStatusIf(ctx, order.ID, entity.OrderPending, entity.OrderCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		return nil, &ValidationError{Code: "STATUS_CONFLICT", Message: "order status changed concurrently"}
	}
	// Nothing was captured, so the refunded terminal state is reached without
	// any money movement.
	if err := s.orders.UpdateRefund(ctx, order.ID, entity.PaymentRefunded, entity.OrderCancelled, order.PaymentDebug); err != nil {
		return nil, err
	}
	if aerr := s.audit.AppendRefundEvent(ctx, order.ID, 0, "cancel", "", reason); aerr != nil {
		logger.Error().Err(aerr).Str("order_id", order.ID).Msg("refund event append failed")
	}
	order.Status = entity.OrderCancelled
	order.PaymentStatus = entity.PaymentRefunded
	s.notifier.PublishOrderEvent(ctx, order, "cancelled")
	return &RefundOutcome{
		OrderID:       order.ID,
		RefundedMinor: 0,
		TotalMinor:    order.TotalMinor,
		PaymentStatus: entity.PaymentRefunded,
		OrderStatus:   entity.OrderCancelled,
	}, nil
}

// restoreStock puts the purchased quantities back, best-effort. Only full
// refunds restore stock; a partial refund is a price adjustment, the goods
// stay with the buyer.
func (s *RefundService) restoreStock(ctx context.Context, orderID string) {
	items, err := s.orders.ItemsByOrder(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Str("order_id", orderID).Msg("items load failed, stock not restored")
		return
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, _ := s.catalog.ProductsByIDs(ctx, ids)
	for _, it := range items {
		left, err := s.catalog.AdjustStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			logger.Error().Err(err).Str("product_id", it.ProductID).Msg("stock restore failed")
			continue
		}
		if p, ok := products[it.ProductID]; ok && p.StockThreshold > 0 && left <= p.StockThreshold {
			s.notifier.LowStock(ctx, p, left)
		}
	}
}
