package service

import (
	"context"

	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
)

// CallbackOutcome is what the gateway redirect/callback resolves to. Pending
// means nothing definite was learned and no state was written.
type CallbackOutcome struct {
	Status string // "success", "failure" or "pending"
	Order  *entity.Order
}

// CallbackService reconciles the gateway's asynchronous result. Trust is
// anchored in token possession plus a server-to-server retrieval; a
// client-asserted success flag is never consulted.
type CallbackService struct {
	orders   repository.OrderRepo
	catalog  repository.CatalogRepo
	gw       gateway.Gateway
	notifier *Notifier
}

func NewCallbackService(orders repository.OrderRepo, catalog repository.CatalogRepo, gw gateway.Gateway, notifier *Notifier) *CallbackService {
	return &CallbackService{orders: orders, catalog: catalog, gw: gw, notifier: notifier}
}

// Resolve looks the order up by id, then by correlation id, retrieves the
// payment outcome from the gateway and advances pending -> paid/failed. It is
// safely repeatable: the conditional pending guard means a second delivery
// re-reads the already-final status without double effects.
func (s *CallbackService) Resolve(ctx context.Context, token, conversationID, orderID string) (*CallbackOutcome, error) {
	var order *entity.Order
	var err error
	if orderID != "" {
		order, err = s.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
	}
	if order == nil && conversationID != "" {
		order, err = s.orders.FindByConversationID(ctx, conversationID)
		if err != nil {
			return nil, err
		}
	}
	if order == nil {
		return &CallbackOutcome{Status: "pending"}, nil
	}

	if token == "" {
		token = order.PaymentToken
	}
	if token == "" {
		return &CallbackOutcome{Status: "pending", Order: order}, nil
	}
	if order.PaymentToken == "" {
		// Store the token as soon as we see it so the housekeeper can
		// re-resolve even if this retrieval dies.
		if err := s.orders.SetPaymentToken(ctx, order.ID, token); err != nil {
			logger.Error().Err(err).Str("order_id", order.ID).Msg("payment token persist failed")
		}
	}

	// Orders already past pending just report their final status.
	if order.Status != entity.OrderPending {
		return &CallbackOutcome{Status: statusWord(order.Status), Order: order}, nil
	}

	result, err := s.gw.Retrieve(ctx, token, order.ConversationID)
	if err != nil {
		// Nothing definite learned; leave the order exactly as it was.
		logger.Error().Err(err).Str("order_id", order.ID).Msg("gateway retrieve failed")
		return &CallbackOutcome{Status: "pending", Order: order}, nil
	}

	debug := order.PaymentDebug
	debug.PaymentID = result.PaymentID
	debug.PaymentStatus = result.Status
	debug.ErrorCode = result.ErrorCode
	debug.ErrorMessage = result.ErrorMessage
	debug.TransactionIDs = result.TransactionIDs

	if result.Paid() {
		if !entity.CanTransition(order.Status, entity.OrderPaid) {
			return &CallbackOutcome{Status: statusWord(order.Status), Order: order}, nil
		}
		advanced, err := s.orders.ResolvePayment(ctx, order.ID, true, debug)
		if err != nil {
			return nil, err
		}
		order.Status = entity.OrderPaid
		order.PaymentStatus = entity.PaymentPaid
		order.PaymentDebug = debug
		if advanced {
			s.onPaid(ctx, order)
		}
		return &CallbackOutcome{Status: "success", Order: order}, nil
	}

	if result.Status == "" {
		// Gateway knows nothing definite either; keep pending.
		return &CallbackOutcome{Status: "pending", Order: order}, nil
	}

	if !entity.CanTransition(order.Status, entity.OrderFailed) {
		return &CallbackOutcome{Status: statusWord(order.Status), Order: order}, nil
	}
	if _, err := s.orders.ResolvePayment(ctx, order.ID, false, debug); err != nil {
		return nil, err
	}
	order.Status = entity.OrderFailed
	order.PaymentDebug = debug
	return &CallbackOutcome{Status: "failure", Order: order}, nil
}

// onPaid runs the side effects of the single pending->paid transition:
// decrement stock, raise low-stock alerts, send the confirmation, publish the
// lifecycle event. All best-effort.
func (s *CallbackService) onPaid(ctx context.Context, order *entity.Order) {
	items, err := s.orders.ItemsByOrder(ctx, order.ID)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.ID).Msg("items load failed, stock not decremented")
		items = nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, _ := s.catalog.ProductsByIDs(ctx, ids)
	for _, it := range items {
		left, err := s.catalog.AdjustStock(ctx, it.ProductID, -it.Quantity)
		if err != nil {
			logger.Error().Err(err).Str("product_id", it.ProductID).Msg("stock decrement failed")
			continue
		}
		if p, ok := products[it.ProductID]; ok && p.StockThreshold > 0 && left <= p.StockThreshold {
			s.notifier.LowStock(ctx, p, left)
		}
	}
	s.notifier.OrderConfirmation(ctx, order)
	s.notifier.PublishOrderEvent(ctx, order, "paid")
}

func statusWord(st entity.OrderStatus) string {
	switch st {
	case entity.OrderFailed, entity.OrderCancelled:
		return "failure"
	case entity.OrderPending:
		return "pending"
	default:
		return "success"
	}
}
