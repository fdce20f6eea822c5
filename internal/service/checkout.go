package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/repository"
)

// CheckoutService creates the pending order and hands the buyer off to the
// payment gateway. The client-submitted amounts are never trusted: the
// validator recomputes everything and its subtotal is what the gateway sees.
type CheckoutService struct {
	db        *sql.DB
	orders    repository.OrderRepo
	catalog   repository.CatalogRepo
	validator *ValidatorService
	gw        gateway.Gateway
	cfg       config.Gateway
}

func NewCheckoutService(
	db *sql.DB,
	orders repository.OrderRepo,
	catalog repository.CatalogRepo,
	validator *ValidatorService,
	gw gateway.Gateway,
	cfg config.Gateway,
) *CheckoutService {
	return &CheckoutService{
		db:        db,
		orders:    orders,
		catalog:   catalog,
		validator: validator,
		gw:        gw,
		cfg:       cfg,
	}
}

// Checkout validates the cart, persists the pending order with its immutable
// item snapshots, and opens a gateway session for the authoritative subtotal.
// Stock shortfalls reject before any write; price mismatches are overridden
// and journaled. A gateway failure leaves the pending order for the
// housekeeper; there is deliberately no idempotency at this layer.
func (s *CheckoutService) Checkout(ctx context.Context, req *entity.CheckoutRequest) (*entity.CheckoutResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	buyer, err := s.catalog.BuyerContext(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	v, err := s.validator.Validate(ctx, buyer, req.Items)
	if err != nil {
		return nil, err
	}
	if len(v.Shortfalls) > 0 {
		return nil, &StockConflictError{Shortfalls: v.Shortfalls}
	}
	for _, m := range v.Mismatches {
		logger.Warn().
			Str("product_id", m.ProductID).
			Int64("had", m.ClientMinor).
			Int64("expected", m.ExpectedMinor).
			Msg("client price overridden by authoritative value")
	}

	now := time.Now()
	orderID := fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.Split(uuid.NewString(), "-")[0])
	conversationID := uuid.NewString()

	billing := req.BillingAddress
	if billing == nil {
		billing = req.ShippingAddress
	}
	shippingJSON, _ := json.Marshal(req.ShippingAddress)
	billingJSON, _ := json.Marshal(billing)

	order := &entity.Order{
		ID:             orderID,
		UserID:         req.UserID,
		ConversationID: conversationID,
		Status:         entity.OrderPending,
		PaymentStatus:  entity.PaymentUnpaid,
		TotalMinor:     v.SubtotalMinor,
		Currency:       s.cfg.Currency,
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerPhone:  req.Customer.Phone,
		ShippingAddr:   string(shippingJSON),
		BillingAddr:    string(billingJSON),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, m := range v.Mismatches {
		order.PaymentDebug.Mismatches = append(order.PaymentDebug.Mismatches,
			fmt.Sprintf("%s: had %d, charged %d", m.ProductID, m.ClientMinor, m.ExpectedMinor))
	}

	items := s.buildItems(ctx, orderID, req.Items, v.Items)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := s.orders.Create(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := s.orders.InsertItems(ctx, tx, items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	session, err := s.gw.CreateSession(ctx, gateway.SessionRequest{
		ConversationID: conversationID,
		OrderID:        orderID,
		AmountMinor:    v.SubtotalMinor,
		Currency:       s.cfg.Currency,
		BuyerName:      req.Customer.Name,
		BuyerEmail:     req.Customer.Email,
		CallbackURL:    s.cfg.CallbackURL,
	})
	if err != nil {
		// Order stays pending; the housekeeper cancels it after the grace
		// window if nothing else resolves it.
		logger.Error().Err(err).Str("order_id", orderID).Msg("gateway session failed, order left pending")
		return nil, &GatewayError{Op: "create session", OrderID: orderID, Err: err}
	}

	if err := s.orders.SetPaymentToken(ctx, orderID, session.Token); err != nil {
		logger.Error().Err(err).Str("order_id", orderID).Msg("payment token persist failed")
	}

	return &entity.CheckoutResult{
		OrderID:        orderID,
		ConversationID: conversationID,
		PaymentToken:   session.Token,
		RedirectURL:    session.RedirectURL,
		AmountMinor:    v.SubtotalMinor,
		Currency:       s.cfg.Currency,
	}, nil
}

// buildItems snapshots product name/image into the order items, falling back
// to the client-supplied metadata when the catalog row is momentarily absent.
func (s *CheckoutService) buildItems(ctx context.Context, orderID string, lines []entity.CartLine, validated []entity.ValidatedItem) []entity.OrderItem {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("catalog metadata unavailable, using client-supplied names")
		products = map[string]entity.Product{}
	}
	byID := make(map[string]entity.CartLine, len(lines))
	for _, l := range lines {
		byID[l.ProductID] = l
	}

	items := make([]entity.OrderItem, 0, len(validated))
	for _, vi := range validated {
		name := byID[vi.ProductID].ProductName
		image := byID[vi.ProductID].ProductImage
		if p, ok := products[vi.ProductID]; ok {
			name = p.Name
			if p.ImageURL != "" {
				image = p.ImageURL
			}
		}
		items = append(items, entity.OrderItem{
			OrderID:      orderID,
			ProductID:    vi.ProductID,
			Quantity:     vi.Quantity,
			UnitMinor:    vi.UnitMinor,
			LineMinor:    vi.UnitMinor * int64(vi.Quantity),
			ProductName:  name,
			ProductImage: image,
		})
	}
	return items
}

func validateRequest(req *entity.CheckoutRequest) error {
	var details []string
	if req.Customer.Name == "" {
		details = append(details, "customer name is required")
	}
	if !strings.Contains(req.Customer.Email, "@") {
		details = append(details, "a valid customer email is required")
	}
	if req.ShippingAddress == nil {
		details = append(details, "shipping address is required")
	}
	if len(req.Items) == 0 {
		details = append(details, "cart items are required")
	}
	if !req.ConsentKVKK {
		details = append(details, "data processing consent is required")
	}
	if !req.ConsentTerms {
		details = append(details, "terms of sale consent is required")
	}
	for i, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			details = append(details, fmt.Sprintf("cart item %d needs product_id and a positive quantity", i+1))
		}
	}
	if len(details) > 0 {
		return &ValidationError{Code: "VALIDATION_ERROR", Message: "missing or invalid fields", Details: details}
	}
	return nil
}
