package api

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"order-pipeline/internal/config"
	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
	"order-pipeline/internal/service"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	catalog   repository.CatalogRepo
	validator *service.ValidatorService
	checkout  *service.CheckoutService
	callback  *service.CallbackService
	refunds   *service.RefundService
	shipping  *service.ShippingService
	returns   *service.ReturnsService
	coupons   *service.CouponService
	server    config.Server
}

func NewHandler(
	catalog repository.CatalogRepo,
	validator *service.ValidatorService,
	checkout *service.CheckoutService,
	callback *service.CallbackService,
	refunds *service.RefundService,
	shipping *service.ShippingService,
	returns *service.ReturnsService,
	coupons *service.CouponService,
	server config.Server,
) *Handler {
	return &Handler{
		catalog:   catalog,
		validator: validator,
		checkout:  checkout,
		callback:  callback,
		refunds:   refunds,
		shipping:  shipping,
		returns:   returns,
		coupons:   coupons,
		server:    server,
	}
}

// writeErr maps service errors onto HTTP statuses. Gateway failures are 502:
// the order is intact and the client may retry.
func writeErr(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(400, map[string]any{"error": ve.Message, "code": ve.Code, "details": ve.Details})
	}
	var sce *service.StockConflictError
	if errors.As(err, &sce) {
		return c.JSON(409, map[string]any{"error": sce.Error(), "stock_issues": sce.Shortfalls})
	}
	var ge *service.GatewayError
	if errors.As(err, &ge) {
		return c.JSON(502, map[string]any{"error": ge.Error(), "order_id": ge.OrderID})
	}
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(404, map[string]string{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(403, map[string]string{"error": "forbidden"})
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(401, map[string]string{"error": "unauthorized"})
	}
	return c.JSON(500, map[string]string{"error": err.Error()})
}

// ValidateCart re-prices a cart without creating anything.
func (h *Handler) ValidateCart(c echo.Context) error {
	ctx := c.Request().Context()
	var req struct {
		UserID string            `json:"user_id"`
		Items  []entity.CartLine `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid request payload"})
	}
	buyer, err := h.catalog.BuyerContext(ctx, req.UserID)
	if err != nil {
		return writeErr(c, err)
	}
	result, err := h.validator.Validate(ctx, buyer, req.Items)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, result)
}

func (h *Handler) Checkout(c echo.Context) error {
	req := entity.CheckoutRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid request payload"})
	}
	result, err := h.checkout.Checkout(c.Request().Context(), &req)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, result)
}

// PaymentCallback terminates the gateway redirect. The token arrives as a form
// post from the payment page, or as JSON/query from server-side retries; all
// three are accepted and the response is always 200 so the gateway stops
// retrying.
func (h *Handler) PaymentCallback(c echo.Context) error {
	token := c.FormValue("token")
	conversationID := c.FormValue("conversationId")
	orderID := c.FormValue("orderId")
	if token == "" && strings.Contains(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var body struct {
			Token          string `json:"token"`
			ConversationID string `json:"conversationId"`
			OrderID        string `json:"orderId"`
		}
		if err := c.Bind(&body); err == nil {
			token, conversationID, orderID = body.Token, body.ConversationID, body.OrderID
		}
	}
	if token == "" {
		token = c.QueryParam("token")
	}
	if conversationID == "" {
		conversationID = c.QueryParam("conversationId")
	}
	if orderID == "" {
		orderID = c.QueryParam("orderId")
	}

	outcome, err := h.callback.Resolve(c.Request().Context(), token, conversationID, orderID)
	if err != nil {
		// A transient failure here must not make the gateway retry into an
		// error page; ack with pending and let the housekeeper re-resolve.
		c.Logger().Error(err)
		outcome = &service.CallbackOutcome{Status: "pending"}
	}

	if h.server.SuccessURL != "" && strings.Contains(c.Request().Header.Get("Accept"), "text/html") {
		resolvedID := orderID
		if outcome.Order != nil {
			resolvedID = outcome.Order.ID
		}
		target := fmt.Sprintf("%s?status=%s&order_id=%s", h.server.SuccessURL, outcome.Status, resolvedID)
		return c.HTML(200, fmt.Sprintf(
			`<html><head><meta http-equiv="refresh" content="0;url=%s"></head><body>Redirecting...</body></html>`, target))
	}

	resp := map[string]any{"status": outcome.Status}
	if outcome.Order != nil {
		resp["order_id"] = outcome.Order.ID
		resp["order_status"] = outcome.Order.Status
	}
	return c.JSON(200, resp)
}

// Refund requires a JWT; buyers refund their own orders, admins any order.
func (h *Handler) Refund(c echo.Context) error {
	caller, err := callerFromToken(c)
	if err != nil {
		return c.JSON(401, map[string]string{"error": "unauthorized"})
	}
	var req struct {
		AmountMinor int64  `json:"amount_minor"`
		Reason      string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid request payload"})
	}
	outcome, err := h.refunds.Refund(c.Request().Context(), c.Param("id"), req.AmountMinor, req.Reason, caller)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, outcome)
}

func callerFromToken(c echo.Context) (service.Caller, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return service.Caller{}, service.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return service.Caller{}, service.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	return service.Caller{UserID: sub, IsAdmin: role == "admin"}, nil
}

func deliveryFrom(c echo.Context) (service.WebhookDelivery, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return service.WebhookDelivery{}, err
	}
	return service.WebhookDelivery{
		Body:      body,
		Signature: c.Request().Header.Get("X-Signature"),
		Token:     c.Request().Header.Get("X-Webhook-Token"),
		EventID:   c.Request().Header.Get("X-Event-Id"),
		Timestamp: c.Request().Header.Get("X-Timestamp"),
	}, nil
}

func (h *Handler) ShippingWebhook(c echo.Context) error {
	d, err := deliveryFrom(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "unreadable body"})
	}
	outcome, err := h.shipping.Process(c.Request().Context(), d)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, outcome)
}

func (h *Handler) ReturnsWebhook(c echo.Context) error {
	d, err := deliveryFrom(c)
	if err != nil {
		return c.JSON(400, map[string]string{"error": "unreadable body"})
	}
	outcome, err := h.returns.Process(c.Request().Context(), d)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, outcome)
}

func (h *Handler) ApplyCoupon(c echo.Context) error {
	var req struct {
		Code          string `json:"code"`
		SubtotalMinor int64  `json:"subtotal_minor"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid request payload"})
	}
	result, err := h.coupons.Apply(c.Request().Context(), req.Code, req.SubtotalMinor)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, result)
}

// ShippingStatus is the public tracking endpoint; it exposes only the
// shipping-relevant slice of the order.
func (h *Handler) ShippingStatus(c echo.Context) error {
	order, err := h.shipping.Status(c.Request().Context(), c.QueryParam("order_id"), c.QueryParam("tracking_number"))
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, map[string]any{
		"order_id":        order.ID,
		"status":          order.Status,
		"carrier":         order.Carrier,
		"tracking_number": order.TrackingNumber,
		"tracking_url":    order.TrackingURL,
		"shipped_at":      order.ShippedAt,
		"delivered_at":    order.DeliveredAt,
	})
}

func (h *Handler) AdminUpdateShipping(c echo.Context) error {
	caller, err := callerFromToken(c)
	if err != nil || !caller.IsAdmin {
		return c.JSON(403, map[string]string{"error": "forbidden"})
	}
	upd := service.AdminShippingUpdate{}
	if err := c.Bind(&upd); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid request payload"})
	}
	order, err := h.shipping.AdminUpdate(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(200, order)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(200, map[string]string{"status": "ok"})
}
