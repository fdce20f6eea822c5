package entity

import "time"

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// orderRank orders the status axis. Webhook-driven transitions may only move
// to a strictly higher rank; a late low-rank event never regresses the order.
var orderRank = map[OrderStatus]int{
	OrderPending:   0,
	OrderFailed:    1,
	OrderCancelled: 1,
	OrderPaid:      2,
	OrderConfirmed: 3,
	OrderShipped:   4,
	OrderDelivered: 5,
}

func (s OrderStatus) Rank() int {
	r, ok := orderRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s OrderStatus) Valid() bool {
	_, ok := orderRank[s]
	return ok
}

// orderTransitions is the allowed from->to set consulted by every mutator.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderPaid, OrderFailed, OrderCancelled},
	OrderPaid:      {OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled},
	OrderConfirmed: {OrderShipped, OrderDelivered, OrderCancelled},
	OrderShipped:   {OrderDelivered},
	OrderDelivered: {},
	OrderFailed:    {},
	OrderCancelled: {},
}

// CanTransition reports whether the order status machine allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartialRefund PaymentStatus = "partial_refunded"
	PaymentRefunded      PaymentStatus = "refunded"
)

// CanTransitionPayment guards the payment axis: refunded is terminal and a
// refund may only follow a captured payment.
func CanTransitionPayment(from, to PaymentStatus) bool {
	switch from {
	case PaymentUnpaid:
		return to == PaymentPaid || to == PaymentRefunded
	case PaymentPaid:
		return to == PaymentPartialRefund || to == PaymentRefunded
	case PaymentPartialRefund:
		return to == PaymentPartialRefund || to == PaymentRefunded
	default:
		return false
	}
}

// RefundEntry is one line of the partial-refund ledger kept in payment_debug.
type RefundEntry struct {
	AmountMinor   int64     `json:"amount_minor"`
	Type          string    `json:"type"` // "cancel" or "refund"
	TransactionID string    `json:"transaction_id,omitempty"`
	At            time.Time `json:"at"`
}

// PaymentDebug is the structured audit trail of gateway calls for one order.
type PaymentDebug struct {
	PaymentID      string        `json:"payment_id,omitempty"`
	PaymentStatus  string        `json:"payment_status,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	TransactionIDs []string      `json:"transaction_ids,omitempty"`
	Refunds        []RefundEntry `json:"refunds,omitempty"`
	RefundedMinor  int64         `json:"refunded_minor,omitempty"`
	Mismatches     []string      `json:"price_mismatches,omitempty"`
}

type Order struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id,omitempty"` // empty for guest checkout
	ConversationID string        `json:"conversation_id"`
	Status         OrderStatus   `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	TotalMinor     int64         `json:"total_minor"`
	Currency       string        `json:"currency"`
	CustomerName   string        `json:"customer_name"`
	CustomerEmail  string        `json:"customer_email"`
	CustomerPhone  string        `json:"customer_phone,omitempty"`
	ShippingAddr   string        `json:"shipping_address"`
	BillingAddr    string        `json:"billing_address"`
	PaymentToken   string        `json:"payment_token,omitempty"`
	Carrier        string        `json:"carrier,omitempty"`
	TrackingNumber string        `json:"tracking_number,omitempty"`
	TrackingURL    string        `json:"tracking_url,omitempty"`
	ShippedAt      *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time    `json:"delivered_at,omitempty"`
	PaymentDebug   PaymentDebug  `json:"payment_debug"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type OrderItem struct {
	ID           int    `json:"id"`
	OrderID      string `json:"order_id"`
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	UnitMinor    int64  `json:"unit_minor"`
	LineMinor    int64  `json:"line_minor"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image,omitempty"`
}
