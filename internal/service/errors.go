package service

import (
	"errors"
	"fmt"

	"order-pipeline/internal/entity"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Code    string
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StockConflictError blocks checkout and carries per-product shortfall detail
// so the caller can adjust the cart.
type StockConflictError struct {
	Shortfalls []entity.StockShortfall
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for %d product(s)", len(e.Shortfalls))
}

// GatewayError wraps an upstream failure. Local state is left exactly as it
// was before the call.
type GatewayError struct {
	Op      string
	OrderID string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed for order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
