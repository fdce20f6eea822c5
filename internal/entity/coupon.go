package entity

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed_amount"
)

type Coupon struct {
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"` // percent, or fixed minor units
	MinOrderMinor int64        `json:"minimum_order_minor"`
	ValidFrom     *time.Time   `json:"valid_from,omitempty"`
	ValidUntil    *time.Time   `json:"valid_until,omitempty"`
	IsActive      bool         `json:"is_active"`
	UsageLimit    int          `json:"usage_limit"` // 0 = unlimited
	UsedCount     int          `json:"used_count"`
}

// Applicable checks the validity window, active flag, usage limit and minimum
// order amount against the given subtotal at the given instant.
func (c Coupon) Applicable(subtotalMinor int64, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return false
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false
	}
	if c.MinOrderMinor > 0 && subtotalMinor < c.MinOrderMinor {
		return false
	}
	return true
}

// Coupon application outcome reasons.
const (
	CouponNotFound        = "not_found"
	CouponNotApplicable   = "not_applicable"
	CouponZeroDiscount    = "zero_discount"
	CouponInvalidCode     = "invalid_code"
	CouponInvalidSubtotal = "invalid_subtotal"
)

type CouponResult struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	DiscountMinor  int64  `json:"discount_minor,omitempty"`
	FinalMinor     int64  `json:"final_minor,omitempty"`
	NormalizedCode string `json:"normalized_code,omitempty"`
}
