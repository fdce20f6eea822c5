package service

import (
	"context"
	"math"
	"strings"
	"time"

	"order-pipeline/internal/entity"
	"order-pipeline/internal/repository"
)

// CouponService evaluates a discount code against a subtotal. An invalid
// coupon is a normal outcome with a reason, not an error; only infrastructure
// failures return one.
type CouponService struct {
	coupons repository.CouponRepo
	now     func() time.Time
}

func NewCouponService(coupons repository.CouponRepo) *CouponService {
	return &CouponService{coupons: coupons, now: time.Now}
}

// Apply normalizes the code, looks the coupon up and computes the discount.
// The discount never exceeds the subtotal.
func (s *CouponService) Apply(ctx context.Context, code string, subtotalMinor int64) (*entity.CouponResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 3 {
		return &entity.CouponResult{Reason: entity.CouponInvalidCode}, nil
	}
	if subtotalMinor <= 0 {
		return &entity.CouponResult{Reason: entity.CouponInvalidSubtotal}, nil
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return &entity.CouponResult{Reason: entity.CouponNotFound}, nil
	}
	if !coupon.Applicable(subtotalMinor, s.now()) {
		return &entity.CouponResult{Reason: entity.CouponNotApplicable, NormalizedCode: coupon.Code}, nil
	}

	var discount int64
	switch coupon.DiscountType {
	case entity.DiscountPercentage:
		discount = int64(math.Round(float64(subtotalMinor) * coupon.DiscountValue / 100))
	case entity.DiscountFixed:
		discount = int64(coupon.DiscountValue)
	}
	if discount <= 0 {
		return &entity.CouponResult{Reason: entity.CouponZeroDiscount, NormalizedCode: coupon.Code}, nil
	}
	if discount > subtotalMinor {
		discount = subtotalMinor
	}

	return &entity.CouponResult{
		Valid:          true,
		DiscountMinor:  discount,
		FinalMinor:     subtotalMinor - discount,
		NormalizedCode: coupon.Code,
	}, nil
}

// Redeem records one use of an applied coupon.
func (s *CouponService) Redeem(ctx context.Context, code string) error {
	return s.coupons.IncrementUsage(ctx, strings.ToUpper(strings.TrimSpace(code)))
}
