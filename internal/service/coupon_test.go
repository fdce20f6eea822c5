package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-pipeline/internal/entity"
)

func newCouponService(coupons *fakeCouponRepo) *CouponService {
	svc := NewCouponService(coupons)
	svc.now = fixedNow
	return svc
}

func TestApplyPercentageCoupon(t *testing.T) {
	coupons := newFakeCouponRepo()
	coupons.coupons["SAVE10"] = &entity.Coupon{
		Code: "SAVE10", DiscountType: entity.DiscountPercentage, DiscountValue: 10,
		MinOrderMinor: 500, IsActive: true,
	}
	svc := newCouponService(coupons)

	result, err := svc.Apply(context.Background(), " save10 ", 1000)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(100), result.DiscountMinor)
	assert.Equal(t, int64(900), result.FinalMinor)
	assert.Equal(t, "SAVE10", result.NormalizedCode)
}

func TestApplyFixedCouponCappedAtSubtotal(t *testing.T) {
	coupons := newFakeCouponRepo()
	coupons.coupons["FLAT500"] = &entity.Coupon{
		Code: "FLAT500", DiscountType: entity.DiscountFixed, DiscountValue: 500, IsActive: true,
	}
	svc := newCouponService(coupons)

	result, err := svc.Apply(context.Background(), "FLAT500", 300)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(300), result.DiscountMinor)
	assert.Zero(t, result.FinalMinor)
}

func TestApplyCouponReasons(t *testing.T) {
	expired := fixedNow().Add(-time.Hour)
	coupons := newFakeCouponRepo()
	coupons.coupons["OLD10"] = &entity.Coupon{
		Code: "OLD10", DiscountType: entity.DiscountPercentage, DiscountValue: 10,
		IsActive: true, ValidUntil: &expired,
	}
	coupons.coupons["MIN99"] = &entity.Coupon{
		Code: "MIN99", DiscountType: entity.DiscountPercentage, DiscountValue: 10,
		MinOrderMinor: 9900, IsActive: true,
	}
	coupons.coupons["ZERO"] = &entity.Coupon{
		Code: "ZERO", DiscountType: entity.DiscountFixed, DiscountValue: 0, IsActive: true,
	}
	coupons.coupons["USEDUP"] = &entity.Coupon{
		Code: "USEDUP", DiscountType: entity.DiscountPercentage, DiscountValue: 10,
		IsActive: true, UsageLimit: 5, UsedCount: 5,
	}
	svc := newCouponService(coupons)

	cases := []struct {
		name     string
		code     string
		subtotal int64
		reason   string
	}{
		{"too short", "AB", 1000, entity.CouponInvalidCode},
		{"zero subtotal", "SAVE10", 0, entity.CouponInvalidSubtotal},
		{"unknown code", "NOPE99", 1000, entity.CouponNotFound},
		{"expired", "OLD10", 1000, entity.CouponNotApplicable},
		{"below minimum", "MIN99", 1000, entity.CouponNotApplicable},
		{"usage limit reached", "USEDUP", 1000, entity.CouponNotApplicable},
		{"zero discount", "ZERO", 1000, entity.CouponZeroDiscount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Apply(context.Background(), tc.code, tc.subtotal)
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}
}

func TestRedeemIncrementsUsage(t *testing.T) {
	coupons := newFakeCouponRepo()
	svc := newCouponService(coupons)

	require.NoError(t, svc.Redeem(context.Background(), "save10"))
	assert.Equal(t, 1, coupons.uses["SAVE10"])
}
