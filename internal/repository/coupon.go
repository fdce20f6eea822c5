package repository

import (
	"context"
	"database/sql"
	"errors"

	"order-pipeline/internal/entity"
)

type CouponRepo interface {
	// FindByCode matches the canonical (uppercased) code; nil when absent.
	FindByCode(ctx context.Context, code string) (*entity.Coupon, error)
	IncrementUsage(ctx context.Context, code string) error
}

type couponRepo struct {
	db *sql.DB
}

func NewCouponRepo(db *sql.DB) CouponRepo {
	return &couponRepo{db: db}
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT code, discount_type, discount_value, minimum_order_minor, valid_from, valid_until, is_active, usage_limit, used_count
		 FROM coupons WHERE code = ?`, code)
	var c entity.Coupon
	var from, until sql.NullTime
	err := row.Scan(&c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderMinor, &from, &until, &c.IsActive, &c.UsageLimit, &c.UsedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if from.Valid {
		t := from.Time
		c.ValidFrom = &t
	}
	if until.Valid {
		t := until.Time
		c.ValidUntil = &t
	}
	return &c, nil
}

func (r *couponRepo) IncrementUsage(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE coupons SET used_count = used_count + 1 WHERE code = ?`, code)
	return err
}
