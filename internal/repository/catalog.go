package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"order-pipeline/internal/entity"
)

// CatalogRepo reads resolved catalog data (products, price lists, price rows)
// and adjusts stock. The core never edits catalog content.
type CatalogRepo interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]entity.Product, error)
	ActivePriceLists(ctx context.Context, now time.Time) ([]entity.PriceList, error)
	// PricesFor returns active price rows for the product on the given list;
	// an empty listID selects the default (list-less) rows.
	PricesFor(ctx context.Context, productID, listID string) ([]entity.ProductPrice, error)
	// AdjustStock reads the current stock, applies delta and writes the new
	// value back, returning it.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	BuyerContext(ctx context.Context, userID string) (entity.Buyer, error)
}

type catalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) CatalogRepo {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) ProductsByIDs(ctx context.Context, ids []string) (map[string]entity.Product, error) {
	out := make(map[string]entity.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, name, image_url, base_minor, stock, stock_threshold FROM products WHERE id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p entity.Product
		var image sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &image, &p.BaseMinor, &p.Stock, &p.StockThreshold); err != nil {
			return nil, err
		}
		p.ImageURL = image.String
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *catalogRepo) ActivePriceLists(ctx context.Context, now time.Time) ([]entity.PriceList, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, is_default, is_active, allowed_roles, allowed_tiers, effective_from, effective_to
		 FROM price_lists
		 WHERE is_active = TRUE AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)`,
		now, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []entity.PriceList
	for rows.Next() {
		var pl entity.PriceList
		var roles, tiers sql.NullString
		var effTo sql.NullTime
		if err := rows.Scan(&pl.ID, &pl.Name, &pl.IsDefault, &pl.IsActive, &roles, &tiers, &pl.EffectiveFrom, &effTo); err != nil {
			return nil, err
		}
		pl.AllowedRoles = splitCSV(roles.String)
		pl.AllowedTiers = splitCSVInts(tiers.String)
		if effTo.Valid {
			t := effTo.Time
			pl.EffectiveTo = &t
		}
		lists = append(lists, pl)
	}
	return lists, rows.Err()
}

func (r *catalogRepo) PricesFor(ctx context.Context, productID, listID string) ([]entity.ProductPrice, error) {
	query := `SELECT product_id, price_list_id, base_minor, sale_minor, discount_percentage, is_active, valid_from, valid_until
		FROM product_prices WHERE product_id = ? AND is_active = TRUE AND `
	args := []any{productID}
	if listID == "" {
		query += `price_list_id IS NULL`
	} else {
		query += `price_list_id = ?`
		args = append(args, listID)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []entity.ProductPrice
	for rows.Next() {
		var pp entity.ProductPrice
		var list sql.NullString
		var from, until sql.NullTime
		if err := rows.Scan(&pp.ProductID, &list, &pp.BaseMinor, &pp.SaleMinor, &pp.DiscountPct, &pp.IsActive, &from, &until); err != nil {
			return nil, err
		}
		pp.PriceListID = list.String
		if from.Valid {
			t := from.Time
			pp.ValidFrom = &t
		}
		if until.Valid {
			t := until.Time
			pp.ValidUntil = &t
		}
		prices = append(prices, pp)
	}
	return prices, rows.Err()
}

func (r *catalogRepo) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	var current int
	err := r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, productID).Scan(&current)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	_, err = r.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, next, productID)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *catalogRepo) BuyerContext(ctx context.Context, userID string) (entity.Buyer, error) {
	buyer := entity.Buyer{UserID: userID, Role: "individual"}
	if userID == "" {
		return buyer, nil
	}
	var role sql.NullString
	var tier sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT p.role, o.tier_level
		 FROM user_profiles p LEFT JOIN organizations o ON o.id = p.organization_id
		 WHERE p.id = ?`, userID).Scan(&role, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return buyer, nil
	}
	if err != nil {
		return buyer, err
	}
	if role.String != "" {
		buyer.Role = role.String
	}
	if tier.Valid {
		t := int(tier.Int64)
		buyer.Tier = &t
	}
	return buyer, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitCSVInts(s string) []int {
	var out []int
	for _, p := range splitCSV(s) {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
