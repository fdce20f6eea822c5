package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"order-pipeline/internal/entity"
)

// OrderRepo persists the order record and its immutable items. Status writes
// are conditional on the currently-known status so concurrent mutators cannot
// clobber an advanced state.
type OrderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, o *entity.Order) error
	InsertItems(ctx context.Context, tx *sql.Tx, items []entity.OrderItem) error
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByConversationID(ctx context.Context, cid string) (*entity.Order, error)
	FindByTracking(ctx context.Context, trackingNumber string) (*entity.Order, error)
	ItemsByOrder(ctx context.Context, orderID string) ([]entity.OrderItem, error)
	SetPaymentToken(ctx context.Context, id, token string) error
	// UpdateStatusIf patches status (and optionally payment_debug) only when
	// the row still holds the expected status. Returns false when the guard
	// did not match.
	UpdateStatusIf(ctx context.Context, id string, from, to entity.OrderStatus, debug *entity.PaymentDebug) (bool, error)
	// ResolvePayment finalizes a pending order to paid or failed. The guard on
	// the pending status makes repeated callback deliveries single-effect.
	ResolvePayment(ctx context.Context, id string, paid bool, debug entity.PaymentDebug) (bool, error)
	UpdateRefund(ctx context.Context, id string, ps entity.PaymentStatus, st entity.OrderStatus, debug entity.PaymentDebug) error
	UpdateShipping(ctx context.Context, id string, patch ShippingPatch) (*entity.Order, error)
	FindStalePending(ctx context.Context, before time.Time, withToken bool, limit int) ([]entity.Order, error)
}

// ShippingPatch carries carrier fields from a webhook. Timestamps are written
// with COALESCE so the first value sticks and later events cannot overwrite it.
type ShippingPatch struct {
	Status         *entity.OrderStatus
	Carrier        string
	TrackingNumber string
	TrackingURL    string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, user_id, conversation_id, status, payment_status, total_minor, currency,
	customer_name, customer_email, customer_phone, shipping_address, billing_address,
	payment_token, carrier, tracking_number, tracking_url, shipped_at, delivered_at,
	payment_debug, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*entity.Order, error) {
	var o entity.Order
	var userID, phone, token, carrier, trackNo, trackURL, debugJSON sql.NullString
	var shippedAt, deliveredAt sql.NullTime
	err := row.Scan(
		&o.ID, &userID, &o.ConversationID, &o.Status, &o.PaymentStatus, &o.TotalMinor, &o.Currency,
		&o.CustomerName, &o.CustomerEmail, &phone, &o.ShippingAddr, &o.BillingAddr,
		&token, &carrier, &trackNo, &trackURL, &shippedAt, &deliveredAt,
		&debugJSON, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.UserID = userID.String
	o.CustomerPhone = phone.String
	o.PaymentToken = token.String
	o.Carrier = carrier.String
	o.TrackingNumber = trackNo.String
	o.TrackingURL = trackURL.String
	if shippedAt.Valid {
		t := shippedAt.Time
		o.ShippedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	if debugJSON.Valid && debugJSON.String != "" {
		_ = json.Unmarshal([]byte(debugJSON.String), &o.PaymentDebug)
	}
	return &o, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *orderRepo) Create(ctx context.Context, tx *sql.Tx, o *entity.Order) error {
	debug, err := json.Marshal(o.PaymentDebug)
	if err != nil {
		return err
	}
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		o.ID, nullStr(o.UserID), o.ConversationID, o.Status, o.PaymentStatus, o.TotalMinor, o.Currency,
		o.CustomerName, o.CustomerEmail, nullStr(o.CustomerPhone), o.ShippingAddr, o.BillingAddr,
		nullStr(o.PaymentToken), nullStr(o.Carrier), nullStr(o.TrackingNumber), nullStr(o.TrackingURL),
		o.ShippedAt, o.DeliveredAt, string(debug), o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (r *orderRepo) InsertItems(ctx context.Context, tx *sql.Tx, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO order_items (order_id, product_id, quantity, unit_minor, line_minor, product_name, product_image) VALUES `
	var values []any
	for _, it := range items {
		query += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, it.OrderID, it.ProductID, it.Quantity, it.UnitMinor, it.LineMinor, it.ProductName, nullStr(it.ProductImage))
	}
	query = query[:len(query)-1]
	_, err := tx.ExecContext(ctx, query, values...)
	return err
}

func (r *orderRepo) findOne(ctx context.Context, where string, arg any) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *orderRepo) FindByConversationID(ctx context.Context, cid string) (*entity.Order, error) {
	return r.findOne(ctx, "conversation_id = ?", cid)
}

func (r *orderRepo) FindByTracking(ctx context.Context, trackingNumber string) (*entity.Order, error) {
	return r.findOne(ctx, "tracking_number = ?", trackingNumber)
}

func (r *orderRepo) ItemsByOrder(ctx context.Context, orderID string) ([]entity.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_minor, line_minor, product_name, product_image
		 FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entity.OrderItem
	for rows.Next() {
		var it entity.OrderItem
		var image sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitMinor, &it.LineMinor, &it.ProductName, &image); err != nil {
			return nil, err
		}
		it.ProductImage = image.String
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *orderRepo) SetPaymentToken(ctx context.Context, id, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now(), id)
	return err
}

func (r *orderRepo) UpdateStatusIf(ctx context.Context, id string, from, to entity.OrderStatus, debug *entity.PaymentDebug) (bool, error) {
	var res sql.Result
	var err error
	if debug != nil {
		var raw []byte
		raw, err = json.Marshal(debug)
		if err != nil {
			return false, err
		}
		res, err = r.db.ExecContext(ctx,
			`UPDATE orders SET status = ?, payment_debug = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, string(raw), time.Now(), id, from)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, time.Now(), id, from)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *orderRepo) ResolvePayment(ctx context.Context, id string, paid bool, debug entity.PaymentDebug) (bool, error) {
	raw, err := json.Marshal(debug)
	if err != nil {
		return false, err
	}
	status, payment := entity.OrderFailed, entity.PaymentUnpaid
	if paid {
		status, payment = entity.OrderPaid, entity.PaymentPaid
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, payment_status = ?, payment_debug = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, payment, string(raw), time.Now(), id, entity.OrderPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *orderRepo) UpdateRefund(ctx context.Context, id string, ps entity.PaymentStatus, st entity.OrderStatus, debug entity.PaymentDebug) error {
	raw, err := json.Marshal(debug)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE orders SET payment_status = ?, status = ?, payment_debug = ?, updated_at = ? WHERE id = ?`,
		ps, st, string(raw), time.Now(), id)
	return err
}

func (r *orderRepo) UpdateShipping(ctx context.Context, id string, patch ShippingPatch) (*entity.Order, error) {
	query := `UPDATE orders SET updated_at = ?`
	args := []any{time.Now()}
	if patch.Status != nil {
		query += `, status = ?`
		args = append(args, *patch.Status)
	}
	if patch.Carrier != "" {
		query += `, carrier = ?`
		args = append(args, patch.Carrier)
	}
	if patch.TrackingNumber != "" {
		query += `, tracking_number = ?`
		args = append(args, patch.TrackingNumber)
	}
	if patch.TrackingURL != "" {
		query += `, tracking_url = ?`
		args = append(args, patch.TrackingURL)
	}
	if patch.ShippedAt != nil {
		query += `, shipped_at = COALESCE(shipped_at, ?)`
		args = append(args, *patch.ShippedAt)
	}
	if patch.DeliveredAt != nil {
		query += `, delivered_at = COALESCE(delivered_at, ?)`
		args = append(args, *patch.DeliveredAt)
	}
	query += ` WHERE id = ?`
	args = append(args, id)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *orderRepo) FindStalePending(ctx context.Context, before time.Time, withToken bool, limit int) ([]entity.Order, error) {
	tokenCond := "payment_token IS NULL"
	if withToken {
		tokenCond = "payment_token IS NOT NULL"
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND created_at < ? AND `+tokenCond+` LIMIT ?`,
		entity.OrderPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
