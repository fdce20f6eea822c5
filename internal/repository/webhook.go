package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"order-pipeline/internal/entity"
)

// WebhookEventRepo is the durable dedup gate plus append-only journal for
// carrier deliveries. Claim inserts the event id first; losing the race (or a
// redelivery) reports duplicate so the caller can ack without reapplying.
type WebhookEventRepo interface {
	Claim(ctx context.Context, source, eventID string) (duplicate bool, err error)
	// Release frees a claim whose processing failed, so the carrier's retry of
	// the same event id is not answered as a duplicate. Journaled (processed)
	// claims are never released.
	Release(ctx context.Context, source, eventID string) error
	Journal(ctx context.Context, ev entity.WebhookEvent) error
}

type webhookEventRepo struct {
	db *sql.DB
}

func NewWebhookEventRepo(db *sql.DB) WebhookEventRepo {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Claim(ctx context.Context, source, eventID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO webhook_events (event_id, source, received_at) VALUES (?, ?, ?)`,
		eventID, source, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (r *webhookEventRepo) Release(ctx context.Context, source, eventID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE event_id = ? AND source = ? AND processed_at IS NULL`,
		eventID, source)
	return err
}

func (r *webhookEventRepo) Journal(ctx context.Context, ev entity.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events
		 SET order_id = ?, return_id = ?, carrier = ?, status_raw = ?, status_mapped = ?, body_hash = ?, processed_at = ?
		 WHERE event_id = ? AND source = ?`,
		nullStr(ev.OrderID), nullStr(ev.ReturnID), nullStr(ev.Carrier), nullStr(ev.StatusRaw), nullStr(ev.StatusMapped),
		ev.BodyHash, ev.ProcessedAt, ev.EventID, ev.Source)
	return err
}

// ReturnRepo mutates reverse-logistics records.
type ReturnRepo interface {
	FindByID(ctx context.Context, id string) (*entity.Return, error)
	LatestByOrder(ctx context.Context, orderID string) (*entity.Return, error)
	// UpdateStatusIf writes the status only while the row still holds the
	// expected one; received_at is set once.
	UpdateStatusIf(ctx context.Context, id string, from, to entity.ReturnStatus, receivedAt *time.Time) (bool, error)
}

type returnRepo struct {
	db *sql.DB
}

func NewReturnRepo(db *sql.DB) ReturnRepo {
	return &returnRepo{db: db}
}

func (r *returnRepo) scanReturn(row *sql.Row) (*entity.Return, error) {
	var ret entity.Return
	var carrier, tracking sql.NullString
	var receivedAt sql.NullTime
	err := row.Scan(&ret.ID, &ret.OrderID, &ret.Status, &carrier, &tracking, &receivedAt, &ret.CreatedAt, &ret.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ret.Carrier = carrier.String
	ret.TrackingNumber = tracking.String
	if receivedAt.Valid {
		t := receivedAt.Time
		ret.ReceivedAt = &t
	}
	return &ret, nil
}

const returnColumns = `id, order_id, status, carrier, tracking_number, received_at, created_at, updated_at`

func (r *returnRepo) FindByID(ctx context.Context, id string) (*entity.Return, error) {
	return r.scanReturn(r.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = ?`, id))
}

func (r *returnRepo) LatestByOrder(ctx context.Context, orderID string) (*entity.Return, error) {
	return r.scanReturn(r.db.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM returns WHERE order_id = ? ORDER BY created_at DESC LIMIT 1`, orderID))
}

func (r *returnRepo) UpdateStatusIf(ctx context.Context, id string, from, to entity.ReturnStatus, receivedAt *time.Time) (bool, error) {
	query := `UPDATE returns SET status = ?, updated_at = ?`
	args := []any{to, time.Now()}
	if receivedAt != nil {
		query += `, received_at = COALESCE(received_at, ?)`
		args = append(args, *receivedAt)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, from)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
