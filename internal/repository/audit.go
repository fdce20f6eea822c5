package repository

import (
	"context"
	"database/sql"
	"time"
)

// AuditRepo appends to the refund-event and notification-send logs. Both are
// best-effort: callers log append failures and move on.
type AuditRepo interface {
	AppendRefundEvent(ctx context.Context, orderID string, amountMinor int64, refundType, transactionID, reason string) error
	AppendNotification(ctx context.Context, channel, recipient, template string, ok bool, note string) error
}

type auditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) AuditRepo {
	return &auditRepo{db: db}
}

func (r *auditRepo) AppendRefundEvent(ctx context.Context, orderID string, amountMinor int64, refundType, transactionID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refund_events (order_id, amount_minor, refund_type, transaction_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		orderID, amountMinor, refundType, nullStr(transactionID), nullStr(reason), time.Now())
	return err
}

func (r *auditRepo) AppendNotification(ctx context.Context, channel, recipient, template string, ok bool, note string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_log (channel, recipient, template, ok, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		channel, recipient, nullStr(template), ok, nullStr(note), time.Now())
	return err
}
