package db

import (
	"context"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertDelivery = `INSERT INTO delivery_queue(id, sender_id, inbox_uri, activity_json, attempts, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, sender_id, inbox_uri, activity_json, attempts, next_retry_at, created_at
		FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery        = `DELETE FROM delivery_queue WHERE id = ?`
)

// EnqueueDelivery adds one (activity, inbox) pair to the queue, due immediately.
func (db *DB) EnqueueDelivery(ctx context.Context, item *domain.DeliveryQueueItem) error {
	if item.Id == uuid.Nil {
		item.Id = uuid.New()
	}
	stamp(&item.CreatedAt, &item.NextRetryAt)
	_, err := db.db.ExecContext(ctx, sqlInsertDelivery,
		item.Id, item.SenderId, item.InboxURI, item.ActivityJSON, item.Attempts, item.NextRetryAt, item.CreatedAt)
	return errors.WithStack(err)
}

// ReadPendingDeliveries returns up to limit items whose retry time has passed.
func (db *DB) ReadPendingDeliveries(ctx context.Context, limit int) ([]domain.DeliveryQueueItem, error) {
	var items []domain.DeliveryQueueItem
	if err := db.db.SelectContext(ctx, &items, sqlSelectPendingDeliveries, now(), limit); err != nil {
		return nil, errors.WithStack(err)
	}
	return items, nil
}

func (db *DB) UpdateDeliveryAttempt(ctx context.Context, id uuid.UUID, attempts int, nextRetry time.Time) error {
	_, err := db.db.ExecContext(ctx, sqlUpdateDeliveryAttempt, attempts, nextRetry.UTC(), id)
	return errors.WithStack(err)
}

func (db *DB) DeleteDelivery(ctx context.Context, id uuid.UUID) error {
	_, err := db.db.ExecContext(ctx, sqlDeleteDelivery, id)
	return errors.WithStack(err)
}
