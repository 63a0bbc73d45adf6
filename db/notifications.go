package db

import (
	"context"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

const (
	sqlInsertNotification = `INSERT INTO notifications(id, actor_id, receiver_id, post_id, kind, published)
		VALUES (?, ?, ?, ?, ?, ?)`
	// post_id IS ? matches NULL against a NULL argument.
	sqlDeleteNotification = `DELETE FROM notifications
		WHERE actor_id = ? AND receiver_id = ? AND post_id IS ? AND kind = ?`
	sqlSelectNotifications = `SELECT id, actor_id, receiver_id, COALESCE(post_id, '') AS post_id, kind, published
		FROM notifications WHERE receiver_id = ? ORDER BY id DESC LIMIT ?`
)

// CreateNotification inserts n, assigning a sortable id when empty.
func (db *DB) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.Id == "" {
		n.Id = util.NewID()
	}
	stamp(&n.Published)
	_, err := db.db.ExecContext(ctx, sqlInsertNotification,
		n.Id, n.ActorId, n.ReceiverId, nullable(n.PostId), n.Kind, n.Published)
	return errors.WithStack(err)
}

// DeleteNotification removes notifications matching the key tuple; postID
// may be empty. Missing rows are not an error.
func (db *DB) DeleteNotification(ctx context.Context, actorID, receiverID, postID string, kind domain.NotificationKind) (bool, error) {
	res, err := db.db.ExecContext(ctx, sqlDeleteNotification, actorID, receiverID, nullable(postID), kind)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

// Notifications returns the newest notifications of receiverID.
func (db *DB) Notifications(ctx context.Context, receiverID string, limit int) ([]domain.Notification, error) {
	var ns []domain.Notification
	if err := db.db.SelectContext(ctx, &ns, sqlSelectNotifications, receiverID, limit); err != nil {
		return nil, errors.WithStack(err)
	}
	return ns, nil
}
