package db

import (
	"context"
	"database/sql"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/jmoiron/sqlx"
)

// A pair never holds a request and a confirmed follow at once: confirming
// deletes the request in the same transaction, and a request is not
// recorded while the follow exists.
const (
	sqlInsertFollowRequest = `INSERT INTO follow_requests(follower_id, followed_id, ap_id, published)
		SELECT ?, ?, ?, ? WHERE NOT EXISTS (
			SELECT 1 FROM followers WHERE follower_id = ? AND followed_id = ?)
		ON CONFLICT(follower_id, followed_id) DO NOTHING`
	sqlInsertFollower = `INSERT INTO followers(follower_id, followed_id, ap_id, published) VALUES (?, ?, ?, ?)
		ON CONFLICT(follower_id, followed_id) DO NOTHING`

	sqlDeleteFollowRequest = `DELETE FROM follow_requests WHERE follower_id = ? AND followed_id = ?`
	sqlDeleteFollower      = `DELETE FROM followers WHERE follower_id = ? AND followed_id = ?`

	sqlSelectFollowRequest = `SELECT follower_id, followed_id, COALESCE(ap_id, '') AS ap_id, published
		FROM follow_requests WHERE follower_id = ? AND followed_id = ?`
	sqlSelectFollower = `SELECT follower_id, followed_id, COALESCE(ap_id, '') AS ap_id, published
		FROM followers WHERE follower_id = ? AND followed_id = ?`
)

// CreateFollowRequest records a pending follow. It reports false when the
// request already exists or the follower already follows.
func (db *DB) CreateFollowRequest(ctx context.Context, req *domain.FollowRequest) (bool, error) {
	stamp(&req.Published)
	res, err := db.db.ExecContext(ctx, sqlInsertFollowRequest,
		req.FollowerId, req.FollowedId, nullable(req.APId), req.Published,
		req.FollowerId, req.FollowedId)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

// CreateFollower confirms a follow, dropping any pending request for the
// pair. It reports whether the follow edge is new.
func (db *DB) CreateFollower(ctx context.Context, edge *domain.FollowEdge) (bool, error) {
	stamp(&edge.Published)
	var created bool
	err := db.wrapTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlDeleteFollowRequest, edge.FollowerId, edge.FollowedId); err != nil {
			return errors.WithStack(err)
		}
		res, err := tx.ExecContext(ctx, sqlInsertFollower, edge.FollowerId, edge.FollowedId, nullable(edge.APId), edge.Published)
		if err != nil {
			return errors.WithStack(err)
		}
		created, err = inserted(res)
		return err
	})
	return created, err
}

// PromoteFollowRequest turns a pending request into a follow. Nothing
// happens when no request exists; the result reports whether one did.
func (db *DB) PromoteFollowRequest(ctx context.Context, followerID, followedID string) (bool, error) {
	var promoted bool
	err := db.wrapTransaction(ctx, func(tx *sqlx.Tx) error {
		var req domain.FollowRequest
		err := tx.GetContext(ctx, &req, sqlSelectFollowRequest, followerID, followedID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}

		res, err := tx.ExecContext(ctx, sqlDeleteFollowRequest, followerID, followedID)
		if err != nil {
			return errors.WithStack(err)
		}
		if promoted, err = inserted(res); err != nil || !promoted {
			return err
		}

		_, err = tx.ExecContext(ctx, sqlInsertFollower, followerID, followedID, nullable(req.APId), now())
		return errors.WithStack(err)
	})
	return promoted, err
}

// DeleteFollowRequest is idempotent; the result reports whether a row was removed.
func (db *DB) DeleteFollowRequest(ctx context.Context, followerID, followedID string) (bool, error) {
	return db.deletePair(ctx, sqlDeleteFollowRequest, followerID, followedID)
}

// DeleteFollower is idempotent; the result reports whether a row was removed.
func (db *DB) DeleteFollower(ctx context.Context, followerID, followedID string) (bool, error) {
	return db.deletePair(ctx, sqlDeleteFollower, followerID, followedID)
}

// DeleteFollowEdges clears both the request and the follow for the pair.
func (db *DB) DeleteFollowEdges(ctx context.Context, followerID, followedID string) error {
	return db.wrapTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlDeleteFollowRequest, followerID, followedID); err != nil {
			return errors.WithStack(err)
		}
		_, err := tx.ExecContext(ctx, sqlDeleteFollower, followerID, followedID)
		return errors.WithStack(err)
	})
}

func (db *DB) deletePair(ctx context.Context, query string, a, b string) (bool, error) {
	res, err := db.db.ExecContext(ctx, query, a, b)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

func (db *DB) FollowRequest(ctx context.Context, followerID, followedID string) (*domain.FollowRequest, error) {
	var req domain.FollowRequest
	err := db.db.GetContext(ctx, &req, sqlSelectFollowRequest, followerID, followedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &req, nil
}

func (db *DB) Follower(ctx context.Context, followerID, followedID string) (*domain.FollowEdge, error) {
	var edge domain.FollowEdge
	err := db.db.GetContext(ctx, &edge, sqlSelectFollower, followerID, followedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &edge, nil
}
