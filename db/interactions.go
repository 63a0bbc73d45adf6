package db

import (
	"context"
	"database/sql"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

const (
	sqlInsertLike = `INSERT INTO likes(actor_id, post_id, ap_id, published) VALUES (?, ?, ?, ?)
		ON CONFLICT(actor_id, post_id) DO NOTHING`
	sqlDeleteLike = `DELETE FROM likes WHERE actor_id = ? AND post_id = ?`
	sqlSelectLike = `SELECT actor_id, post_id, COALESCE(ap_id, '') AS ap_id, published
		FROM likes WHERE actor_id = ? AND post_id = ?`
	sqlCountLikes = `SELECT COUNT(*) FROM likes WHERE post_id = ?`

	// Both the ap_id and the (actor, post) pair are unique; either conflict is a redelivery.
	sqlInsertBoost = `INSERT INTO boosts(id, ap_id, post_id, actor_id, visibility, published)
		VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`
	sqlDeleteBoost = `DELETE FROM boosts WHERE actor_id = ? AND post_id = ?`
	sqlSelectBoost = `SELECT id, ap_id, post_id, actor_id, visibility, published
		FROM boosts WHERE actor_id = ? AND post_id = ?`
	sqlCountBoosts = `SELECT COUNT(*) FROM boosts WHERE post_id = ?`
)

// CreateLike reports whether the like is new.
func (db *DB) CreateLike(ctx context.Context, like *domain.Like) (bool, error) {
	stamp(&like.Published)
	res, err := db.db.ExecContext(ctx, sqlInsertLike, like.ActorId, like.PostId, nullable(like.APId), like.Published)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

func (db *DB) DeleteLike(ctx context.Context, actorID, postID string) (bool, error) {
	return db.deletePair(ctx, sqlDeleteLike, actorID, postID)
}

func (db *DB) Like(ctx context.Context, actorID, postID string) (*domain.Like, error) {
	var like domain.Like
	err := db.db.GetContext(ctx, &like, sqlSelectLike, actorID, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &like, nil
}

func (db *DB) CountLikes(ctx context.Context, postID string) (int, error) {
	var n int
	err := db.db.GetContext(ctx, &n, sqlCountLikes, postID)
	return n, errors.WithStack(err)
}

// CreateBoost reports whether the boost is new.
func (db *DB) CreateBoost(ctx context.Context, boost *domain.Boost) (bool, error) {
	if boost.Id == "" {
		boost.Id = util.NewID()
	}
	stamp(&boost.Published)
	res, err := db.db.ExecContext(ctx, sqlInsertBoost,
		boost.Id, boost.APId, boost.PostId, boost.ActorId, boost.Visibility, boost.Published)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

func (db *DB) DeleteBoost(ctx context.Context, actorID, postID string) (bool, error) {
	return db.deletePair(ctx, sqlDeleteBoost, actorID, postID)
}

func (db *DB) Boost(ctx context.Context, actorID, postID string) (*domain.Boost, error) {
	var boost domain.Boost
	err := db.db.GetContext(ctx, &boost, sqlSelectBoost, actorID, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &boost, nil
}

func (db *DB) CountBoosts(ctx context.Context, postID string) (int, error) {
	var n int
	err := db.db.GetContext(ctx, &n, sqlCountBoosts, postID)
	return n, errors.WithStack(err)
}
