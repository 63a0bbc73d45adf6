package db

import (
	"context"
	"database/sql"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

const (
	sqlInsertSession       = `INSERT INTO sessions(token, user_id, created_at) VALUES (?, ?, ?)`
	sqlSelectSessionUserId = `SELECT user_id FROM sessions WHERE token = ?`
)

// CreateSession issues a new bearer token for a local user.
func (db *DB) CreateSession(ctx context.Context, userID string) (*domain.Session, error) {
	s := &domain.Session{Token: util.RandomToken(32), UserId: userID, CreatedAt: now()}
	if _, err := db.db.ExecContext(ctx, sqlInsertSession, s.Token, s.UserId, s.CreatedAt); err != nil {
		return nil, errors.WithStack(err)
	}
	return s, nil
}

// UserIdByToken resolves a bearer token to its user.
func (db *DB) UserIdByToken(ctx context.Context, token string) (string, error) {
	var userID string
	err := db.db.GetContext(ctx, &userID, sqlSelectSessionUserId, token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	return userID, errors.WithStack(err)
}
