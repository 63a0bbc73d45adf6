package db

import (
	"context"
	"database/sql"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

const (
	userColumns = `id, ap_id, local, name, instance, display_name, bio, inbox_uri, shared_inbox_uri,
		outbox_uri, followers_uri, public_key, private_key, manually_approves_followers, bot,
		published, updated, last_fetched_at`

	sqlInsertLocalUser = `INSERT INTO users(` + userColumns + `) VALUES (
		:id, :ap_id, 1, :name, :instance, :display_name, :bio, :inbox_uri, :shared_inbox_uri,
		:outbox_uri, :followers_uri, :public_key, :private_key, :manually_approves_followers, :bot,
		:published, :updated, :last_fetched_at)`

	// Profile refreshes never touch local accounts.
	sqlUpsertRemoteUser = `INSERT INTO users(` + userColumns + `) VALUES (
		:id, :ap_id, 0, :name, :instance, :display_name, :bio, :inbox_uri, :shared_inbox_uri,
		:outbox_uri, :followers_uri, :public_key, '', :manually_approves_followers, :bot,
		:published, :updated, :last_fetched_at)
		ON CONFLICT(ap_id) DO UPDATE SET
			name = excluded.name,
			instance = excluded.instance,
			display_name = excluded.display_name,
			bio = excluded.bio,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			outbox_uri = excluded.outbox_uri,
			followers_uri = excluded.followers_uri,
			public_key = excluded.public_key,
			manually_approves_followers = excluded.manually_approves_followers,
			bot = excluded.bot,
			updated = excluded.updated,
			last_fetched_at = excluded.last_fetched_at
		WHERE users.local = 0`

	sqlUpdateLocalProfile = `UPDATE users SET display_name = ?, bio = ?, manually_approves_followers = ?, updated = ?
		WHERE id = ? AND local = 1`

	sqlSelectUserById        = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	sqlSelectUserByAPId      = `SELECT ` + userColumns + ` FROM users WHERE ap_id = ?`
	sqlSelectLocalUserByName = `SELECT ` + userColumns + ` FROM users WHERE name = ? AND local = 1`
	sqlDeleteRemoteUser      = `DELETE FROM users WHERE ap_id = ? AND local = 0`

	sqlSelectLocalFollowers = `SELECT u.id, u.ap_id, u.local, u.name, u.instance, u.display_name, u.bio, u.inbox_uri,
		u.shared_inbox_uri, u.outbox_uri, u.followers_uri, u.public_key, u.private_key,
		u.manually_approves_followers, u.bot, u.published, u.updated, u.last_fetched_at
		FROM followers f INNER JOIN users u ON u.id = f.follower_id
		WHERE f.followed_id = ? AND u.local = 1`

	// One row per distinct endpoint so accounts sharing an inbox get one copy.
	sqlSelectFollowerInboxes = `SELECT DISTINCT COALESCE(NULLIF(u.shared_inbox_uri, ''), u.inbox_uri)
		FROM followers f INNER JOIN users u ON u.id = f.follower_id
		WHERE f.followed_id = ? AND u.local = 0`
)

// CreateLocalUser inserts a local account. Id and timestamps are filled in when empty.
func (db *DB) CreateLocalUser(ctx context.Context, u *domain.User) error {
	if u.Id == "" {
		u.Id = util.NewID()
	}
	u.Local = true
	stamp(&u.Published, &u.Updated, &u.LastFetchedAt)

	_, err := db.db.NamedExecContext(ctx, sqlInsertLocalUser, u)
	return errors.WithStack(err)
}

// UpsertRemoteUser inserts or refreshes the cached profile of a remote
// actor keyed by ap_id and returns the stored row.
func (db *DB) UpsertRemoteUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u.Id == "" {
		u.Id = util.NewID()
	}
	u.LastFetchedAt = now()
	stamp(&u.Published, &u.Updated)

	if _, err := db.db.NamedExecContext(ctx, sqlUpsertRemoteUser, u); err != nil {
		return nil, errors.WithStack(err)
	}
	return db.UserByAPId(ctx, u.APId)
}

func (db *DB) UpdateLocalProfile(ctx context.Context, u *domain.User) error {
	u.Updated = now()
	res, err := db.db.ExecContext(ctx, sqlUpdateLocalProfile, u.DisplayName, u.Bio, u.ManuallyApprovesFollowers, u.Updated, u.Id)
	if err != nil {
		return errors.WithStack(err)
	}
	ok, err := inserted(res)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	return nil
}

func (db *DB) UserById(ctx context.Context, id string) (*domain.User, error) {
	return db.getUser(ctx, sqlSelectUserById, id)
}

func (db *DB) UserByAPId(ctx context.Context, apID string) (*domain.User, error) {
	return db.getUser(ctx, sqlSelectUserByAPId, apID)
}

func (db *DB) LocalUserByName(ctx context.Context, name string) (*domain.User, error) {
	return db.getUser(ctx, sqlSelectLocalUserByName, name)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := db.db.GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &u, nil
}

// DeleteRemoteUser removes a cached remote actor; edges, posts and
// notifications referencing it cascade.
func (db *DB) DeleteRemoteUser(ctx context.Context, apID string) (bool, error) {
	res, err := db.db.ExecContext(ctx, sqlDeleteRemoteUser, apID)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

// LocalFollowers lists the local users following userID.
func (db *DB) LocalFollowers(ctx context.Context, userID string) ([]domain.User, error) {
	var users []domain.User
	if err := db.db.SelectContext(ctx, &users, sqlSelectLocalFollowers, userID); err != nil {
		return nil, errors.WithStack(err)
	}
	return users, nil
}

// FollowerInboxes returns the distinct preferred inboxes of userID's remote followers.
func (db *DB) FollowerInboxes(ctx context.Context, userID string) ([]string, error) {
	var inboxes []string
	if err := db.db.SelectContext(ctx, &inboxes, sqlSelectFollowerInboxes, userID); err != nil {
		return nil, errors.WithStack(err)
	}
	return inboxes, nil
}
