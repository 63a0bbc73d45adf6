package db

import (
	"context"

	"emperror.dev/errors"
	"github.com/jmoiron/sqlx"
)

const (
	sqlCreateUsersTable = `CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		ap_id TEXT NOT NULL UNIQUE,
		local INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		instance TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT NOT NULL DEFAULT '',
		outbox_uri TEXT NOT NULL DEFAULT '',
		followers_uri TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		private_key TEXT NOT NULL DEFAULT '',
		manually_approves_followers INTEGER NOT NULL DEFAULT 0,
		bot INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateUsersIndices = `
		CREATE INDEX IF NOT EXISTS idx_users_local ON users(local);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_local_name ON users(name) WHERE local = 1;
	`

	sqlCreatePostsTable = `CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		ap_id TEXT NOT NULL UNIQUE,
		author_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		content_warning TEXT NOT NULL DEFAULT '',
		sensitive INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		in_reply_to_uri TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		local_only INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreatePostsIndices = `
		CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
		CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published DESC);
	`

	sqlCreatePostMentionsTable = `CREATE TABLE IF NOT EXISTS post_mentions (
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (post_id, user_id)
	)`

	sqlCreateFollowRequestsTable = `CREATE TABLE IF NOT EXISTS follow_requests (
		follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		followed_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ap_id TEXT,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (follower_id, followed_id)
	)`

	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		followed_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ap_id TEXT,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (follower_id, followed_id)
	)`

	sqlCreateFollowIndices = `
		CREATE INDEX IF NOT EXISTS idx_follow_requests_followed_id ON follow_requests(followed_id);
		CREATE INDEX IF NOT EXISTS idx_followers_followed_id ON followers(followed_id);
	`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes (
		actor_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		ap_id TEXT,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (actor_id, post_id)
	)`

	sqlCreateBoostsTable = `CREATE TABLE IF NOT EXISTS boosts (
		id TEXT NOT NULL PRIMARY KEY,
		ap_id TEXT NOT NULL UNIQUE,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		actor_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		visibility TEXT NOT NULL,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_id, post_id)
	)`

	sqlCreateInteractionIndices = `
		CREATE INDEX IF NOT EXISTS idx_likes_post_id ON likes(post_id);
		CREATE INDEX IF NOT EXISTS idx_boosts_post_id ON boosts(post_id);
	`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		actor_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		post_id TEXT REFERENCES posts(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		published TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_receiver_id ON notifications(receiver_id, id DESC);
		CREATE INDEX IF NOT EXISTS idx_notifications_key ON notifications(actor_id, receiver_id, kind);
	`

	// Dedup ledger, append-only
	sqlCreateReceivedActivitiesTable = `CREATE TABLE IF NOT EXISTS received_activities (
		ap_id TEXT NOT NULL PRIMARY KEY,
		received_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`

	sqlCreateSessionsTable = `CREATE TABLE IF NOT EXISTS sessions (
		token TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"users", sqlCreateUsersTable},
	{"users indices", sqlCreateUsersIndices},
	{"posts", sqlCreatePostsTable},
	{"posts indices", sqlCreatePostsIndices},
	{"post_mentions", sqlCreatePostMentionsTable},
	{"follow_requests", sqlCreateFollowRequestsTable},
	{"followers", sqlCreateFollowersTable},
	{"follow indices", sqlCreateFollowIndices},
	{"likes", sqlCreateLikesTable},
	{"boosts", sqlCreateBoostsTable},
	{"interaction indices", sqlCreateInteractionIndices},
	{"notifications", sqlCreateNotificationsTable},
	{"notifications indices", sqlCreateNotificationsIndices},
	{"received_activities", sqlCreateReceivedActivitiesTable},
	{"delivery_queue", sqlCreateDeliveryQueueTable},
	{"delivery_queue indices", sqlCreateDeliveryQueueIndices},
	{"sessions", sqlCreateSessionsTable},
}

// RunMigrations creates every table and index that does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Debug().Msg("Running database migrations...")
	return db.wrapTransaction(ctx, func(tx *sqlx.Tx) error {
		for _, m := range migrations {
			if err := createTableIfNotExists(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func createTableIfNotExists(ctx context.Context, tx *sqlx.Tx, m migration) error {
	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return errors.Wrapf(err, "failed to create %s", m.name)
	}
	return nil
}
