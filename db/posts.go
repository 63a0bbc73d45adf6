package db

import (
	"context"
	"database/sql"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
	"github.com/jmoiron/sqlx"
)

// ErrForeignPost is returned when an upsert targets an ap_id owned by another author.
var ErrForeignPost = errors.NewPlain("post belongs to another author")

const (
	postColumns = `id, ap_id, author_id, content, content_warning, sensitive, url, in_reply_to_uri,
		visibility, local_only, published, updated`

	sqlUpsertPost = `INSERT INTO posts(` + postColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ap_id) DO UPDATE SET
			content = excluded.content,
			content_warning = excluded.content_warning,
			sensitive = excluded.sensitive,
			url = excluded.url,
			visibility = excluded.visibility,
			updated = excluded.updated
		WHERE posts.author_id = excluded.author_id
		RETURNING id`

	sqlSelectPostById   = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	sqlSelectPostByAPId = `SELECT ` + postColumns + ` FROM posts WHERE ap_id = ?`
	sqlDeletePostById   = `DELETE FROM posts WHERE id = ?`

	sqlInsertMention = `INSERT INTO post_mentions(post_id, user_id) VALUES (?, ?)
		ON CONFLICT(post_id, user_id) DO NOTHING`
	sqlSelectMentionedUsers = `SELECT u.id, u.ap_id, u.local, u.name, u.instance, u.display_name, u.bio, u.inbox_uri,
		u.shared_inbox_uri, u.outbox_uri, u.followers_uri, u.public_key, u.private_key,
		u.manually_approves_followers, u.bot, u.published, u.updated, u.last_fetched_at
		FROM post_mentions m INNER JOIN users u ON u.id = m.user_id
		WHERE m.post_id = ? ORDER BY u.ap_id`
)

// UpsertPost stores a post keyed by ap_id, so a redelivered Create or an
// edit updates the existing row. It returns the stored post.
func (db *DB) UpsertPost(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if p.Id == "" {
		p.Id = util.NewID()
	}
	if p.Visibility == "" {
		p.Visibility = domain.VisibilityPublic
	}
	stamp(&p.Published, &p.Updated)

	var id string
	err := db.db.GetContext(ctx, &id, sqlUpsertPost,
		p.Id, p.APId, p.AuthorId, p.Content, p.ContentWarning, p.Sensitive, p.URL, p.InReplyToURI,
		p.Visibility, p.LocalOnly, p.Published, p.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrForeignPost
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return db.PostById(ctx, id)
}

func (db *DB) PostById(ctx context.Context, id string) (*domain.Post, error) {
	return db.getPost(ctx, sqlSelectPostById, id)
}

func (db *DB) PostByAPId(ctx context.Context, apID string) (*domain.Post, error) {
	return db.getPost(ctx, sqlSelectPostByAPId, apID)
}

func (db *DB) getPost(ctx context.Context, query string, arg any) (*domain.Post, error) {
	var p domain.Post
	err := db.db.GetContext(ctx, &p, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &p, nil
}

// DeletePost removes the post with apID when authorID wrote it and returns
// the deleted row. Likes, boosts, mentions and notifications cascade.
func (db *DB) DeletePost(ctx context.Context, apID, authorID string) (*domain.Post, error) {
	var deleted *domain.Post
	err := db.wrapTransaction(ctx, func(tx *sqlx.Tx) error {
		var p domain.Post
		err := tx.GetContext(ctx, &p, sqlSelectPostByAPId, apID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if p.AuthorId != authorID {
			return ErrForeignPost
		}
		if _, err := tx.ExecContext(ctx, sqlDeletePostById, p.Id); err != nil {
			return errors.WithStack(err)
		}
		deleted = &p
		return nil
	})
	return deleted, err
}

// CreateMention reports whether the mention is new.
func (db *DB) CreateMention(ctx context.Context, postID, userID string) (bool, error) {
	res, err := db.db.ExecContext(ctx, sqlInsertMention, postID, userID)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return inserted(res)
}

func (db *DB) MentionedUsers(ctx context.Context, postID string) ([]domain.User, error) {
	var users []domain.User
	if err := db.db.SelectContext(ctx, &users, sqlSelectMentionedUsers, postID); err != nil {
		return nil, errors.WithStack(err)
	}
	return users, nil
}
