package activitypub

import (
	"context"
	"fmt"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
)

const (
	maxContentLength = 500000
	maxSummaryLength = 1000
)

// noteRefs is the resolved author and mentioned actors of a note.
type noteRefs struct {
	author    *domain.User
	mentioned []domain.User
}

// verifyNote checks that actor wrote note and hosts it, then resolves the
// author and the mentions. Mentions that cannot be resolved are skipped.
func (in *Inbox) verifyNote(ctx context.Context, op string, actor IRI, note *Note, refs *noteRefs) (err error) {
	if note.AttributedTo != actor {
		return domain.Verification(op, errors.Errorf("note attributed to %s, sent by %s", note.AttributedTo, actor))
	}
	if !sameHost(note.ID, actor.String()) {
		return domain.Verification(op, errors.Errorf("note %s is not hosted by %s", note.ID, actor))
	}
	if utf8.RuneCountInString(note.Content) > maxContentLength {
		return domain.Verification(op, errors.New("content too long"))
	}
	if utf8.RuneCountInString(note.Summary) > maxSummaryLength {
		return domain.Verification(op, errors.New("summary too long"))
	}

	if refs.author, err = in.actors.Resolve(ctx, actor.String()); err != nil {
		return err
	}
	existing, err := in.actors.LookupPost(ctx, note.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.AuthorId != refs.author.Id {
		return domain.Verification(op, db.ErrForeignPost)
	}
	for _, href := range mentionHrefs(note.Tag) {
		user, err := in.actors.Resolve(ctx, href)
		if err != nil {
			in.log.Warn().Err(err).Str("mention", href).Str("note", note.ID).Msg("Inbox: Skipping unresolvable mention")
			continue
		}
		refs.mentioned = append(refs.mentioned, *user)
	}
	return nil
}

func (c *Create) Verify(ctx context.Context, in *Inbox) error {
	return in.verifyNote(ctx, "create", c.Actor, &c.Object, &c.refs)
}

// Receive stores the note and its mentions. Redelivery under a new
// activity id updates the same row.
func (c *Create) Receive(ctx context.Context, in *Inbox) error {
	post, err := in.storeNote(ctx, &c.Object, &c.refs)
	if err != nil {
		return err
	}
	return in.notifier.FanOutPost(ctx, c.refs.author, post, c.refs.mentioned)
}

func (u *UpdateNote) Verify(ctx context.Context, in *Inbox) error {
	return in.verifyNote(ctx, "update note", u.Actor, &u.Object, &u.refs)
}

func (u *UpdateNote) Receive(ctx context.Context, in *Inbox) error {
	post, err := in.storeNote(ctx, &u.Object, &u.refs)
	if err != nil {
		return err
	}
	return in.notifier.FanOutEdit(ctx, u.refs.author, post, u.refs.mentioned)
}

// storeNote upserts note and records a mention edge for every resolved
// mention, notifying local users the first time they are mentioned.
func (in *Inbox) storeNote(ctx context.Context, note *Note, refs *noteRefs) (*domain.Post, error) {
	post, err := in.store.UpsertPost(ctx, PostFromNote(note, refs.author))
	if errors.Is(err, db.ErrForeignPost) {
		return nil, domain.Verification("store note", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store post: %w", err)
	}

	for i := range refs.mentioned {
		created, err := in.store.CreateMention(ctx, post.Id, refs.mentioned[i].Id)
		if err != nil {
			return nil, fmt.Errorf("failed to create mention: %w", err)
		}
		if !created {
			continue
		}
		if err := in.notifier.Mention(ctx, refs.author, post, &refs.mentioned[i]); err != nil {
			return nil, err
		}
	}
	return post, nil
}
