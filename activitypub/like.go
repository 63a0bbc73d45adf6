package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
)

// interaction is the resolved actor, post and post author of a like or boost.
type interaction struct {
	actor  *domain.User
	post   *domain.Post
	author *domain.User
}

// resolve fetches the post when fetch is set. Otherwise an unknown post
// leaves i.post nil.
func (i *interaction) resolve(ctx context.Context, in *Inbox, postIRI IRI, fetch bool) (err error) {
	if fetch {
		i.post, err = in.actors.ResolvePost(ctx, postIRI.String())
	} else {
		i.post, err = in.actors.LookupPost(ctx, postIRI.String())
	}
	if err != nil || i.post == nil {
		return err
	}
	if i.author, err = in.store.UserById(ctx, i.post.AuthorId); err != nil {
		return fmt.Errorf("failed to read post author: %w", err)
	}
	return nil
}

func (l *Like) Verify(ctx context.Context, in *Inbox) (err error) {
	if l.target.actor, err = in.actors.Resolve(ctx, l.Actor.String()); err != nil {
		return err
	}
	return l.target.resolve(ctx, in, l.Object, true)
}

func (l *Like) Receive(ctx context.Context, in *Inbox) error {
	t := &l.target
	created, err := in.store.CreateLike(ctx, &domain.Like{ActorId: t.actor.Id, PostId: t.post.Id, APId: l.ID})
	if err != nil {
		return fmt.Errorf("failed to create like: %w", err)
	}
	if !created {
		return nil
	}
	return in.notifier.Favourite(ctx, t.actor, t.post, t.author, notify.Create)
}

func (u *UndoLike) Verify(ctx context.Context, in *Inbox) (err error) {
	if u.target.actor, err = in.resolveOwner(ctx, "undo like", u.Actor, u.Object.Actor); err != nil {
		return err
	}
	return u.target.resolve(ctx, in, u.Object.Object, false)
}

// Receive removes the like and its notification. Likes of unknown posts
// were never stored, so there is nothing to undo.
func (u *UndoLike) Receive(ctx context.Context, in *Inbox) error {
	t := &u.target
	if t.post == nil {
		return nil
	}
	if _, err := in.store.DeleteLike(ctx, t.actor.Id, t.post.Id); err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	return in.notifier.Favourite(ctx, t.actor, t.post, t.author, notify.Remove)
}
