package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
)

func (a *Announce) Verify(ctx context.Context, in *Inbox) (err error) {
	if a.target.actor, err = in.actors.Resolve(ctx, a.Actor.String()); err != nil {
		return err
	}
	return a.target.resolve(ctx, in, a.Object, true)
}

// Receive records the boost, notifies the author and puts the post on the
// home streams of the booster's local followers.
func (a *Announce) Receive(ctx context.Context, in *Inbox) error {
	t := &a.target
	boost := &domain.Boost{
		APId:       a.ID,
		PostId:     t.post.Id,
		ActorId:    t.actor.Id,
		Visibility: VisibilityFromAddressing(a.To, a.CC, t.actor.FollowersURI),
	}
	if a.Published != nil {
		boost.Published = a.Published.UTC()
	}
	created, err := in.store.CreateBoost(ctx, boost)
	if err != nil {
		return fmt.Errorf("failed to create boost: %w", err)
	}
	if !created {
		return nil
	}

	if err := in.notifier.Reblog(ctx, t.actor, t.post, t.author, notify.Create); err != nil {
		return err
	}
	if boost.Visibility == domain.VisibilityPublic || boost.Visibility == domain.VisibilityUnlisted {
		return in.notifier.FanOutPost(ctx, t.actor, t.post, nil)
	}
	return nil
}

func (u *UndoAnnounce) Verify(ctx context.Context, in *Inbox) (err error) {
	if u.target.actor, err = in.resolveOwner(ctx, "undo announce", u.Actor, u.Object.Actor); err != nil {
		return err
	}
	return u.target.resolve(ctx, in, u.Object.Object, false)
}

func (u *UndoAnnounce) Receive(ctx context.Context, in *Inbox) error {
	t := &u.target
	if t.post == nil {
		return nil
	}
	if _, err := in.store.DeleteBoost(ctx, t.actor.Id, t.post.Id); err != nil {
		return fmt.Errorf("failed to delete boost: %w", err)
	}
	return in.notifier.Reblog(ctx, t.actor, t.post, t.author, notify.Remove)
}
