package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
)

// followPair is the resolved follower and followed of a follow activity.
type followPair struct {
	follower *domain.User
	followed *domain.User
}

func (f *Follow) Verify(ctx context.Context, in *Inbox) (err error) {
	if f.pair.follower, err = in.actors.Resolve(ctx, f.Actor.String()); err != nil {
		return err
	}
	f.pair.followed, err = in.actors.Resolve(ctx, f.Object.String())
	return err
}

// Receive records the follow. Accounts that approve followers manually get
// a pending request; the others follow immediately and the Accept is sent back.
func (f *Follow) Receive(ctx context.Context, in *Inbox) error {
	follower, followed := f.pair.follower, f.pair.followed
	if !followed.Local {
		in.log.Info().Str("object", followed.APId).Msg("Inbox: Ignoring follow of a remote actor")
		return nil
	}

	if followed.ManuallyApprovesFollowers {
		created, err := in.store.CreateFollowRequest(ctx, &domain.FollowRequest{
			FollowerId: follower.Id,
			FollowedId: followed.Id,
			APId:       f.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to create follow request: %w", err)
		}
		if !created {
			return nil
		}
		return in.notifier.FollowRequest(ctx, follower, followed, notify.Create)
	}

	created, err := in.store.CreateFollower(ctx, &domain.FollowEdge{
		FollowerId: follower.Id,
		FollowedId: followed.Id,
		APId:       f.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to create follower: %w", err)
	}
	if !created {
		return nil
	}
	if err := in.outbox.SendAccept(ctx, followed, follower, f); err != nil {
		return err
	}
	return in.notifier.Follow(ctx, follower, followed, notify.Create)
}

// Verify checks that the follow being accepted targeted the accepting actor.
func (a *Accept) Verify(ctx context.Context, in *Inbox) (err error) {
	if a.pair.followed, err = in.resolveOwner(ctx, "accept", a.Actor, a.Object.Object); err != nil {
		return err
	}
	a.pair.follower, err = in.actors.Resolve(ctx, a.Object.Actor.String())
	return err
}

func (a *Accept) Receive(ctx context.Context, in *Inbox) error {
	follower, followed := a.pair.follower, a.pair.followed
	promoted, err := in.store.PromoteFollowRequest(ctx, follower.Id, followed.Id)
	if err != nil {
		return fmt.Errorf("failed to promote follow request: %w", err)
	}
	if !promoted {
		in.log.Info().Str("follower", follower.APId).Str("followed", followed.APId).Msg("Inbox: Accept without pending request")
	}
	return nil
}

func (r *Reject) Verify(ctx context.Context, in *Inbox) (err error) {
	if r.pair.followed, err = in.resolveOwner(ctx, "reject", r.Actor, r.Object.Object); err != nil {
		return err
	}
	r.pair.follower, err = in.actors.Resolve(ctx, r.Object.Actor.String())
	return err
}

// Receive drops the pending request or the confirmed follow, and whichever
// notification the edge left behind.
func (r *Reject) Receive(ctx context.Context, in *Inbox) error {
	follower, followed := r.pair.follower, r.pair.followed
	if err := in.store.DeleteFollowEdges(ctx, follower.Id, followed.Id); err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	if err := in.notifier.FollowRequest(ctx, follower, followed, notify.Remove); err != nil {
		return err
	}
	return in.notifier.Follow(ctx, follower, followed, notify.Remove)
}

// Verify checks that only the follower undoes a follow.
func (u *UndoFollow) Verify(ctx context.Context, in *Inbox) (err error) {
	if u.pair.follower, err = in.resolveOwner(ctx, "undo follow", u.Actor, u.Object.Actor); err != nil {
		return err
	}
	u.pair.followed, err = in.actors.Resolve(ctx, u.Object.Object.String())
	return err
}

func (u *UndoFollow) Receive(ctx context.Context, in *Inbox) error {
	follower, followed := u.pair.follower, u.pair.followed
	pending, err := in.store.DeleteFollowRequest(ctx, follower.Id, followed.Id)
	if err != nil {
		return fmt.Errorf("failed to delete follow request: %w", err)
	}
	if pending {
		return in.notifier.FollowRequest(ctx, follower, followed, notify.Remove)
	}
	if _, err := in.store.DeleteFollower(ctx, follower.Id, followed.Id); err != nil {
		return fmt.Errorf("failed to delete follower: %w", err)
	}
	return in.notifier.Follow(ctx, follower, followed, notify.Remove)
}
