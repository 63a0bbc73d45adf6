package activitypub

import (
	"context"
	"fmt"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
)

func (d *Delete) deletesActor() bool {
	return d.Object == d.Actor
}

// Verify checks that the actor wrote the post it deletes. The actor is not
// fetched: a deleted actor's document is usually gone already.
func (d *Delete) Verify(ctx context.Context, in *Inbox) error {
	if d.deletesActor() {
		if in.actors.urls.IsLocal(d.Actor.String()) {
			return domain.Verification("delete", errors.Errorf("%s is a local actor", d.Actor))
		}
		return nil
	}
	post, err := in.actors.LookupPost(ctx, d.Object.String())
	if err != nil || post == nil {
		return err
	}
	author, err := in.store.UserById(ctx, post.AuthorId)
	if err != nil {
		return fmt.Errorf("failed to read post author: %w", err)
	}
	if author.APId != d.Actor.String() {
		return domain.Verification("delete", errors.Errorf("%s may not delete %s", d.Actor, d.Object))
	}
	return nil
}

func (d *Delete) Receive(ctx context.Context, in *Inbox) error {
	if d.deletesActor() {
		deleted, err := in.store.DeleteRemoteUser(ctx, d.Actor.String())
		if err != nil {
			return fmt.Errorf("failed to delete actor: %w", err)
		}
		if deleted {
			in.log.Info().Str("actor", d.Actor.String()).Msg("Inbox: Deleted remote actor")
		}
		return nil
	}

	author, err := in.actors.LookupUser(ctx, d.Actor.String())
	if err != nil || author == nil {
		return err
	}
	post, err := in.store.DeletePost(ctx, d.Object.String(), author.Id)
	if domain.IsNotFound(err) {
		return nil
	}
	if errors.Is(err, db.ErrForeignPost) {
		return domain.Verification("delete", err)
	}
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return in.notifier.FanOutDelete(ctx, author, post.Id)
}
