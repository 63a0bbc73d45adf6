package activitypub

import (
	"context"
	"fmt"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
)

// Verify allows only self-updates of remote actors.
func (u *Update) Verify(ctx context.Context, in *Inbox) error {
	if u.Object.ID != u.Actor.String() {
		return domain.Verification("update", errors.Errorf("%s may not update %s", u.Actor, u.Object.ID))
	}
	existing, err := in.actors.LookupUser(ctx, u.Object.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Local {
		return domain.Verification("update", errors.Errorf("%s is a local actor", u.Object.ID))
	}
	return nil
}

func (u *Update) Receive(ctx context.Context, in *Inbox) error {
	user, err := UserFromPerson(&u.Object)
	if err != nil {
		return domain.Verification("update", err)
	}
	if _, err := in.store.UpsertRemoteUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update actor: %w", err)
	}
	return nil
}
