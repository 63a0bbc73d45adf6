package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
)

// Recipients computes delivery inboxes for outbound activities.
type Recipients struct {
	store Store
}

func NewRecipients(store Store) *Recipients {
	return &Recipients{store: store}
}

// Direct returns the preferred inbox of a single remote counterpart.
func (r *Recipients) Direct(to *domain.User) []string {
	if to == nil || to.Local || to.PreferredInbox() == "" {
		return nil
	}
	return []string{to.PreferredInbox()}
}

// FanOut returns the inboxes for content from sender: its remote
// followers unless vis is direct, the mentioned remote actors, and any
// extra counterparts such as the author of a boosted post. Each inbox
// appears once, in first-seen order.
func (r *Recipients) FanOut(ctx context.Context, sender *domain.User, vis domain.Visibility, mentioned []domain.User, extra ...*domain.User) ([]string, error) {
	var set inboxSet
	if vis != domain.VisibilityDirect {
		inboxes, err := r.store.FollowerInboxes(ctx, sender.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to read follower inboxes: %w", err)
		}
		set.add(inboxes...)
	}
	for i := range mentioned {
		set.add(r.Direct(&mentioned[i])...)
	}
	for _, u := range extra {
		set.add(r.Direct(u)...)
	}
	return set.list, nil
}

type inboxSet struct {
	seen map[string]bool
	list []string
}

func (s *inboxSet) add(inboxes ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, inbox := range inboxes {
		if inbox == "" || s.seen[inbox] {
			continue
		}
		s.seen[inbox] = true
		s.list = append(s.list, inbox)
	}
}
