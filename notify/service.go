// Package notify turns graph and interaction changes into stored
// notifications and live streaming events.
package notify

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/streaming"
	"github.com/rs/zerolog"
)

type Store interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	DeleteNotification(ctx context.Context, actorID, receiverID, postID string, kind domain.NotificationKind) (bool, error)
	LocalFollowers(ctx context.Context, userID string) ([]domain.User, error)
}

type Publisher interface {
	Publish(receiverID string, ev streaming.Event) int
}

// Direction tells whether a transition creates or retracts a notification.
type Direction int

const (
	Create Direction = iota
	Remove
)

type Service struct {
	store Store
	bus   Publisher
	log   zerolog.Logger
}

func NewService(store Store, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   logger.With().Str("component", "notify").Logger(),
	}
}

// Process records or retracts one notification of kind from actor to
// receiver. Remote receivers are ignored, as are self-notifications. Only
// creation is streamed; clients reconcile retractions on their next fetch.
func (s *Service) Process(ctx context.Context, kind domain.NotificationKind, actor, receiver *domain.User, post *domain.Post, dir Direction) error {
	if receiver == nil || !receiver.Local || actor.Id == receiver.Id {
		return nil
	}

	var postID string
	if post != nil {
		postID = post.Id
	}

	if dir == Remove {
		if _, err := s.store.DeleteNotification(ctx, actor.Id, receiver.Id, postID, kind); err != nil {
			return fmt.Errorf("failed to delete %s notification: %w", kind, err)
		}
		return nil
	}

	n := &domain.Notification{
		ActorId:    actor.Id,
		ReceiverId: receiver.Id,
		PostId:     postID,
		Kind:       kind,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to create %s notification: %w", kind, err)
	}

	reached := s.bus.Publish(receiver.Id, streaming.NotificationEvent(n))
	s.log.Debug().
		Str("kind", string(kind)).
		Str("receiver", receiver.Id).
		Int("subscribers", reached).
		Msg("Notify: notification created")
	return nil
}

func (s *Service) Follow(ctx context.Context, follower, followed *domain.User, dir Direction) error {
	return s.Process(ctx, domain.NotificationFollow, follower, followed, nil, dir)
}

func (s *Service) FollowRequest(ctx context.Context, follower, followed *domain.User, dir Direction) error {
	return s.Process(ctx, domain.NotificationFollowRequest, follower, followed, nil, dir)
}

func (s *Service) Favourite(ctx context.Context, actor *domain.User, post *domain.Post, author *domain.User, dir Direction) error {
	return s.Process(ctx, domain.NotificationFavourite, actor, author, post, dir)
}

func (s *Service) Reblog(ctx context.Context, actor *domain.User, post *domain.Post, author *domain.User, dir Direction) error {
	return s.Process(ctx, domain.NotificationReblog, actor, author, post, dir)
}

func (s *Service) Mention(ctx context.Context, author *domain.User, post *domain.Post, mentioned *domain.User) error {
	return s.Process(ctx, domain.NotificationMention, author, mentioned, post, Create)
}
