package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
	"github.com/rs/zerolog"
)

// Store is the persistence the activity handlers need. *db.DB implements it.
type Store interface {
	ClaimActivity(ctx context.Context, apID string) (db.ClaimOutcome, error)

	UserById(ctx context.Context, id string) (*domain.User, error)
	UserByAPId(ctx context.Context, apID string) (*domain.User, error)
	UpsertRemoteUser(ctx context.Context, u *domain.User) (*domain.User, error)
	UpdateLocalProfile(ctx context.Context, u *domain.User) error
	DeleteRemoteUser(ctx context.Context, apID string) (bool, error)
	FollowerInboxes(ctx context.Context, userID string) ([]string, error)

	CreateFollowRequest(ctx context.Context, req *domain.FollowRequest) (bool, error)
	CreateFollower(ctx context.Context, edge *domain.FollowEdge) (bool, error)
	PromoteFollowRequest(ctx context.Context, followerID, followedID string) (bool, error)
	DeleteFollowRequest(ctx context.Context, followerID, followedID string) (bool, error)
	DeleteFollower(ctx context.Context, followerID, followedID string) (bool, error)
	DeleteFollowEdges(ctx context.Context, followerID, followedID string) error
	FollowRequest(ctx context.Context, followerID, followedID string) (*domain.FollowRequest, error)
	Follower(ctx context.Context, followerID, followedID string) (*domain.FollowEdge, error)

	CreateLike(ctx context.Context, like *domain.Like) (bool, error)
	DeleteLike(ctx context.Context, actorID, postID string) (bool, error)
	Like(ctx context.Context, actorID, postID string) (*domain.Like, error)
	CreateBoost(ctx context.Context, boost *domain.Boost) (bool, error)
	DeleteBoost(ctx context.Context, actorID, postID string) (bool, error)
	Boost(ctx context.Context, actorID, postID string) (*domain.Boost, error)

	UpsertPost(ctx context.Context, p *domain.Post) (*domain.Post, error)
	PostByAPId(ctx context.Context, apID string) (*domain.Post, error)
	DeletePost(ctx context.Context, apID, authorID string) (*domain.Post, error)
	CreateMention(ctx context.Context, postID, userID string) (bool, error)
	MentionedUsers(ctx context.Context, postID string) ([]domain.User, error)
}

// Transport talks to remote servers: it fetches objects and hands signed
// activities to the delivery queue.
type Transport interface {
	Dereference(ctx context.Context, iri string, into any) error
	Deliver(ctx context.Context, sender *domain.User, activity any, inboxes []string) error
}

// Notifier is the notification and timeline side of an accepted activity.
type Notifier interface {
	Follow(ctx context.Context, follower, followed *domain.User, dir notify.Direction) error
	FollowRequest(ctx context.Context, follower, followed *domain.User, dir notify.Direction) error
	Favourite(ctx context.Context, actor *domain.User, post *domain.Post, author *domain.User, dir notify.Direction) error
	Reblog(ctx context.Context, actor *domain.User, post *domain.Post, author *domain.User, dir notify.Direction) error
	Mention(ctx context.Context, author *domain.User, post *domain.Post, mentioned *domain.User) error
	FanOutPost(ctx context.Context, author *domain.User, post *domain.Post, mentioned []domain.User) error
	FanOutEdit(ctx context.Context, author *domain.User, post *domain.Post, mentioned []domain.User) error
	FanOutDelete(ctx context.Context, author *domain.User, postID string) error
}

type Outcome int

const (
	Applied Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "applied"
}

// Inbox applies inbound activities: verify, claim the id in the ledger,
// then mutate. Verify resolves every actor and object an activity refers
// to, so neither a rejected activity nor an unreachable remote server
// leaves its id claimed.
type Inbox struct {
	store    Store
	actors   *Actors
	notifier Notifier
	outbox   *Outbox
	log      zerolog.Logger
}

func NewInbox(store Store, actors *Actors, notifier Notifier, outbox *Outbox, logger zerolog.Logger) *Inbox {
	return &Inbox{
		store:    store,
		actors:   actors,
		notifier: notifier,
		outbox:   outbox,
		log:      logger.With().Str("component", "inbox").Logger(),
	}
}

// Process decodes body and handles it.
func (in *Inbox) Process(ctx context.Context, body []byte) (Outcome, error) {
	act, err := Decode(body)
	if err != nil {
		in.log.Warn().Err(err).Msg("Inbox: Rejecting activity")
		return Applied, err
	}
	return in.Handle(ctx, act)
}

func (in *Inbox) Handle(ctx context.Context, act Activity) (Outcome, error) {
	log := in.log.With().
		Str("type", act.Kind()).
		Str("id", act.ActivityID()).
		Str("actor", act.ActorIRI()).
		Logger()

	if err := act.Verify(ctx, in); err != nil {
		log.Warn().Err(err).Msg("Inbox: Verification failed")
		return Applied, err
	}

	claim, err := in.store.ClaimActivity(ctx, act.ActivityID())
	if err != nil {
		return Applied, fmt.Errorf("failed to claim activity: %w", err)
	}
	if claim == db.AlreadyProcessed {
		log.Info().Msg("Inbox: Skipping already processed activity")
		return Duplicate, nil
	}

	// The id stays claimed when Receive fails, so a redelivery is not retried.
	if err := act.Receive(ctx, in); err != nil {
		log.Error().Err(err).Msg("Inbox: Failed to apply activity")
		return Applied, fmt.Errorf("failed to apply %s: %w", act.Kind(), err)
	}
	log.Info().Msg("Inbox: Processed activity")
	return Applied, nil
}

// resolveOwner resolves actor and checks that it is also owner, the
// actor of an embedded activity or the target of an embedded follow.
func (in *Inbox) resolveOwner(ctx context.Context, op string, actor, owner IRI) (*domain.User, error) {
	u, err := in.actors.Resolve(ctx, actor.String())
	if err != nil {
		return nil, err
	}
	if actor == owner {
		return u, nil
	}
	o, err := in.actors.Resolve(ctx, owner.String())
	if err != nil {
		return nil, err
	}
	if u.Id != o.Id {
		return nil, domain.Verification(op, fmt.Errorf("%s may not act for %s", actor, owner))
	}
	return u, nil
}
