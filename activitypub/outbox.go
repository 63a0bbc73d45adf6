package activitypub

import (
	"context"
	"fmt"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/notify"
	"github.com/deemkeen/tusk/util"
	"github.com/rs/zerolog"
)

// Outbox performs the actions of local users. Effects between two local
// users are applied directly; remote counterparts get an activity through
// the Transport.
type Outbox struct {
	store      Store
	transport  Transport
	recipients *Recipients
	notifier   Notifier
	urls       *URLs
	log        zerolog.Logger
}

func NewOutbox(store Store, transport Transport, recipients *Recipients, notifier Notifier, urls *URLs, logger zerolog.Logger) *Outbox {
	return &Outbox{
		store:      store,
		transport:  transport,
		recipients: recipients,
		notifier:   notifier,
		urls:       urls,
		log:        logger.With().Str("component", "outbox").Logger(),
	}
}

func (o *Outbox) deliver(ctx context.Context, sender *domain.User, activity Activity, inboxes []string) error {
	if len(inboxes) == 0 {
		return nil
	}
	if err := o.transport.Deliver(ctx, sender, activity, inboxes); err != nil {
		return fmt.Errorf("failed to queue %s: %w", activity.Kind(), err)
	}
	o.log.Info().
		Str("type", activity.Kind()).
		Str("id", activity.ActivityID()).
		Int("inboxes", len(inboxes)).
		Msg("Outbox: Queued activity")
	return nil
}

func embedded(f *Follow) Follow {
	e := *f
	e.Context = nil
	return e
}

// SendAccept confirms follow to the remote follower.
func (o *Outbox) SendAccept(ctx context.Context, followed, follower *domain.User, follow *Follow) error {
	accept := &Accept{
		Context: defaultContext,
		ID:      NewActivityID(followed.APId, "accept"),
		Type:    "Accept",
		Actor:   IRI(followed.APId),
		Object:  embedded(follow),
		To:      IRIs{IRI(follower.APId)},
	}
	return o.deliver(ctx, followed, accept, o.recipients.Direct(follower))
}

func (o *Outbox) sendReject(ctx context.Context, followed, follower *domain.User, follow *Follow) error {
	reject := &Reject{
		Context: defaultContext,
		ID:      NewActivityID(followed.APId, "reject"),
		Type:    "Reject",
		Actor:   IRI(followed.APId),
		Object:  embedded(follow),
		To:      IRIs{IRI(follower.APId)},
	}
	return o.deliver(ctx, followed, reject, o.recipients.Direct(follower))
}

// followActivity rebuilds the Follow of a pair from the stored edge id,
// minting one when the edge has none.
func followActivity(id string, follower, followed *domain.User) *Follow {
	if id == "" {
		id = NewActivityID(follower.APId, "follow")
	}
	return &Follow{ID: id, Type: "Follow", Actor: IRI(follower.APId), Object: IRI(followed.APId)}
}

// edgeID returns the activity id of the pending request or follow between the pair.
func (o *Outbox) edgeID(ctx context.Context, follower, followed *domain.User) (string, bool, error) {
	req, err := o.store.FollowRequest(ctx, follower.Id, followed.Id)
	if err == nil {
		return req.APId, true, nil
	}
	if !domain.IsNotFound(err) {
		return "", false, err
	}
	edge, err := o.store.Follower(ctx, follower.Id, followed.Id)
	if err == nil {
		return edge.APId, true, nil
	}
	if !domain.IsNotFound(err) {
		return "", false, err
	}
	return "", false, nil
}

// Follow makes the local follower follow target. Remote follows stay
// pending until the Accept arrives.
func (o *Outbox) Follow(ctx context.Context, follower, target *domain.User) error {
	if follower.Id == target.Id {
		return errors.New("cannot follow yourself")
	}
	id := NewActivityID(follower.APId, "follow")

	if target.Local && !target.ManuallyApprovesFollowers {
		created, err := o.store.CreateFollower(ctx, &domain.FollowEdge{FollowerId: follower.Id, FollowedId: target.Id, APId: id})
		if err != nil || !created {
			return err
		}
		return o.notifier.Follow(ctx, follower, target, notify.Create)
	}

	created, err := o.store.CreateFollowRequest(ctx, &domain.FollowRequest{FollowerId: follower.Id, FollowedId: target.Id, APId: id})
	if err != nil || !created {
		return err
	}
	if target.Local {
		return o.notifier.FollowRequest(ctx, follower, target, notify.Create)
	}
	follow := followActivity(id, follower, target)
	follow.Context = defaultContext
	follow.To = IRIs{IRI(target.APId)}
	return o.deliver(ctx, follower, follow, o.recipients.Direct(target))
}

// Unfollow withdraws a pending request or ends a follow.
func (o *Outbox) Unfollow(ctx context.Context, follower, target *domain.User) error {
	id, found, err := o.edgeID(ctx, follower, target)
	if err != nil || !found {
		return err
	}
	pending, err := o.store.DeleteFollowRequest(ctx, follower.Id, target.Id)
	if err != nil {
		return err
	}
	following, err := o.store.DeleteFollower(ctx, follower.Id, target.Id)
	if err != nil {
		return err
	}

	if target.Local {
		if pending {
			if err := o.notifier.FollowRequest(ctx, follower, target, notify.Remove); err != nil {
				return err
			}
		}
		if following {
			return o.notifier.Follow(ctx, follower, target, notify.Remove)
		}
		return nil
	}

	undo := &UndoFollow{
		Context: defaultContext,
		ID:      NewActivityID(follower.APId, "undo"),
		Type:    "Undo",
		Actor:   IRI(follower.APId),
		Object:  *followActivity(id, follower, target),
		To:      IRIs{IRI(target.APId)},
	}
	return o.deliver(ctx, follower, undo, o.recipients.Direct(target))
}

// AcceptFollowRequest lets follower follow the local user followed.
func (o *Outbox) AcceptFollowRequest(ctx context.Context, followed, follower *domain.User) error {
	req, err := o.store.FollowRequest(ctx, follower.Id, followed.Id)
	if err != nil {
		return err
	}
	promoted, err := o.store.PromoteFollowRequest(ctx, follower.Id, followed.Id)
	if err != nil || !promoted {
		return err
	}
	if err := o.notifier.FollowRequest(ctx, follower, followed, notify.Remove); err != nil {
		return err
	}
	if err := o.notifier.Follow(ctx, follower, followed, notify.Create); err != nil {
		return err
	}
	return o.SendAccept(ctx, followed, follower, followActivity(req.APId, follower, followed))
}

// RejectFollowRequest refuses a pending request, or removes an existing follower.
func (o *Outbox) RejectFollowRequest(ctx context.Context, followed, follower *domain.User) error {
	id, found, err := o.edgeID(ctx, follower, followed)
	if err != nil || !found {
		return err
	}
	if err := o.store.DeleteFollowEdges(ctx, follower.Id, followed.Id); err != nil {
		return err
	}
	if err := o.notifier.FollowRequest(ctx, follower, followed, notify.Remove); err != nil {
		return err
	}
	if err := o.notifier.Follow(ctx, follower, followed, notify.Remove); err != nil {
		return err
	}
	return o.sendReject(ctx, followed, follower, followActivity(id, follower, followed))
}

func (o *Outbox) Like(ctx context.Context, actor *domain.User, post *domain.Post) error {
	author, err := o.store.UserById(ctx, post.AuthorId)
	if err != nil {
		return err
	}
	id := NewActivityID(actor.APId, "like")
	created, err := o.store.CreateLike(ctx, &domain.Like{ActorId: actor.Id, PostId: post.Id, APId: id})
	if err != nil || !created {
		return err
	}
	if err := o.notifier.Favourite(ctx, actor, post, author, notify.Create); err != nil {
		return err
	}
	like := &Like{
		Context: defaultContext,
		ID:      id,
		Type:    "Like",
		Actor:   IRI(actor.APId),
		Object:  IRI(post.APId),
		To:      IRIs{IRI(author.APId)},
	}
	return o.deliver(ctx, actor, like, o.recipients.Direct(author))
}

func (o *Outbox) Unlike(ctx context.Context, actor *domain.User, post *domain.Post) error {
	like, err := o.store.Like(ctx, actor.Id, post.Id)
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	author, err := o.store.UserById(ctx, post.AuthorId)
	if err != nil {
		return err
	}
	if _, err := o.store.DeleteLike(ctx, actor.Id, post.Id); err != nil {
		return err
	}
	if err := o.notifier.Favourite(ctx, actor, post, author, notify.Remove); err != nil {
		return err
	}
	if like.APId == "" {
		like.APId = NewActivityID(actor.APId, "like")
	}
	undo := &UndoLike{
		Context: defaultContext,
		ID:      NewActivityID(actor.APId, "undo"),
		Type:    "Undo",
		Actor:   IRI(actor.APId),
		Object:  Like{ID: like.APId, Type: "Like", Actor: IRI(actor.APId), Object: IRI(post.APId)},
		To:      IRIs{IRI(author.APId)},
	}
	return o.deliver(ctx, actor, undo, o.recipients.Direct(author))
}

// Boost publicly announces post to actor's followers and its author.
func (o *Outbox) Boost(ctx context.Context, actor *domain.User, post *domain.Post) error {
	if post.Visibility == domain.VisibilityFollowers || post.Visibility == domain.VisibilityDirect {
		return domain.Verification("boost", errors.Errorf("%s posts cannot be boosted", post.Visibility))
	}
	author, err := o.store.UserById(ctx, post.AuthorId)
	if err != nil {
		return err
	}
	id := NewActivityID(actor.APId, "announce")
	boost := &domain.Boost{APId: id, PostId: post.Id, ActorId: actor.Id, Visibility: domain.VisibilityPublic}
	created, err := o.store.CreateBoost(ctx, boost)
	if err != nil || !created {
		return err
	}
	if err := o.notifier.Reblog(ctx, actor, post, author, notify.Create); err != nil {
		return err
	}
	if err := o.notifier.FanOutPost(ctx, actor, post, nil); err != nil {
		return err
	}

	announce := &Announce{
		Context:   defaultContext,
		ID:        id,
		Type:      "Announce",
		Actor:     IRI(actor.APId),
		Object:    IRI(post.APId),
		Published: &boost.Published,
		To:        IRIs{PublicIRI},
		CC:        IRIs{IRI(actor.FollowersURI), IRI(author.APId)},
	}
	inboxes, err := o.recipients.FanOut(ctx, actor, boost.Visibility, nil, author)
	if err != nil {
		return err
	}
	return o.deliver(ctx, actor, announce, inboxes)
}

func (o *Outbox) Unboost(ctx context.Context, actor *domain.User, post *domain.Post) error {
	boost, err := o.store.Boost(ctx, actor.Id, post.Id)
	if domain.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	author, err := o.store.UserById(ctx, post.AuthorId)
	if err != nil {
		return err
	}
	if _, err := o.store.DeleteBoost(ctx, actor.Id, post.Id); err != nil {
		return err
	}
	if err := o.notifier.Reblog(ctx, actor, post, author, notify.Remove); err != nil {
		return err
	}

	undo := &UndoAnnounce{
		Context: defaultContext,
		ID:      NewActivityID(actor.APId, "undo"),
		Type:    "Undo",
		Actor:   IRI(actor.APId),
		Object: Announce{
			ID:     boost.APId,
			Type:   "Announce",
			Actor:  IRI(actor.APId),
			Object: IRI(post.APId),
			To:     IRIs{PublicIRI},
		},
		To: IRIs{PublicIRI},
	}
	inboxes, err := o.recipients.FanOut(ctx, actor, boost.Visibility, nil, author)
	if err != nil {
		return err
	}
	return o.deliver(ctx, actor, undo, inboxes)
}

// PublishNote stores a new post by the local author and federates it
// unless it is local only. Id, ap_id and url of draft are assigned here.
func (o *Outbox) PublishNote(ctx context.Context, author *domain.User, draft *domain.Post, mentioned []domain.User) (*domain.Post, error) {
	if !author.Local {
		return nil, errors.Errorf("%s is not a local user", author.APId)
	}
	draft.Id = util.NewID()
	draft.APId = o.urls.Post(draft.Id)
	draft.URL = draft.APId
	draft.AuthorId = author.Id
	if draft.Visibility == "" {
		draft.Visibility = domain.VisibilityPublic
	}

	post, err := o.store.UpsertPost(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to store post: %w", err)
	}
	for i := range mentioned {
		created, err := o.store.CreateMention(ctx, post.Id, mentioned[i].Id)
		if err != nil {
			return nil, fmt.Errorf("failed to create mention: %w", err)
		}
		if created {
			if err := o.notifier.Mention(ctx, author, post, &mentioned[i]); err != nil {
				return nil, err
			}
		}
	}
	if err := o.notifier.FanOutPost(ctx, author, post, mentioned); err != nil {
		return nil, err
	}
	if post.LocalOnly {
		return post, nil
	}

	note := NoteFromPost(post, author, mentioned)
	create := &Create{
		Context: defaultContext,
		ID:      post.APId + "#create",
		Type:    "Create",
		Actor:   IRI(author.APId),
		Object:  *note,
		To:      note.To,
		CC:      note.CC,
	}
	inboxes, err := o.recipients.FanOut(ctx, author, post.Visibility, mentioned)
	if err != nil {
		return nil, err
	}
	return post, o.deliver(ctx, author, create, inboxes)
}

// DeletePost removes a post of the local author everywhere it was sent.
func (o *Outbox) DeletePost(ctx context.Context, author *domain.User, post *domain.Post) error {
	mentioned, err := o.store.MentionedUsers(ctx, post.Id)
	if err != nil {
		return err
	}
	if _, err := o.store.DeletePost(ctx, post.APId, author.Id); err != nil {
		return err
	}
	if err := o.notifier.FanOutDelete(ctx, author, post.Id); err != nil {
		return err
	}
	if post.LocalOnly {
		return nil
	}

	del := &Delete{
		Context: defaultContext,
		ID:      NewActivityID(author.APId, "delete"),
		Type:    "Delete",
		Actor:   IRI(author.APId),
		Object:  IRI(post.APId),
		To:      IRIs{PublicIRI},
	}
	inboxes, err := o.recipients.FanOut(ctx, author, post.Visibility, mentioned)
	if err != nil {
		return err
	}
	return o.deliver(ctx, author, del, inboxes)
}

// UpdateProfile saves the local user's profile and sends it to their followers.
func (o *Outbox) UpdateProfile(ctx context.Context, u *domain.User) error {
	if err := o.store.UpdateLocalProfile(ctx, u); err != nil {
		return err
	}
	person := PersonFromUser(u)
	person.Context = nil
	update := &Update{
		Context: defaultContext,
		ID:      NewActivityID(u.APId, "update"),
		Type:    "Update",
		Actor:   IRI(u.APId),
		Object:  *person,
		To:      IRIs{PublicIRI},
		CC:      IRIs{IRI(u.FollowersURI)},
	}
	inboxes, err := o.recipients.FanOut(ctx, u, domain.VisibilityPublic, nil)
	if err != nil {
		return err
	}
	return o.deliver(ctx, u, update, inboxes)
}
