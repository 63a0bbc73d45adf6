package activitypub

import (
	"context"
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/db"
	"github.com/deemkeen/tusk/domain"
	"github.com/rs/zerolog"
)

// Actors resolves actor and note IRIs to stored records, fetching and
// caching remote ones.
type Actors struct {
	store     Store
	transport Transport
	urls      *URLs
	ttl       time.Duration
	log       zerolog.Logger
}

func NewActors(store Store, transport Transport, urls *URLs, ttl time.Duration, logger zerolog.Logger) *Actors {
	return &Actors{
		store:     store,
		transport: transport,
		urls:      urls,
		ttl:       ttl,
		log:       logger.With().Str("component", "actors").Logger(),
	}
}

// Resolve returns the user for iri. Local users and remote users fetched
// within the cache TTL come from the store. A stale remote user is
// refreshed, and kept as is when the refresh fails.
func (a *Actors) Resolve(ctx context.Context, iri string) (*domain.User, error) {
	cached, err := a.store.UserByAPId(ctx, iri)
	if err != nil && !domain.IsNotFound(err) {
		return nil, fmt.Errorf("failed to read actor %s: %w", iri, err)
	}
	if cached != nil && (cached.Local || time.Since(cached.LastFetchedAt) < a.ttl) {
		return cached, nil
	}
	if cached == nil && a.urls.IsLocal(iri) {
		return nil, domain.Verification("resolve actor", errors.Errorf("no local actor %s", iri))
	}

	var person Person
	if err := a.transport.Dereference(ctx, iri, &person); err != nil {
		if cached != nil {
			a.log.Warn().Err(err).Str("actor", iri).Msg("Using stale actor after failed refresh")
			return cached, nil
		}
		return nil, domain.Unavailable("fetch actor", err)
	}
	if err := validate.Struct(&person); err != nil {
		return nil, domain.Verification("fetch actor", err)
	}
	if !isActorType(person.Type) {
		return nil, domain.Verification("fetch actor", errors.Errorf("%s is a %s, not an actor", iri, person.Type))
	}
	if !sameHost(person.ID, iri) {
		return nil, domain.Verification("fetch actor", errors.Errorf("%s served actor %s", iri, person.ID))
	}

	user, err := UserFromPerson(&person)
	if err != nil {
		return nil, domain.Verification("fetch actor", err)
	}
	stored, err := a.store.UpsertRemoteUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to store actor %s: %w", iri, err)
	}
	a.log.Debug().Str("actor", iri).Msg("Fetched remote actor")
	return stored, nil
}

// ResolvePost returns the stored post for iri, fetching a remote note and
// its author when it is unknown.
func (a *Actors) ResolvePost(ctx context.Context, iri string) (*domain.Post, error) {
	post, err := a.LookupPost(ctx, iri)
	if err != nil || post != nil {
		return post, err
	}
	if a.urls.IsLocal(iri) {
		return nil, domain.Verification("resolve post", errors.Errorf("no local post %s", iri))
	}

	var note Note
	if err := a.transport.Dereference(ctx, iri, &note); err != nil {
		return nil, domain.Unavailable("fetch post", err)
	}
	if err := validate.Struct(&note); err != nil {
		return nil, domain.Verification("fetch post", err)
	}
	if !sameHost(note.ID, note.AttributedTo.String()) || !sameHost(note.ID, iri) {
		return nil, domain.Verification("fetch post", errors.Errorf("%s is not hosted by its author %s", note.ID, note.AttributedTo))
	}

	author, err := a.Resolve(ctx, note.AttributedTo.String())
	if err != nil {
		return nil, err
	}
	stored, err := a.store.UpsertPost(ctx, PostFromNote(&note, author))
	if errors.Is(err, db.ErrForeignPost) {
		return nil, domain.Verification("fetch post", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store post %s: %w", iri, err)
	}
	return stored, nil
}

// LookupPost reads a post from the store only. It returns nil when the
// post is unknown.
func (a *Actors) LookupPost(ctx context.Context, iri string) (*domain.Post, error) {
	post, err := a.store.PostByAPId(ctx, iri)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read post %s: %w", iri, err)
	}
	return post, nil
}

// LookupUser reads a user from the store only. It returns nil when the
// user is unknown.
func (a *Actors) LookupUser(ctx context.Context, iri string) (*domain.User, error) {
	u, err := a.store.UserByAPId(ctx, iri)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read actor %s: %w", iri, err)
	}
	return u, nil
}
