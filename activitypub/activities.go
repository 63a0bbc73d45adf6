package activitypub

import (
	"context"
	"time"
)

// Activity is one decoded inbound activity. Verify runs before the id is
// claimed in the ledger, Receive after.
type Activity interface {
	ActivityID() string
	ActorIRI() string
	Kind() string
	Verify(ctx context.Context, in *Inbox) error
	Receive(ctx context.Context, in *Inbox) error
}

type Follow struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  IRI    `json:"object" validate:"required,url"`
	To      IRIs   `json:"to,omitempty"`

	pair followPair
}

type Accept struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Follow `json:"object"`
	To      IRIs   `json:"to,omitempty"`

	pair followPair
}

type Reject struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Follow `json:"object"`
	To      IRIs   `json:"to,omitempty"`

	pair followPair
}

type UndoFollow struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Follow `json:"object"`
	To      IRIs   `json:"to,omitempty"`

	pair followPair
}

type Like struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  IRI    `json:"object" validate:"required,url"`
	To      IRIs   `json:"to,omitempty"`

	target interaction
}

type UndoLike struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Like   `json:"object"`
	To      IRIs   `json:"to,omitempty"`

	target interaction
}

type Announce struct {
	Context   any        `json:"@context,omitempty"`
	ID        string     `json:"id" validate:"required,url"`
	Type      string     `json:"type"`
	Actor     IRI        `json:"actor" validate:"required,url"`
	Object    IRI        `json:"object" validate:"required,url"`
	Published *time.Time `json:"published,omitempty"`
	To        IRIs       `json:"to"`
	CC        IRIs       `json:"cc"`

	target interaction
}

type UndoAnnounce struct {
	Context any      `json:"@context,omitempty"`
	ID      string   `json:"id" validate:"required,url"`
	Type    string   `json:"type"`
	Actor   IRI      `json:"actor" validate:"required,url"`
	Object  Announce `json:"object"`
	To      IRIs     `json:"to,omitempty"`
	CC      IRIs     `json:"cc,omitempty"`

	target interaction
}

type Create struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Note   `json:"object"`
	To      IRIs   `json:"to"`
	CC      IRIs   `json:"cc"`

	refs noteRefs
}

// Update carries a refreshed actor profile.
type Update struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Person `json:"object"`
	To      IRIs   `json:"to,omitempty"`
	CC      IRIs   `json:"cc,omitempty"`
}

// UpdateNote carries an edited note.
type UpdateNote struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  Note   `json:"object"`
	To      IRIs   `json:"to,omitempty"`
	CC      IRIs   `json:"cc,omitempty"`

	refs noteRefs
}

// Delete removes a note, or the actor itself when Object equals Actor.
type Delete struct {
	Context any    `json:"@context,omitempty"`
	ID      string `json:"id" validate:"required,url"`
	Type    string `json:"type"`
	Actor   IRI    `json:"actor" validate:"required,url"`
	Object  IRI    `json:"object" validate:"required,url"`
	To      IRIs   `json:"to,omitempty"`
}

func (a *Follow) ActivityID() string       { return a.ID }
func (a *Accept) ActivityID() string       { return a.ID }
func (a *Reject) ActivityID() string       { return a.ID }
func (a *UndoFollow) ActivityID() string   { return a.ID }
func (a *Like) ActivityID() string         { return a.ID }
func (a *UndoLike) ActivityID() string     { return a.ID }
func (a *Announce) ActivityID() string     { return a.ID }
func (a *UndoAnnounce) ActivityID() string { return a.ID }
func (a *Create) ActivityID() string       { return a.ID }
func (a *Update) ActivityID() string       { return a.ID }
func (a *UpdateNote) ActivityID() string   { return a.ID }
func (a *Delete) ActivityID() string       { return a.ID }

func (a *Follow) ActorIRI() string       { return a.Actor.String() }
func (a *Accept) ActorIRI() string       { return a.Actor.String() }
func (a *Reject) ActorIRI() string       { return a.Actor.String() }
func (a *UndoFollow) ActorIRI() string   { return a.Actor.String() }
func (a *Like) ActorIRI() string         { return a.Actor.String() }
func (a *UndoLike) ActorIRI() string     { return a.Actor.String() }
func (a *Announce) ActorIRI() string     { return a.Actor.String() }
func (a *UndoAnnounce) ActorIRI() string { return a.Actor.String() }
func (a *Create) ActorIRI() string       { return a.Actor.String() }
func (a *Update) ActorIRI() string       { return a.Actor.String() }
func (a *UpdateNote) ActorIRI() string   { return a.Actor.String() }
func (a *Delete) ActorIRI() string       { return a.Actor.String() }

func (a *Follow) Kind() string       { return "Follow" }
func (a *Accept) Kind() string       { return "Accept" }
func (a *Reject) Kind() string       { return "Reject" }
func (a *UndoFollow) Kind() string   { return "Undo(Follow)" }
func (a *Like) Kind() string         { return "Like" }
func (a *UndoLike) Kind() string     { return "Undo(Like)" }
func (a *Announce) Kind() string     { return "Announce" }
func (a *UndoAnnounce) Kind() string { return "Undo(Announce)" }
func (a *Create) Kind() string       { return "Create(Note)" }
func (a *Update) Kind() string       { return "Update(Person)" }
func (a *UpdateNote) Kind() string   { return "Update(Note)" }
func (a *Delete) Kind() string       { return "Delete" }
