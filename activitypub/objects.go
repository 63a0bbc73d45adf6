package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"
	ContextSecurity        = "https://w3id.org/security/v1"
	// PublicIRI addresses everyone.
	PublicIRI = "https://www.w3.org/ns/activitystreams#Public"
	// ContentType is sent and accepted on every federation request.
	ContentType = "application/activity+json"
)

var defaultContext = []any{ContextActivityStreams, ContextSecurity}

// IRI is an object reference. On the wire it is either the bare IRI or an
// embedded object, in which case its "id" is kept.
type IRI string

func (i *IRI) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*i = IRI(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("expected IRI or object with id: %w", err)
	}
	*i = IRI(obj.ID)
	return nil
}

func (i IRI) String() string {
	return string(i)
}

// IRIs is an addressing list that also accepts a single IRI.
type IRIs []IRI

func (l *IRIs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var many []IRI
		if err := json.Unmarshal(b, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one IRI
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*l = IRIs{one}
	return nil
}

func (l IRIs) Contains(iri string) bool {
	for _, x := range l {
		if string(x) == iri {
			return true
		}
	}
	return false
}

func toIRIs(ss []string) IRIs {
	if len(ss) == 0 {
		return nil
	}
	l := make(IRIs, len(ss))
	for i, s := range ss {
		l[i] = IRI(s)
	}
	return l
}

// Person is the actor document for Person, Service, Application, Group and Organization.
type Person struct {
	Context                   any        `json:"@context,omitempty"`
	ID                        string     `json:"id" validate:"required,url"`
	Type                      string     `json:"type"`
	PreferredUsername         string     `json:"preferredUsername" validate:"required"`
	Name                      string     `json:"name,omitempty"`
	Summary                   string     `json:"summary,omitempty"`
	Inbox                     string     `json:"inbox" validate:"required,url"`
	Outbox                    string     `json:"outbox,omitempty"`
	Followers                 string     `json:"followers,omitempty"`
	Endpoints                 *Endpoints `json:"endpoints,omitempty"`
	ManuallyApprovesFollowers bool       `json:"manuallyApprovesFollowers"`
	Published                 *time.Time `json:"published,omitempty"`
	PublicKey                 PublicKey  `json:"publicKey"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

func isActorType(t string) bool {
	switch t {
	case "Person", "Service", "Application", "Group", "Organization":
		return true
	}
	return false
}

type Note struct {
	Context      any        `json:"@context,omitempty"`
	ID           string     `json:"id" validate:"required,url"`
	Type         string     `json:"type"`
	AttributedTo IRI        `json:"attributedTo" validate:"required,url"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary,omitempty"`
	Sensitive    bool       `json:"sensitive"`
	URL          IRI        `json:"url,omitempty"`
	InReplyTo    IRI        `json:"inReplyTo,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
	To           IRIs       `json:"to"`
	CC           IRIs       `json:"cc"`
	Tag          []Tag      `json:"tag,omitempty"`
}

type Tag struct {
	Type string `json:"type"`
	Href string `json:"href,omitempty"`
	Name string `json:"name,omitempty"`
}

type Tombstone struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
