package activitypub

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/deemkeen/tusk/util"
	"github.com/google/uuid"
)

// URLs builds the IRIs this instance serves.
type URLs struct {
	base string
	host string
}

func NewURLs(conf *util.AppConfig) *URLs {
	return &URLs{
		base: conf.BaseURL(),
		host: strings.ToLower(conf.Conf.SslDomain),
	}
}

func (u *URLs) Actor(name string) string {
	return u.base + "/u/" + name
}

func (u *URLs) Inbox(name string) string {
	return u.Actor(name) + "/ap/inbox"
}

func (u *URLs) SharedInbox() string {
	return u.base + "/ap/inbox"
}

func (u *URLs) Outbox(name string) string {
	return u.Actor(name) + "/outbox"
}

func (u *URLs) Followers(name string) string {
	return u.Actor(name) + "/followers"
}

func (u *URLs) Post(id string) string {
	return u.base + "/p/" + id
}

func (u *URLs) Host() string {
	return u.host
}

// IsLocal reports whether iri is served by this instance.
func (u *URLs) IsLocal(iri string) bool {
	return hostOf(iri) == u.host
}

// KeyID is the id of the actor's signing key.
func KeyID(actorIRI string) string {
	return actorIRI + "#main-key"
}

// NewActivityID mints the id of an outbound activity.
func NewActivityID(actorIRI, kind string) string {
	return fmt.Sprintf("%s/activities/%s/%s", actorIRI, kind, uuid.New().String())
}

func hostOf(iri string) string {
	u, err := url.Parse(iri)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func sameHost(a, b string) bool {
	h := hostOf(a)
	return h != "" && h == hostOf(b)
}
