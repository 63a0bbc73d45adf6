package activitypub

import (
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/util"
)

// LocalUser builds the record of a new local account named name.
func (u *URLs) LocalUser(name string, keys *util.RsaKeyPair) *domain.User {
	return &domain.User{
		APId:           u.Actor(name),
		Local:          true,
		Name:           name,
		Instance:       u.host,
		DisplayName:    name,
		InboxURI:       u.Inbox(name),
		SharedInboxURI: u.SharedInbox(),
		OutboxURI:      u.Outbox(name),
		FollowersURI:   u.Followers(name),
		PublicKeyPem:   keys.Public,
		PrivateKeyPem:  keys.Private,
	}
}

func PersonFromUser(u *domain.User) *Person {
	kind := "Person"
	if u.Bot {
		kind = "Service"
	}
	published := u.Published
	p := &Person{
		Context:                   defaultContext,
		ID:                        u.APId,
		Type:                      kind,
		PreferredUsername:         u.Name,
		Name:                      u.DisplayName,
		Summary:                   u.Bio,
		Inbox:                     u.InboxURI,
		Outbox:                    u.OutboxURI,
		Followers:                 u.FollowersURI,
		ManuallyApprovesFollowers: u.ManuallyApprovesFollowers,
		Published:                 &published,
		PublicKey: PublicKey{
			ID:           KeyID(u.APId),
			Owner:        u.APId,
			PublicKeyPem: u.PublicKeyPem,
		},
	}
	if u.SharedInboxURI != "" {
		p.Endpoints = &Endpoints{SharedInbox: u.SharedInboxURI}
	}
	return p
}

// UserFromPerson maps a fetched actor document to a remote user record.
func UserFromPerson(p *Person) (*domain.User, error) {
	instance := hostOf(p.ID)
	if instance == "" {
		return nil, errors.Errorf("actor id %q has no host", p.ID)
	}
	if p.PublicKey.Owner != "" && p.PublicKey.Owner != p.ID {
		return nil, errors.Errorf("key of %s is owned by %s", p.ID, p.PublicKey.Owner)
	}
	u := &domain.User{
		APId:                      p.ID,
		Name:                      p.PreferredUsername,
		Instance:                  instance,
		DisplayName:               p.Name,
		Bio:                       p.Summary,
		InboxURI:                  p.Inbox,
		OutboxURI:                 p.Outbox,
		FollowersURI:              p.Followers,
		PublicKeyPem:              p.PublicKey.PublicKeyPem,
		ManuallyApprovesFollowers: p.ManuallyApprovesFollowers,
		Bot:                       p.Type == "Service" || p.Type == "Application",
	}
	if p.Endpoints != nil {
		u.SharedInboxURI = p.Endpoints.SharedInbox
	}
	if p.Published != nil {
		u.Published = p.Published.UTC()
	}
	return u, nil
}

// VisibilityFromAddressing derives visibility the way Mastodon does: public
// in to, public in cc, the followers collection, or nobody but the tagged.
func VisibilityFromAddressing(to, cc IRIs, followersURI string) domain.Visibility {
	switch {
	case to.Contains(PublicIRI):
		return domain.VisibilityPublic
	case cc.Contains(PublicIRI):
		return domain.VisibilityUnlisted
	case followersURI != "" && (to.Contains(followersURI) || cc.Contains(followersURI)):
		return domain.VisibilityFollowers
	}
	return domain.VisibilityDirect
}

// Addressing is the inverse of VisibilityFromAddressing.
func Addressing(vis domain.Visibility, followersURI string, mentions []string) (to, cc []string) {
	switch vis {
	case domain.VisibilityPublic:
		return []string{PublicIRI}, append([]string{followersURI}, mentions...)
	case domain.VisibilityUnlisted:
		return []string{followersURI}, append([]string{PublicIRI}, mentions...)
	case domain.VisibilityFollowers:
		return []string{followersURI}, mentions
	}
	return mentions, nil
}

func NoteFromPost(p *domain.Post, author *domain.User, mentioned []domain.User) *Note {
	iris := make([]string, len(mentioned))
	tags := make([]Tag, len(mentioned))
	for i := range mentioned {
		iris[i] = mentioned[i].APId
		tags[i] = Tag{Type: "Mention", Href: mentioned[i].APId, Name: "@" + mentioned[i].Name + "@" + mentioned[i].Instance}
	}
	to, cc := Addressing(p.Visibility, author.FollowersURI, iris)

	published := p.Published
	n := &Note{
		ID:           p.APId,
		Type:         "Note",
		AttributedTo: IRI(author.APId),
		Content:      p.Content,
		Summary:      p.ContentWarning,
		Sensitive:    p.Sensitive || p.ContentWarning != "",
		URL:          IRI(p.URL),
		InReplyTo:    IRI(p.InReplyToURI),
		Published:    &published,
		To:           toIRIs(to),
		CC:           toIRIs(cc),
		Tag:          tags,
	}
	if p.Updated.After(p.Published.Add(time.Second)) {
		updated := p.Updated
		n.Updated = &updated
	}
	return n
}

// PostFromNote maps a received note written by author.
func PostFromNote(n *Note, author *domain.User) *domain.Post {
	p := &domain.Post{
		APId:           n.ID,
		AuthorId:       author.Id,
		Content:        n.Content,
		ContentWarning: n.Summary,
		Sensitive:      n.Sensitive,
		URL:            n.URL.String(),
		InReplyToURI:   n.InReplyTo.String(),
		Visibility:     VisibilityFromAddressing(n.To, n.CC, author.FollowersURI),
	}
	if p.URL == "" {
		p.URL = n.ID
	}
	if n.Published != nil {
		p.Published = n.Published.UTC()
	}
	if n.Updated != nil {
		p.Updated = n.Updated.UTC()
	}
	return p
}

// mentionHrefs returns the distinct actor IRIs tagged as mentions.
func mentionHrefs(tags []Tag) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tags {
		if !strings.EqualFold(t.Type, "Mention") || t.Href == "" || seen[t.Href] {
			continue
		}
		seen[t.Href] = true
		out = append(out, t.Href)
	}
	return out
}
