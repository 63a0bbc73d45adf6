package web

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deemkeen/tusk/domain"
	"github.com/deemkeen/tusk/streaming"
)

// Account, Status and Notification are the client API shapes streamed as event payloads.
type Account struct {
	Id          string    `json:"id"`
	Username    string    `json:"username"`
	Acct        string    `json:"acct"`
	DisplayName string    `json:"display_name"`
	Note        string    `json:"note"`
	URL         string    `json:"url"`
	Locked      bool      `json:"locked"`
	Bot         bool      `json:"bot"`
	CreatedAt   time.Time `json:"created_at"`
}

type Status struct {
	Id          string     `json:"id"`
	URI         string     `json:"uri"`
	URL         string     `json:"url"`
	CreatedAt   time.Time  `json:"created_at"`
	EditedAt    *time.Time `json:"edited_at"`
	Content     string     `json:"content"`
	SpoilerText string     `json:"spoiler_text"`
	Sensitive   bool       `json:"sensitive"`
	Visibility  string     `json:"visibility"`
	InReplyTo   *string    `json:"in_reply_to_uri"`
	Account     Account    `json:"account"`
	Mentions    []Mention  `json:"mentions"`
}

type Mention struct {
	Id       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

type Notification struct {
	Id        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   Account   `json:"account"`
	Status    *Status   `json:"status,omitempty"`
}

func accountOf(u *domain.User) Account {
	name := u.DisplayName
	if name == "" {
		name = u.Name
	}
	return Account{
		Id:          u.Id,
		Username:    u.Name,
		Acct:        u.Acct(),
		DisplayName: name,
		Note:        u.Bio,
		URL:         u.APId,
		Locked:      u.ManuallyApprovesFollowers,
		Bot:         u.Bot,
		CreatedAt:   u.Published,
	}
}

func (s *Server) status(ctx context.Context, p *domain.Post) (*Status, error) {
	author, err := s.store.UserById(ctx, p.AuthorId)
	if err != nil {
		return nil, fmt.Errorf("failed to load author of %s: %w", p.Id, err)
	}
	mentioned, err := s.store.MentionedUsers(ctx, p.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to load mentions of %s: %w", p.Id, err)
	}

	st := &Status{
		Id:          p.Id,
		URI:         p.APId,
		URL:         p.URL,
		CreatedAt:   p.Published,
		Content:     p.Content,
		SpoilerText: p.ContentWarning,
		Sensitive:   p.Sensitive,
		Visibility:  string(p.Visibility),
		Account:     accountOf(author),
		Mentions:    make([]Mention, 0, len(mentioned)),
	}
	if st.URL == "" {
		st.URL = p.APId
	}
	if !p.Updated.IsZero() && p.Updated.After(p.Published) {
		edited := p.Updated
		st.EditedAt = &edited
	}
	if p.InReplyToURI != "" {
		reply := p.InReplyToURI
		st.InReplyTo = &reply
	}
	for _, m := range mentioned {
		st.Mentions = append(st.Mentions, Mention{Id: m.Id, Username: m.Name, Acct: m.Acct(), URL: m.APId})
	}
	return st, nil
}

func (s *Server) notification(ctx context.Context, n *domain.Notification) (*Notification, error) {
	actor, err := s.store.UserById(ctx, n.ActorId)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor of notification %s: %w", n.Id, err)
	}
	out := &Notification{
		Id:        n.Id,
		Type:      string(n.Kind),
		CreatedAt: n.Published,
		Account:   accountOf(actor),
	}
	if n.PostId != "" {
		post, err := s.store.PostById(ctx, n.PostId)
		if err != nil {
			return nil, fmt.Errorf("failed to load post of notification %s: %w", n.Id, err)
		}
		if out.Status, err = s.status(ctx, post); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// payload renders the event body the way clients expect it: JSON for
// notifications and statuses, the bare id for deletes.
func (s *Server) payload(ctx context.Context, ev streaming.Event) (string, error) {
	var v any
	switch ev.Kind {
	case streaming.KindNotification:
		n, err := s.notification(ctx, ev.Notification)
		if err != nil {
			return "", err
		}
		v = n
	case streaming.KindUpdate, streaming.KindStatusUpdate:
		st, err := s.status(ctx, ev.Post)
		if err != nil {
			return "", err
		}
		v = st
	case streaming.KindDelete:
		return ev.DeletedId, nil
	default:
		return "", nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", ev.Kind, err)
	}
	return string(b), nil
}
