package domain

import (
	"fmt"
	"time"
)

// User is either a local account or the cached profile of a remote actor.
type User struct {
	Id                        string    `db:"id"`
	APId                      string    `db:"ap_id"`
	Local                     bool      `db:"local"`
	Name                      string    `db:"name"`
	Instance                  string    `db:"instance"`
	DisplayName               string    `db:"display_name"`
	Bio                       string    `db:"bio"`
	InboxURI                  string    `db:"inbox_uri"`
	SharedInboxURI            string    `db:"shared_inbox_uri"`
	OutboxURI                 string    `db:"outbox_uri"`
	FollowersURI              string    `db:"followers_uri"`
	PublicKeyPem              string    `db:"public_key"`
	PrivateKeyPem             string    `db:"private_key"`
	ManuallyApprovesFollowers bool      `db:"manually_approves_followers"`
	Bot                       bool      `db:"bot"`
	Published                 time.Time `db:"published"`
	Updated                   time.Time `db:"updated"`
	LastFetchedAt             time.Time `db:"last_fetched_at"`
}

// PreferredInbox returns the shared inbox when the actor advertises one.
func (u *User) PreferredInbox() string {
	if u.SharedInboxURI != "" {
		return u.SharedInboxURI
	}
	return u.InboxURI
}

// Acct is the Mastodon style account handle: "name" for local users, "name@instance" otherwise.
func (u *User) Acct() string {
	if u.Local {
		return u.Name
	}
	return fmt.Sprintf("%s@%s", u.Name, u.Instance)
}

// Session maps a bearer token to a local user.
type Session struct {
	Token     string    `db:"token"`
	UserId    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
