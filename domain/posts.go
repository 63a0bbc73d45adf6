package domain

import "time"

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityUnlisted  Visibility = "unlisted"
	VisibilityFollowers Visibility = "private"
	VisibilityDirect    Visibility = "direct"
)

func ParseVisibility(s string) (Visibility, bool) {
	switch v := Visibility(s); v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityFollowers, VisibilityDirect:
		return v, true
	}
	return "", false
}

// Post is a content item, local or received from a remote instance.
type Post struct {
	Id             string     `db:"id"`
	APId           string     `db:"ap_id"`
	AuthorId       string     `db:"author_id"`
	Content        string     `db:"content"`
	ContentWarning string     `db:"content_warning"`
	Sensitive      bool       `db:"sensitive"`
	URL            string     `db:"url"`
	InReplyToURI   string     `db:"in_reply_to_uri"`
	Visibility     Visibility `db:"visibility"`
	LocalOnly      bool       `db:"local_only"`
	Published      time.Time  `db:"published"`
	Updated        time.Time  `db:"updated"`
}

// Mention records that a post addresses a user by tag.
type Mention struct {
	PostId string `db:"post_id"`
	UserId string `db:"user_id"`
}
