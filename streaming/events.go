package streaming

import (
	"github.com/deemkeen/tusk/domain"
)

// Category is a client-visible stream name. One per-user channel carries
// events for several categories; subscribers filter on them.
type Category string

const (
	Public            Category = "public"
	PublicMedia       Category = "public:media"
	PublicLocal       Category = "public:local"
	PublicLocalMedia  Category = "public:local:media"
	PublicRemote      Category = "public:remote"
	PublicRemoteMedia Category = "public:remote:media"
	Hashtag           Category = "hashtag"
	HashtagLocal      Category = "hashtag:local"
	User              Category = "user"
	UserNotification  Category = "user:notification"
	List              Category = "list"
	Direct            Category = "direct"
)

var categories = map[string]Category{
	string(Public):            Public,
	string(PublicMedia):       PublicMedia,
	string(PublicLocal):       PublicLocal,
	string(PublicLocalMedia):  PublicLocalMedia,
	string(PublicRemote):      PublicRemote,
	string(PublicRemoteMedia): PublicRemoteMedia,
	string(Hashtag):           Hashtag,
	string(HashtagLocal):      HashtagLocal,
	string(User):              User,
	string(UserNotification):  UserNotification,
	string(List):              List,
	string(Direct):            Direct,
}

// ParseCategory maps a stream name sent by a client to a Category.
func ParseCategory(name string) (Category, bool) {
	c, ok := categories[name]
	return c, ok
}

type EventKind string

const (
	KindUpdate         EventKind = "update"
	KindDelete         EventKind = "delete"
	KindNotification   EventKind = "notification"
	KindFiltersChanged EventKind = "filters_changed"
	KindStatusUpdate   EventKind = "status.update"
)

// Event is published to one receiver's channel. Exactly one of the payload
// fields is set, matching Kind.
type Event struct {
	Kind         EventKind
	Categories   []Category
	Notification *domain.Notification
	Post         *domain.Post
	DeletedId    string
}

// Matches reports whether the event carries any of the wanted categories.
func (e Event) Matches(wanted map[Category]bool) bool {
	for _, c := range e.Categories {
		if wanted[c] {
			return true
		}
	}
	return false
}

// Names returns the category names in publication order.
func (e Event) Names() []string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = string(c)
	}
	return names
}

func NotificationEvent(n *domain.Notification) Event {
	return Event{Kind: KindNotification, Categories: []Category{User, UserNotification}, Notification: n}
}

func UpdateEvent(p *domain.Post, categories ...Category) Event {
	return Event{Kind: KindUpdate, Categories: categories, Post: p}
}

func DeleteEvent(postID string, categories ...Category) Event {
	return Event{Kind: KindDelete, Categories: categories, DeletedId: postID}
}

// StatusUpdateEvent announces an edit of a post the receiver has already seen.
func StatusUpdateEvent(p *domain.Post, categories ...Category) Event {
	return Event{Kind: KindStatusUpdate, Categories: categories, Post: p}
}
