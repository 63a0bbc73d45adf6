package domain

import "time"

type NotificationKind string

const (
	NotificationFollow        NotificationKind = "follow"
	NotificationFollowRequest NotificationKind = "follow_request"
	NotificationFavourite     NotificationKind = "favourite"
	NotificationReblog        NotificationKind = "reblog"
	NotificationMention       NotificationKind = "mention"
)

// Notification is addressed to a local ReceiverId. PostId is empty for follow kinds.
type Notification struct {
	Id         string           `db:"id"`
	ActorId    string           `db:"actor_id"`
	ReceiverId string           `db:"receiver_id"`
	PostId     string           `db:"post_id"`
	Kind       NotificationKind `db:"kind"`
	Published  time.Time        `db:"published"`
}
