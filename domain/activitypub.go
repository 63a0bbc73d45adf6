package domain

import (
	"time"

	"github.com/google/uuid"
)

// FollowEdge is a confirmed follow of FollowedId by FollowerId.
type FollowEdge struct {
	FollowerId string    `db:"follower_id"`
	FollowedId string    `db:"followed_id"`
	APId       string    `db:"ap_id"` // origin Follow activity, empty for local follows
	Published  time.Time `db:"published"`
}

// FollowRequest is a follow awaiting approval by FollowedId.
type FollowRequest FollowEdge

// Like represents a like/favourite on a post
type Like struct {
	ActorId   string    `db:"actor_id"`
	PostId    string    `db:"post_id"`
	APId      string    `db:"ap_id"`
	Published time.Time `db:"published"`
}

// Boost is an Announce of PostId by ActorId.
type Boost struct {
	Id         string     `db:"id"`
	APId       string     `db:"ap_id"`
	PostId     string     `db:"post_id"`
	ActorId    string     `db:"actor_id"`
	Visibility Visibility `db:"visibility"`
	Published  time.Time  `db:"published"`
}

// ProcessedActivity is one entry of the dedup ledger.
type ProcessedActivity struct {
	APId       string    `db:"ap_id"`
	ReceivedAt time.Time `db:"received_at"`
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID `db:"id"`
	SenderId     string    `db:"sender_id"`
	InboxURI     string    `db:"inbox_uri"`
	ActivityJSON string    `db:"activity_json"` // The complete activity to deliver
	Attempts     int       `db:"attempts"`
	NextRetryAt  time.Time `db:"next_retry_at"`
	CreatedAt    time.Time `db:"created_at"`
}
