package storage

import (
	"time"

	"github.com/samber/lo"
)

// User is the identity record the rest of the system reasons about.
// Credentials live with the external identity provider, not here.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is a named container of messages with one creator and a member set.
// MemberIDs is loaded alongside the row so access checks can stay pure.
type Channel struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedBy int64     `json:"created_by"`
	MemberIDs []int64   `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// IsMember reports whether the given user id is in the channel's member set.
func (c Channel) IsMember(userID int64) bool {
	return lo.Contains(c.MemberIDs, userID)
}

// Message is immutable once created. Username is the author's name
// denormalized for read convenience.
type Message struct {
	ID           int64     `json:"id"`
	ChannelID    int64     `json:"channel_id"`
	AuthorID     int64     `json:"user_id"`
	Content      string    `json:"content"`
	ImageURL     string    `json:"image_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
}
