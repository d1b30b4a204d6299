package models

import (
	"time"
)

// FriendshipStatus represents the status of a friendship row.
type FriendshipStatus string

const (
	// FriendshipStatusPending indicates a pending one-way request from RequesterID.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted indicates a symmetric friendship.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
)

// RequestStatus is the relation between the caller and another user.
type RequestStatus string

const (
	RequestStatusNone     RequestStatus = "NONE"
	RequestStatusSent     RequestStatus = "SENT"
	RequestStatusReceived RequestStatus = "RECEIVED"
	RequestStatusFriend   RequestStatus = "FRIEND"
)

// Friendship is the single row describing an unordered user pair. UserLow and
// UserHigh are the pair sorted lexically, so the unique index admits at most
// one relation per pair in either direction.
type Friendship struct {
	UserLow     string           `gorm:"primaryKey;type:varchar(36)" json:"user_low"`
	UserHigh    string           `gorm:"primaryKey;type:varchar(36)" json:"user_high"`
	RequesterID string           `gorm:"type:varchar(36);not null;index" json:"requester_id"`
	Status      FriendshipStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_friendships_status" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// OrderedPair returns a and b sorted so the lower id comes first.
func OrderedPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// PairKey is the canonical key of an unordered pair.
func PairKey(a, b string) string {
	lo, hi := OrderedPair(a, b)
	return lo + ":" + hi
}

// Other returns the member of the pair that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.UserLow == userID {
		return f.UserHigh
	}
	return f.UserLow
}

// StatusFor describes the row from userID's point of view.
func (f *Friendship) StatusFor(userID string) RequestStatus {
	if f == nil {
		return RequestStatusNone
	}
	if f.Status == FriendshipStatusAccepted {
		return RequestStatusFriend
	}
	if f.RequesterID == userID {
		return RequestStatusSent
	}
	return RequestStatusReceived
}

// FriendEntry is a friend id plus the private room they share with the caller.
type FriendEntry struct {
	UserID string
	RoomID string
}

// Friend is a friend as returned to API clients.
type Friend struct {
	UserSummary
	RoomID      string   `json:"room_id,omitempty"`
	LastMessage *Message `json:"last_message,omitempty"`
}

// Detachment records what DetachFriendship removed so it can be restored.
type Detachment struct {
	RoomID        string
	RoomCreatedAt time.Time
}
