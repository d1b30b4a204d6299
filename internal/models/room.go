package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PrivateRoomName is the display name given to every private room.
const PrivateRoomName = "Private Chat"

// ChatRoom is a conversation scope: a private room between two friends or a
// named group with at least one admin.
type ChatRoom struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name    string `gorm:"type:varchar(100);not null" json:"name"`
	IsGroup bool   `gorm:"not null;index" json:"is_group"`
	// PrivateKey is the sorted member pair for private rooms and nil for groups.
	PrivateKey *string   `gorm:"type:varchar(80);uniqueIndex" json:"-"`
	CreatedAt  time.Time `json:"created_at"`

	LastMessage *Message `gorm:"-" json:"last_message,omitempty"`
}

// TableName specifies the table name for GORM
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// BeforeCreate assigns a UUID when none was supplied.
func (r *ChatRoom) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RoomMember is the HAS_MEMBER edge; IsAdmin carries IS_ADMIN_OF so the admin
// edge cannot exist without membership.
type RoomMember struct {
	RoomID    string    `gorm:"primaryKey;type:varchar(36)" json:"room_id"`
	UserID    string    `gorm:"primaryKey;type:varchar(36);index" json:"user_id"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (RoomMember) TableName() string {
	return "room_members"
}
