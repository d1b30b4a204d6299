package models

import (
	"time"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders statuses along sent < delivered < read.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// Below returns every status that ranks strictly below s.
func (s MessageStatus) Below() []MessageStatus {
	out := make([]MessageStatus, 0, 2)
	for _, st := range []MessageStatus{MessageStatusSent, MessageStatusDelivered, MessageStatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// Message is a chat message. Status only moves forward and ReadBy holds at
// most one receipt per reader, in the order they were recorded.
type Message struct {
	ID        string        `gorm:"primaryKey;type:varchar(24)" json:"id"`
	RoomID    string        `gorm:"type:varchar(36);not null;index:idx_messages_room_created,priority:1" json:"room_id"`
	SenderID  string        `gorm:"type:varchar(36);not null" json:"sender_id"`
	Content   string        `gorm:"type:text;not null" json:"content"`
	Status    MessageStatus `gorm:"type:varchar(16);not null;default:'sent'" json:"status"`
	ReadBy    []ReadReceipt `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"read_by"`
	CreatedAt time.Time     `gorm:"index:idx_messages_room_created,priority:2" json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// HasReader reports whether userID already has a receipt on m.
func (m *Message) HasReader(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ReadReceipt records that UserID viewed a message.
type ReadReceipt struct {
	MessageID string    `gorm:"primaryKey;type:varchar(24)" json:"-"`
	UserID    string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	ReadAt    time.Time `gorm:"not null;index" json:"read_at"`
}

// TableName specifies the table name for GORM
func (ReadReceipt) TableName() string {
	return "message_reads"
}

// ResetToken is a single-use password reset credential.
type ResetToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
