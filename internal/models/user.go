// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account holder. Relationship edges referencing a user live in the
// relationship store and are keyed by ID.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username  string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when none was supplied.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UserSummary is the public projection of a user embedded in events and listings.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Name: u.Name}
}

// UserStats aggregates a user's social footprint.
type UserStats struct {
	User         *User  `json:"user"`
	FriendsCount int    `json:"friends_count"`
	GroupsCount  int    `json:"groups_count"`
	Preference   string `json:"preference,omitempty"`
}

// SearchResult is one hit of a user search, annotated with the caller's relation.
type SearchResult struct {
	UserSummary
	RequestStatus RequestStatus `json:"request_status"`
}

// Suggestion is a recommended user with its ranking score.
type Suggestion struct {
	User  UserSummary `json:"user"`
	Score int         `json:"score"`
}

// ScoredUser is a suggestion candidate as produced by the relationship store.
type ScoredUser struct {
	UserID string
	Score  int
}
