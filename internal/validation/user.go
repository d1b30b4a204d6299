// Package validation holds input rules shared by the HTTP layer and services.
package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatgraph/internal/models"
)

const (
	MinPasswordLength    = 8
	MaxPasswordLength    = 128
	MaxEmailLength       = 254
	MaxGroupNameLength   = 100
	MaxMessageLength     = 4000
	MaxDisplayNameLength = 100
)

var (
	usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)
	emailRegex    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]{1,64}@[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?(?:\.[A-Za-z0-9](?:[A-Za-z0-9\-]*[A-Za-z0-9])?)+$`)
)

var reservedUsernames = map[string]struct{}{
	"admin":   {},
	"api":     {},
	"auth":    {},
	"friends": {},
	"groups":  {},
	"me":      {},
	"metrics": {},
	"rooms":   {},
	"swagger": {},
	"system":  {},
	"users":   {},
	"ws":      {},
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks an already normalized username.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return models.NewValidationError("username must be 3-30 characters of lowercase letters, digits or underscores")
	}
	if _, reserved := reservedUsernames[username]; reserved {
		return models.NewValidationError("username is reserved")
	}
	return nil
}

// ValidateEmail checks address shape and length.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength || !emailRegex.MatchString(email) {
		return models.NewValidationError("email is invalid")
	}
	return nil
}

// ValidatePassword requires at least one letter and one digit.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return models.NewValidationError("password must be 8-128 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return models.NewValidationError("password must contain a letter and a digit")
	}
	return nil
}

// GroupName trims name and checks it is present and short enough.
func GroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", models.NewValidationError("group name is required")
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return "", models.NewValidationError("group name must be at most 100 characters")
	}
	return name, nil
}

// MessageContent trims content and checks it is present and short enough.
func MessageContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewValidationError("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", models.NewValidationError("message content must be at most 4000 characters")
	}
	return content, nil
}

// DisplayName trims name and limits its length. Empty is allowed.
func DisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return "", models.NewValidationError("name must be at most 100 characters")
	}
	return name, nil
}
