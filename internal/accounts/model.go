package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the social network an account lives on.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformInstagram, PlatformTikTok, PlatformYouTube}

// ParsePlatform normalises a user-supplied platform name. Unknown names are
// returned as-is together with an error so callers can still report them.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return p, fmt.Errorf("unsupported platform: %s", s)
	}
	return p, nil
}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformInstagram, PlatformTikTok, PlatformYouTube:
		return true
	}
	return false
}

func (p Platform) String() string { return string(p) }

// Account is a linked social account and its verification state, mapping to
// the "user_accounts" table.
type Account struct {
	ID               uuid.UUID  `json:"id"                          db:"id"`
	UserID           string     `json:"user_id"                     db:"user_id"`
	Platform         Platform   `json:"platform"                    db:"platform"`
	Username         string     `json:"username"                    db:"username"`
	VerificationCode *string    `json:"verification_code,omitempty" db:"verification_code"`
	Verified         bool       `json:"verified"                    db:"verified"`
	CodeFound        *string    `json:"code_found,omitempty"        db:"verification_code_found"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"   db:"last_verification_attempt"`
	LastError        *string    `json:"last_error,omitempty"        db:"verification_error"`
	CreatedAt        time.Time  `json:"created_at"                  db:"created_at"`
}

// ExpectedCode returns the assigned verification code, or "" when none has
// been assigned yet.
func (a *Account) ExpectedCode() string {
	if a.VerificationCode == nil {
		return ""
	}
	return *a.VerificationCode
}

// AttemptedSince reports whether the account was checked at or after t.
func (a *Account) AttemptedSince(t time.Time) bool {
	return a.LastAttemptAt != nil && !a.LastAttemptAt.Before(t)
}

// VerificationUpdate carries the fields written back after each attempt.
// Nil pointers are stored as NULL.
type VerificationUpdate struct {
	Verified    bool
	CodeFound   *string
	AttemptedAt time.Time
	Error       *string
}

// NormalizeUsername trims whitespace and a leading "@" handle marker.
func NormalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}
