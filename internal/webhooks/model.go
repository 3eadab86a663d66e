package webhooks

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Event types dispatched when an account's verified flag changes.
const (
	EventAccountVerified   = "account.verified"
	EventAccountUnverified = "account.unverified"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Bioverify-Signature"

// Endpoint is a configured webhook receiver.
type Endpoint struct {
	URL    string   `mapstructure:"url"    json:"url"`
	Secret string   `mapstructure:"secret" json:"-"`
	Events []string `mapstructure:"events" json:"events"` // empty receives every event
}

// Accepts reports whether the endpoint subscribes to eventType.
func (e Endpoint) Accepts(eventType string) bool {
	return len(e.Events) == 0 || slices.Contains(e.Events, eventType)
}

// Event is the JSON body posted to endpoints.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   AccountPayload `json:"payload"`
}

// AccountPayload describes the account whose status changed.
type AccountPayload struct {
	AccountID string    `json:"account_id"`
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	Username  string    `json:"username"`
	Verified  bool      `json:"verified"`
	CodeFound string    `json:"code_found,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}
