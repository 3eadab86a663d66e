package verify

import (
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
)

// Result is the outcome of one verification attempt. It is a plain value:
// two results for the same account are unrelated.
type Result struct {
	Platform  accounts.Platform `json:"platform"`
	Username  string            `json:"username"`
	Verified  bool              `json:"verified"`
	CodeFound string            `json:"code_found,omitempty"`
	Bio       *string           `json:"bio,omitempty"` // nil unless the fetch succeeded
	Error     string            `json:"error,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Update converts r into the fields persisted on the account record.
func (r Result) Update() accounts.VerificationUpdate {
	upd := accounts.VerificationUpdate{
		Verified:    r.Verified,
		AttemptedAt: r.CheckedAt,
	}
	if r.CodeFound != "" {
		code := r.CodeFound
		upd.CodeFound = &code
	}
	if r.Error != "" {
		msg := r.Error
		upd.Error = &msg
	}
	return upd
}

// BioPreview returns at most n runes of the fetched bio, or "" if none.
func (r Result) BioPreview(n int) string {
	if r.Bio == nil {
		return ""
	}
	runes := []rune(*r.Bio)
	if len(runes) <= n {
		return *r.Bio
	}
	return string(runes[:n]) + "..."
}
