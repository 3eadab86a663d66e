package verify

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/cashcore/bioverify/internal/accounts"
)

// CodePattern matches a verification code anywhere in bio text: the
// CASHCORE prefix and six ASCII digits, case-insensitive.
var CodePattern = regexp.MustCompile(`(?i)` + accounts.CodePrefix + `[0-9]{6}`)

// ErrNoCode is the result error when a bio contains no code-shaped text.
const ErrNoCode = "no verification code found in bio"

// MatchResult is the decision for one bio.
type MatchResult struct {
	Verified  bool
	CodeFound string // leftmost match, case as written in the bio
	Error     string
}

// Match decides whether bio proves ownership. With no expected code any
// well-formed code verifies; otherwise expected must be among the codes
// found, compared case-insensitively. CodeFound is always the leftmost match.
func Match(bio, expected string) MatchResult {
	codes := CodePattern.FindAllString(bio, -1)
	if len(codes) == 0 {
		return MatchResult{Error: ErrNoCode}
	}

	res := MatchResult{Verified: true, CodeFound: codes[0]}
	if expected == "" {
		return res
	}

	want := strings.ToLower(expected)
	if !slices.ContainsFunc(codes, func(c string) bool { return strings.ToLower(c) == want }) {
		res.Verified = false
		res.Error = fmt.Sprintf("expected code %s not found, found: %s", expected, strings.Join(codes, ", "))
	}
	return res
}
