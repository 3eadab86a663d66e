package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFormat(t *testing.T, f string) {
	t.Helper()
	prev := outputFormat
	outputFormat = f
	t.Cleanup(func() { outputFormat = prev })
}

func TestPrintResult_text(t *testing.T) {
	withFormat(t, "text")
	bio := strings.Repeat("x", 250) + " CASHCORE123456"
	var buf bytes.Buffer

	require.NoError(t, printResult(&buf, verify.Result{
		Platform:  accounts.PlatformInstagram,
		Username:  "alice",
		Verified:  true,
		CodeFound: "CASHCORE123456",
		Bio:       &bio,
	}))
	out := buf.String()
	assert.Contains(t, out, "Verification result for instagram/alice")
	assert.Contains(t, out, "Status: ✅ VERIFIED")
	assert.Contains(t, out, "Code found: CASHCORE123456")
	assert.Contains(t, out, "Bio: "+strings.Repeat("x", 200)+"...")
	assert.NotContains(t, out, "Error:")
}

func TestPrintResult_failureText(t *testing.T) {
	withFormat(t, "text")
	var buf bytes.Buffer

	require.NoError(t, printResult(&buf, verify.Result{
		Platform: accounts.PlatformTikTok,
		Username: "bob",
		Error:    "tiktok returned status 404 for bob",
	}))
	out := buf.String()
	assert.Contains(t, out, "Status: ❌ NOT VERIFIED")
	assert.Contains(t, out, "Error: tiktok returned status 404 for bob")
	assert.NotContains(t, out, "Bio:")
}

func TestPrintUserResults(t *testing.T) {
	withFormat(t, "text")
	var buf bytes.Buffer
	require.NoError(t, printUserResults(&buf, "u1", map[accounts.Platform][]verify.Result{
		accounts.PlatformYouTube:   {{Username: "chan", Verified: true, CodeFound: "CASHCORE000001"}},
		accounts.PlatformInstagram: {{Username: "alice", Error: verify.ErrNoCode}},
	}))
	out := buf.String()
	assert.Less(t, strings.Index(out, "INSTAGRAM:"), strings.Index(out, "YOUTUBE:"))
	assert.Contains(t, out, "  alice: ❌ NOT VERIFIED")
	assert.Contains(t, out, "    Error: no verification code found in bio")

	buf.Reset()
	require.NoError(t, printUserResults(&buf, "nobody", nil))
	assert.Contains(t, buf.String(), "No linked accounts found for user nobody")
}

func TestPrintBatch_json(t *testing.T) {
	withFormat(t, "json")
	var buf bytes.Buffer
	require.NoError(t, printBatch(&buf, map[string][]verify.Result{
		"u1": {{Platform: accounts.PlatformTikTok, Username: "bob", Verified: true}},
	}))

	var decoded map[string][]verify.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded["u1"], 1)
	assert.True(t, decoded["u1"][0].Verified)
}
