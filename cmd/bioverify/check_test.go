package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticBio string

func (s staticBio) FetchBio(context.Context, string) (string, error) { return string(s), nil }

func testApp() *app {
	reg := bio.NewRegistry(map[accounts.Platform]bio.Fetcher{
		accounts.PlatformTikTok: staticBio("dance CASHCORE314159"),
	})
	return &app{engine: verify.NewEngine(reg, nil, zap.NewNop())}
}

func TestCheckOne_verified(t *testing.T) {
	withFormat(t, "text")
	var buf bytes.Buffer

	require.NoError(t, testApp().checkOne(context.Background(), &buf, "TikTok", "@bob", "", ""))
	out := buf.String()
	assert.Contains(t, out, "Verification result for tiktok/bob")
	assert.Contains(t, out, "Status: ✅ VERIFIED")
	assert.Contains(t, out, "Code found: CASHCORE314159")
}

func TestCheckOne_unknownPlatformPrintsResult(t *testing.T) {
	withFormat(t, "text")
	var buf bytes.Buffer

	err := testApp().checkOne(context.Background(), &buf, "MySpace", "tom", "", "u1")
	assert.ErrorIs(t, err, errNotVerified)
	out := buf.String()
	assert.Contains(t, out, "Verification result for myspace/tom")
	assert.Contains(t, out, "Status: ❌ NOT VERIFIED")
	assert.Contains(t, out, "Error: unsupported platform: myspace")
}
