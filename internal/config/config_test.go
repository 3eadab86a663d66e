package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, time.Second, cfg.Batch.Pace)
	assert.Equal(t, 24*time.Hour, cfg.Batch.StaleAfter)
	assert.Equal(t, 60*time.Minute, cfg.Runner.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Runner.Cooldown)
	assert.Equal(t, 15*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "https://www.instagram.com", cfg.Fetch.InstagramURL)
	assert.Equal(t, 8090, cfg.API.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Fetch.YouTubeAPIKey)
	assert.Empty(t, cfg.Webhooks)
	assert.False(t, cfg.StrictCodes)
	assert.Equal(t, 10*time.Minute, cfg.ChannelEvictInterval)
}

func TestLoad_envOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/bioverify")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("RUNNER_INTERVAL", "90s")
	t.Setenv("VERIFY_STRICT_CODES", "true")

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/bioverify", cfg.DatabaseURL)
	assert.Equal(t, "yt-key", cfg.Fetch.YouTubeAPIKey)
	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, 25, cfg.Runner.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Runner.Interval)
	assert.True(t, cfg.StrictCodes)
}

func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bioverify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
batch:
  size: 3
  pace: 250ms
webhooks:
  endpoints:
    - url: https://hooks.example.com/bio
      secret: s3cret
      events: [account.verified]
`), 0o600))

	cfg, err := Load(New(path))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Batch.Size)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Pace)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, "https://hooks.example.com/bio", cfg.Webhooks[0].URL)
	assert.Equal(t, "s3cret", cfg.Webhooks[0].Secret)
	assert.Equal(t, []string{"account.verified"}, cfg.Webhooks[0].Events)
}

func TestLoad_rejectsBadBatchSize(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BATCH_SIZE", "0")

	_, err := Load(New(""))
	assert.Error(t, err)
}

func TestLoad_missingExplicitFile(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "nope.yaml")))
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
