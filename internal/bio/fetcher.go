// Package bio retrieves the public bio/description text of social accounts.
//
// Each platform has one Fetcher. Instagram and TikTok are scraped from their
// public profile pages; YouTube prefers the Data API and falls back to
// scraping the channel "about" page. A Registry maps platforms to fetchers
// and answers unknown platforms with an explicit failure.
package bio

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"go.uber.org/zap"
)

// Fetcher retrieves the current public bio text for a username. Every
// failure is reported as a *FetchError.
type Fetcher interface {
	FetchBio(ctx context.Context, username string) (string, error)
}

// Source names the access method that produced a failure.
type Source string

const (
	SourceAPI    Source = "api"
	SourceScrape Source = "scrape"
	SourceNone   Source = "none"
)

// FetchError reports that a bio could not be retrieved. Reason is the
// human-readable message surfaced on verification results.
type FetchError struct {
	Platform accounts.Platform
	Username string
	Source   Source
	Reason   string
	Err      error
}

func (e *FetchError) Error() string { return e.Reason }

func (e *FetchError) Unwrap() error { return e.Err }

// Config holds fetcher configuration. Zero values fall back to DefaultConfig.
type Config struct {
	Timeout       time.Duration
	UserAgent     string
	InstagramURL  string
	TikTokURL     string
	YouTubeURL    string
	YouTubeAPIURL string
	YouTubeAPIKey string // empty disables the Data API path
}

// DefaultConfig returns the production endpoints and a 15s per-fetch timeout.
func DefaultConfig() Config {
	return Config{
		Timeout:       15 * time.Second,
		UserAgent:     defaultUserAgent,
		InstagramURL:  "https://www.instagram.com",
		TikTokURL:     "https://www.tiktok.com",
		YouTubeURL:    "https://www.youtube.com",
		YouTubeAPIURL: "https://www.googleapis.com/youtube/v3",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.InstagramURL == "" {
		c.InstagramURL = d.InstagramURL
	}
	if c.TikTokURL == "" {
		c.TikTokURL = d.TikTokURL
	}
	if c.YouTubeURL == "" {
		c.YouTubeURL = d.YouTubeURL
	}
	if c.YouTubeAPIURL == "" {
		c.YouTubeAPIURL = d.YouTubeAPIURL
	}
	return c
}

// Registry selects the Fetcher for a platform.
type Registry struct {
	fetchers map[accounts.Platform]Fetcher
}

// NewRegistry creates a Registry over an explicit platform table.
func NewRegistry(fetchers map[accounts.Platform]Fetcher) *Registry {
	return &Registry{fetchers: fetchers}
}

// New wires the production fetchers for all supported platforms. They share
// one http.Client whose timeout bounds every individual request. cache may be
// nil, in which case YouTube channel lookups are cached in memory.
func New(cfg Config, cache ChannelCache, logger *zap.Logger) *Registry {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NewMemoryChannelCache(24 * time.Hour)
	}
	client := &http.Client{Timeout: cfg.Timeout}
	scraper := NewScraper(client, cfg.UserAgent, logger)

	return NewRegistry(map[accounts.Platform]Fetcher{
		accounts.PlatformInstagram: NewInstagramFetcher(scraper, cfg.InstagramURL),
		accounts.PlatformTikTok:    NewTikTokFetcher(scraper, cfg.TikTokURL),
		accounts.PlatformYouTube: NewYouTubeFetcher(
			client, cfg.YouTubeAPIURL, cfg.YouTubeAPIKey, cache,
			NewYouTubeScrapeFetcher(scraper, cfg.YouTubeURL), logger,
		),
	})
}

// Fetcher returns the fetcher for p, or a fetcher that always fails with
// "unsupported platform" when p has none.
func (r *Registry) Fetcher(p accounts.Platform) Fetcher {
	if f, ok := r.fetchers[p]; ok {
		return f
	}
	return unsupportedFetcher{platform: p}
}

// FetchBio is shorthand for r.Fetcher(p).FetchBio(ctx, username).
func (r *Registry) FetchBio(ctx context.Context, p accounts.Platform, username string) (string, error) {
	return r.Fetcher(p).FetchBio(ctx, username)
}

type unsupportedFetcher struct {
	platform accounts.Platform
}

func (u unsupportedFetcher) FetchBio(_ context.Context, username string) (string, error) {
	return "", &FetchError{
		Platform: u.platform,
		Username: username,
		Source:   SourceNone,
		Reason:   fmt.Sprintf("unsupported platform: %s", u.platform),
	}
}
