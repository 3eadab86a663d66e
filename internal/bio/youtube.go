package bio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cashcore/bioverify/internal/accounts"
	"go.uber.org/zap"
)

// YouTubeFetcher resolves a channel through the YouTube Data API and returns
// its description. When no API key is configured, or the API path fails, it
// scrapes the channel's about page instead.
type YouTubeFetcher struct {
	client   *http.Client
	apiURL   string
	apiKey   string
	channels ChannelCache
	fallback Fetcher
	logger   *zap.Logger
}

// NewYouTubeFetcher creates a YouTubeFetcher. apiKey may be empty.
func NewYouTubeFetcher(client *http.Client, apiURL, apiKey string, channels ChannelCache, fallback Fetcher, logger *zap.Logger) *YouTubeFetcher {
	if channels == nil {
		channels = NewMemoryChannelCache(0)
	}
	return &YouTubeFetcher{
		client:   client,
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   apiKey,
		channels: channels,
		fallback: fallback,
		logger:   logger,
	}
}

// FetchBio implements Fetcher.
//
// The lookup is a straight two-step chain:
//  1. Data API: search for the channel, then read its snippet description.
//     An empty description is a successful result.
//  2. On any API failure, scrape the about page.
func (f *YouTubeFetcher) FetchBio(ctx context.Context, username string) (string, error) {
	username = accounts.NormalizeUsername(username)

	if f.apiKey == "" {
		f.logger.Debug("youtube: no api key configured, scraping", zap.String("username", username))
		return f.fallback.FetchBio(ctx, username)
	}

	desc, apiErr := f.fetchViaAPI(ctx, username)
	if apiErr == nil {
		f.logger.Info("youtube: description retrieved via api",
			zap.String("username", username),
			zap.Int("length", len(desc)),
		)
		return desc, nil
	}

	f.logger.Warn("youtube: api lookup failed, falling back to scraping",
		zap.String("username", username),
		zap.Error(apiErr),
	)

	desc, err := f.fallback.FetchBio(ctx, username)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.Reason = fmt.Sprintf("%s (api: %v)", fe.Reason, apiErr)
			fe.Err = errors.Join(fe.Err, apiErr)
			return "", fe
		}
		return "", err
	}
	return desc, nil
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelID string `json:"channelId"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Description string `json:"description"`
		} `json:"snippet"`
	} `json:"items"`
}

func (f *YouTubeFetcher) fetchViaAPI(ctx context.Context, username string) (string, error) {
	channelID, err := f.resolveChannel(ctx, username)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", channelID)

	var ch channelsResponse
	if err := f.apiGet(ctx, "channels", q, &ch); err != nil {
		return "", fmt.Errorf("get channel %s: %w", channelID, err)
	}
	if len(ch.Items) == 0 {
		return "", fmt.Errorf("no youtube channel details found for id %s", channelID)
	}
	return ch.Items[0].Snippet.Description, nil
}

// resolveChannel maps a username to a channel ID, consulting the cache first.
// Search calls are expensive in API quota, so hits are cached.
func (f *YouTubeFetcher) resolveChannel(ctx context.Context, username string) (string, error) {
	if id, ok := f.channels.Get(ctx, username); ok {
		f.logger.Debug("youtube: channel cache hit", zap.String("username", username))
		return id, nil
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "channel")
	q.Set("maxResults", "1")
	q.Set("q", username)

	var sr searchResponse
	if err := f.apiGet(ctx, "search", q, &sr); err != nil {
		return "", fmt.Errorf("search channel %s: %w", username, err)
	}
	if len(sr.Items) == 0 {
		return "", fmt.Errorf("no youtube channel found for username %s", username)
	}

	id := sr.Items[0].Snippet.ChannelID
	if id == "" {
		id = sr.Items[0].ID.ChannelID
	}
	if id == "" {
		return "", fmt.Errorf("youtube search result for %s has no channel id", username)
	}
	f.channels.Set(ctx, username, id)
	return id, nil
}

// apiGet performs an authenticated Data API GET and decodes the JSON body into out.
func (f *YouTubeFetcher) apiGet(ctx context.Context, resource string, q url.Values, out any) error {
	q.Set("key", f.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.apiURL+"/"+resource+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiErrorBody
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("youtube api status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("youtube api status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", resource, err)
	}
	return nil
}
