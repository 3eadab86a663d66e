package bio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cashcore/bioverify/internal/accounts"
	"go.uber.org/zap"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxPageBytes caps how much of a profile page is read.
const maxPageBytes = 8 << 20

// Scraper fetches public profile pages and pulls a single JSON string field
// out of the data blob embedded in the markup.
type Scraper struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewScraper creates a Scraper using client for all requests.
func NewScraper(client *http.Client, userAgent string, logger *zap.Logger) *Scraper {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Scraper{client: client, userAgent: userAgent, logger: logger}
}

// fieldPattern matches "<field>":"<json string body>", honouring escaped quotes.
func fieldPattern(field string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `":"((?:[^"\\]|\\.)*)"`)
}

// Extract GETs pageURL with browser-like headers and returns the unescaped
// value of the first occurrence of field.
func (s *Scraper) Extract(ctx context.Context, platform accounts.Platform, username, pageURL string, field *regexp.Regexp) (string, error) {
	fail := func(err error, format string, args ...any) (string, error) {
		fe := &FetchError{
			Platform: platform,
			Username: username,
			Source:   SourceScrape,
			Reason:   fmt.Sprintf(format, args...),
			Err:      err,
		}
		s.logger.Warn("bio: scrape failed",
			zap.String("platform", platform.String()),
			zap.String("username", username),
			zap.String("reason", fe.Reason),
		)
		return "", fe
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fail(err, "build %s request: %v", platform, err)
	}
	// Accept-Encoding is left to the transport so gzip is decoded transparently.
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(err, "%s request failed for %s: %v", platform, username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(nil, "%s returned status %d for %s", platform, resp.StatusCode, username)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return fail(err, "read %s page for %s: %v", platform, username, err)
	}

	m := field.FindSubmatch(body)
	if m == nil {
		return fail(nil, "could not extract bio from %s page for %s", platform, username)
	}
	return unescape(string(m[1])), nil
}

// unescape decodes the \n, \" and \\ sequences found in embedded JSON
// strings. Any other escape is kept verbatim.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}

// ScrapeFetcher is a Fetcher that reads one field from a profile page.
type ScrapeFetcher struct {
	scraper  *Scraper
	platform accounts.Platform
	pageURL  func(username string) string
	field    *regexp.Regexp
}

// FetchBio implements Fetcher.
func (f *ScrapeFetcher) FetchBio(ctx context.Context, username string) (string, error) {
	username = accounts.NormalizeUsername(username)
	return f.scraper.Extract(ctx, f.platform, username, f.pageURL(username), f.field)
}

// NewInstagramFetcher scrapes https://www.instagram.com/<user>/ for "biography".
func NewInstagramFetcher(scraper *Scraper, baseURL string) *ScrapeFetcher {
	base := strings.TrimRight(baseURL, "/")
	return &ScrapeFetcher{
		scraper:  scraper,
		platform: accounts.PlatformInstagram,
		pageURL:  func(u string) string { return base + "/" + url.PathEscape(u) + "/" },
		field:    fieldPattern("biography"),
	}
}

// NewTikTokFetcher scrapes https://www.tiktok.com/@<user> for "signature".
func NewTikTokFetcher(scraper *Scraper, baseURL string) *ScrapeFetcher {
	base := strings.TrimRight(baseURL, "/")
	return &ScrapeFetcher{
		scraper:  scraper,
		platform: accounts.PlatformTikTok,
		pageURL:  func(u string) string { return base + "/@" + url.PathEscape(u) },
		field:    fieldPattern("signature"),
	}
}

// NewYouTubeScrapeFetcher scrapes https://www.youtube.com/@<user>/about for
// "description". It backs YouTubeFetcher when the Data API is unavailable.
func NewYouTubeScrapeFetcher(scraper *Scraper, baseURL string) *ScrapeFetcher {
	base := strings.TrimRight(baseURL, "/")
	return &ScrapeFetcher{
		scraper:  scraper,
		platform: accounts.PlatformYouTube,
		pageURL:  func(u string) string { return base + "/@" + url.PathEscape(u) + "/about" },
		field:    fieldPattern("description"),
	}
}
