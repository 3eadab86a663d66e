package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the server answers 404.
	ErrNotFound = errors.New("not found")
	// ErrRecentlyVerified is returned by VerifyUser when the server declines
	// to re-check accounts that were attempted recently.
	ErrRecentlyVerified = errors.New("accounts were verified recently")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bioverify: server returned %d: %s", e.StatusCode, e.Message)
}

// Result is the outcome of one account check.
type Result struct {
	Platform  string    `json:"platform"`
	Username  string    `json:"username"`
	Verified  bool      `json:"verified"`
	CodeFound string    `json:"code_found,omitempty"`
	Bio       *string   `json:"bio,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Account is a linked social account.
type Account struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Platform         string     `json:"platform"`
	Username         string     `json:"username"`
	VerificationCode *string    `json:"verification_code,omitempty"`
	Verified         bool       `json:"verified"`
	CodeFound        *string    `json:"code_found,omitempty"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	LastError        *string    `json:"last_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// VerifyRequest is the payload for Verify. UserID is optional; when it names
// an account linked on the server the result is recorded there.
type VerifyRequest struct {
	Platform     string `json:"platform"`
	Username     string `json:"username"`
	ExpectedCode string `json:"expected_code,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

// UserResults is the answer to VerifyUser.
type UserResults struct {
	UserID   string              `json:"user_id"`
	Verified int                 `json:"verified"`
	Total    int                 `json:"total"`
	Results  map[string][]Result `json:"results"`
}

// Client talks to one bioverify server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken sends token in the Authorization header of every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Healthy reports whether GET /healthz answers 200.
func (c *Client) Healthy(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Verify checks one account.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Result, error) {
	var res Result
	if err := c.call(ctx, http.MethodPost, "/api/v1/verify", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// VerifyUser re-checks every account linked by userID.
func (c *Client) VerifyUser(ctx context.Context, userID string, force bool) (*UserResults, error) {
	path := "/api/v1/users/" + url.PathEscape(userID) + "/verify"
	if force {
		path += "?force=true"
	}
	var out UserResults
	err := c.call(ctx, http.MethodPost, path, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("%w: %s", ErrRecentlyVerified, apiErr.Message)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAccounts returns the accounts linked by userID.
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(userID)+"/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// LinkAccount links platform/username to userID and returns the account with
// its newly assigned verification code.
func (c *Client) LinkAccount(ctx context.Context, userID, platform, username string) (*Account, error) {
	body := map[string]string{"platform": platform, "username": username}
	var acct Account
	if err := c.call(ctx, http.MethodPost, "/api/v1/users/"+url.PathEscape(userID)+"/accounts", body, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	status, raw, err := c.do(req)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, errorMessage(raw))
	}
	if status >= 300 {
		return &APIError{StatusCode: status, Message: errorMessage(raw)}
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// errorMessage extracts {"error": "..."} from a server answer, falling back
// to the raw body.
func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
