package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/api"
	"github.com/cashcore/bioverify/internal/auth"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/cashcore/bioverify/pkg/client"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ── Test server ─────────────────────────────────────────────────────────

type staticBio string

func (s staticBio) FetchBio(context.Context, string) (string, error) { return string(s), nil }

func newServer(t *testing.T, tokens *auth.TokenIssuer) (*httptest.Server, *accounts.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := accounts.NewMemoryStore()
	reg := bio.NewRegistry(map[accounts.Platform]bio.Fetcher{
		accounts.PlatformInstagram: staticBio("shop link CASHCORE123456"),
		accounts.PlatformTikTok:    staticBio("nothing here"),
	})
	engine := verify.NewEngine(reg, store, zap.NewNop())
	h := api.NewHandler(engine, store, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(api.NewRouter(ctx, api.RouterConfig{Tokens: tokens}, h, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, store
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidBaseURL(t *testing.T) {
	_, err := client.New("not a url")
	assert.Error(t, err)

	_, err = client.New("http://localhost:8080", client.WithTimeout(0))
	assert.Error(t, err)

	_, err = client.New("http://localhost:8080", client.WithHTTPClient(nil))
	assert.Error(t, err)
}

func TestHealthy(t *testing.T) {
	srv, _ := newServer(t, nil)
	c, err := client.New(srv.URL + "/")
	require.NoError(t, err)
	assert.NoError(t, c.Healthy(context.Background()))
}

func TestVerify(t *testing.T) {
	srv, _ := newServer(t, nil)
	c, err := client.New(srv.URL)
	require.NoError(t, err)

	res, err := c.Verify(context.Background(), client.VerifyRequest{Platform: "instagram", Username: "@alice"})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "CASHCORE123456", res.CodeFound)
	assert.Equal(t, "alice", res.Username)
	require.NotNil(t, res.Bio)

	_, err = c.Verify(context.Background(), client.VerifyRequest{Platform: "myspace", Username: "tom"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "myspace")
}

func TestLinkListAndVerifyUser(t *testing.T) {
	srv, _ := newServer(t, nil)
	c, err := client.New(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.VerifyUser(ctx, "u1", false)
	assert.ErrorIs(t, err, client.ErrNotFound)

	acct, err := c.LinkAccount(ctx, "u1", "tiktok", "@bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", acct.Username)
	require.NotNil(t, acct.VerificationCode)
	assert.Regexp(t, `^CASHCORE[0-9]{6}$`, *acct.VerificationCode)

	list, err := c.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, acct.ID, list[0].ID)

	summary, err := c.VerifyUser(ctx, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Zero(t, summary.Verified)
	require.Len(t, summary.Results["tiktok"], 1)
	assert.NotEmpty(t, summary.Results["tiktok"][0].Error)

	_, err = c.VerifyUser(ctx, "u1", false)
	assert.ErrorIs(t, err, client.ErrRecentlyVerified)

	summary, err = c.VerifyUser(ctx, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)

	list, err = c.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].LastAttemptAt)
}

func TestBearerToken(t *testing.T) {
	tokens := auth.NewTokenIssuer("client-test-secret", "", time.Hour)
	srv, _ := newServer(t, tokens)

	anon, err := client.New(srv.URL)
	require.NoError(t, err)
	_, err = anon.ListAccounts(context.Background(), "u1")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	tok, err := tokens.Issue("u1", auth.RoleUser, 0)
	require.NoError(t, err)
	c, err := client.New(srv.URL, client.WithBearerToken(tok))
	require.NoError(t, err)

	list, err := c.ListAccounts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = c.ListAccounts(context.Background(), "u2")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
