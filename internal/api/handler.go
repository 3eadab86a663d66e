// Package api exposes verification over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/auth"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Verifier is the verification surface used by the handlers.
// *verify.Engine satisfies this interface.
type Verifier interface {
	VerifyAccount(ctx context.Context, platform accounts.Platform, username, expectedCode, userID string) verify.Result
	VerifyUserAccounts(ctx context.Context, userID string) map[accounts.Platform][]verify.Result
	Record(ctx context.Context, acct *accounts.Account, res verify.Result)
}

// AccountStore is the subset of the account store the handlers use.
type AccountStore interface {
	Get(ctx context.Context, userID string, platform accounts.Platform, username string) (*accounts.Account, error)
	Link(ctx context.Context, userID string, platform accounts.Platform, username string) (*accounts.Account, error)
	ListByUser(ctx context.Context, userID string) ([]*accounts.Account, error)
}

// Handler serves the /api/v1 routes.
type Handler struct {
	engine     Verifier
	store      AccountStore // nil when no database is configured
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewHandler creates a Handler. store may be nil; the per-user routes then
// answer 503.
func NewHandler(engine Verifier, store AccountStore, staleAfter time.Duration, logger *zap.Logger) *Handler {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Handler{
		engine:     engine,
		store:      store,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Register mounts the routes on rg. tokens may be nil to disable auth.
func (h *Handler) Register(rg *gin.RouterGroup, tokens *auth.TokenIssuer) {
	rg.POST("/verify", auth.RequireToken(tokens), h.Verify)

	users := rg.Group("/users/:user_id", auth.RequireToken(tokens), auth.RequireUserParam(tokens, "user_id"))
	{
		users.POST("/verify", h.VerifyUser)
		users.GET("/accounts", h.ListAccounts)
		users.POST("/accounts", h.LinkAccount)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type verifyRequest struct {
	Platform     string `json:"platform"      binding:"required"`
	Username     string `json:"username"      binding:"required"`
	ExpectedCode string `json:"expected_code"`
	UserID       string `json:"user_id"`
}

type linkRequest struct {
	Platform string `json:"platform" binding:"required"`
	Username string `json:"username" binding:"required"`
}

type userResultsResponse struct {
	UserID   string                                `json:"user_id"`
	Verified int                                   `json:"verified"`
	Total    int                                   `json:"total"`
	Results  map[accounts.Platform][]verify.Result `json:"results"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Verify handles POST /verify. Checks one account. The result is persisted
// only when user_id names an existing record.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	platform, err := accounts.ParsePlatform(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := accounts.NormalizeUsername(req.Username)

	if claims := auth.ClaimsFromCtx(c); claims != nil && req.UserID != "" && !claims.CanActFor(req.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for this user"})
		return
	}

	ctx := c.Request.Context()
	res := h.engine.VerifyAccount(ctx, platform, username, req.ExpectedCode, req.UserID)

	if req.UserID != "" && h.store != nil {
		acct, err := h.store.Get(ctx, req.UserID, platform, username)
		switch {
		case err == nil:
			h.engine.Record(ctx, acct, res)
		case !errors.Is(err, accounts.ErrNotFound):
			h.logger.Warn("api: load account for recording", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, res)
}

// VerifyUser handles POST /users/:user_id/verify. Re-checks every linked
// account. Unless ?force=true, a user whose accounts were all checked within
// the staleness window gets 409 with the stored state.
func (h *Handler) VerifyUser(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	userID := c.Param("user_id")
	force, _ := strconv.ParseBool(c.Query("force"))
	ctx := c.Request.Context()

	accts, err := h.store.ListByUser(ctx, userID)
	if err != nil {
		h.logger.Error("api: list accounts", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load accounts"})
		return
	}
	if len(accts) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no linked accounts"})
		return
	}
	if !force && allAttemptedSince(accts, h.now().Add(-h.staleAfter)) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "accounts were verified recently; retry with force=true",
			"accounts": accts,
		})
		return
	}

	results := h.engine.VerifyUserAccounts(ctx, userID)
	resp := userResultsResponse{UserID: userID, Results: results}
	for _, rs := range results {
		for _, r := range rs {
			resp.Total++
			if r.Verified {
				resp.Verified++
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListAccounts handles GET /users/:user_id/accounts.
func (h *Handler) ListAccounts(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	accts, err := h.store.ListByUser(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.logger.Error("api: list accounts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load accounts"})
		return
	}
	if accts == nil {
		accts = []*accounts.Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accts})
}

// LinkAccount handles POST /users/:user_id/accounts. Links an account and
// assigns a fresh verification code.
func (h *Handler) LinkAccount(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	platform, err := accounts.ParsePlatform(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	acct, err := h.store.Link(c.Request.Context(), c.Param("user_id"), platform, req.Username)
	if err != nil {
		h.logger.Error("api: link account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not link account"})
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": accounts.ErrStoreDisabled.Error()})
	return false
}

func allAttemptedSince(accts []*accounts.Account, t time.Time) bool {
	for _, a := range accts {
		if !a.AttemptedSince(t) {
			return false
		}
	}
	return true
}
