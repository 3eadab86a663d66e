// Package verify decides whether a social account's public bio proves that
// its claimed owner controls it, and records the outcome on the account.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BioSource fetches bio text for a platform account. *bio.Registry
// satisfies this interface.
type BioSource interface {
	FetchBio(ctx context.Context, platform accounts.Platform, username string) (string, error)
}

// AccountStore is the subset of the account store the engine reads and
// writes. *accounts.PostgresStore and *accounts.MemoryStore satisfy it.
type AccountStore interface {
	GetVerificationCode(ctx context.Context, userID string, platform accounts.Platform, username string) (string, error)
	ListByUser(ctx context.Context, userID string) ([]*accounts.Account, error)
	UpdateVerification(ctx context.Context, id uuid.UUID, upd accounts.VerificationUpdate) error
}

// Outcome classifies a Result for metrics.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeNoCode      Outcome = "no_code"
	OutcomeMismatch    Outcome = "mismatch"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeError       Outcome = "error"
)

// Metrics receives per-attempt observations.
type Metrics interface {
	RecordVerification(platform, outcome string)
	RecordFetchFailure(platform, source string)
}

// StatusChangeFunc is called after a persisted result flips an account's
// verified flag.
type StatusChangeFunc func(ctx context.Context, acct *accounts.Account, res Result)

// Engine runs single-account verifications. It never returns an error to its
// caller: every failure ends up in Result.Error.
type Engine struct {
	bios           BioSource
	store          AccountStore
	match          func(bio, expected string) MatchResult
	now            func() time.Time
	metrics        Metrics
	onStatusChange StatusChangeFunc
	strictCodes    bool
	logger         *zap.Logger
}

// NewEngine creates an Engine. store may be nil, which disables expected-code
// lookups, per-user verification and persistence.
func NewEngine(bios BioSource, store AccountStore, logger *zap.Logger) *Engine {
	return &Engine{
		bios:   bios,
		store:  store,
		match:  Match,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetMetrics configures the metrics sink.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// SetStatusChangeHook configures the callback fired when an account's
// verified flag changes.
func (e *Engine) SetStatusChangeHook(fn StatusChangeFunc) {
	e.onStatusChange = fn
}

// SetStrictCodes makes VerifyAndRecord and VerifyUserAccounts require each
// record's assigned code. By default any well-formed code verifies a stored
// account.
func (e *Engine) SetStrictCodes(strict bool) {
	e.strictCodes = strict
}

// VerifyAccount checks one account's bio.
//
//  1. With no expectedCode and a userID, the stored code is looked up; a
//     missing record or store error only means no code is expected.
//  2. The platform's bio is fetched. A failed fetch yields an unverified
//     result carrying the reason and the matcher is not consulted.
//  3. The bio is matched against the code pattern and expectedCode.
func (e *Engine) VerifyAccount(ctx context.Context, platform accounts.Platform, username, expectedCode, userID string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("verify: recovered panic",
				zap.String("platform", platform.String()),
				zap.String("username", username),
				zap.Any("panic", r),
			)
			res = Result{
				Platform:  platform,
				Username:  username,
				Error:     fmt.Sprint(r),
				CheckedAt: e.now(),
			}
			e.record(platform, OutcomeError)
		}
	}()

	if expectedCode == "" && userID != "" {
		expectedCode = e.lookupCode(ctx, userID, platform, username)
	}

	text, err := e.bios.FetchBio(ctx, platform, username)
	if err != nil {
		source := string(bio.SourceNone)
		var fe *bio.FetchError
		if errors.As(err, &fe) {
			source = string(fe.Source)
		}
		if e.metrics != nil {
			e.metrics.RecordFetchFailure(platform.String(), source)
		}
		e.record(platform, OutcomeFetchFailed)
		return Result{
			Platform:  platform,
			Username:  username,
			Error:     err.Error(),
			CheckedAt: e.now(),
		}
	}

	m := e.match(text, expectedCode)
	res = Result{
		Platform:  platform,
		Username:  username,
		Verified:  m.Verified,
		CodeFound: m.CodeFound,
		Bio:       &text,
		Error:     m.Error,
		CheckedAt: e.now(),
	}

	switch {
	case m.Verified:
		e.record(platform, OutcomeVerified)
	case m.CodeFound == "":
		e.record(platform, OutcomeNoCode)
	default:
		e.record(platform, OutcomeMismatch)
	}
	return res
}

// VerifyAndRecord verifies a stored account and persists the result. Only
// with strict codes enabled is the record's assigned code expected.
func (e *Engine) VerifyAndRecord(ctx context.Context, acct *accounts.Account) Result {
	var expected string
	if e.strictCodes {
		expected = acct.ExpectedCode()
	}
	res := e.VerifyAccount(ctx, acct.Platform, acct.Username, expected, "")
	e.Record(ctx, acct, res)
	return res
}

// VerifyUserAccounts verifies every account linked by userID, one at a time,
// persisting each result as it completes. Results are grouped by platform in
// record order. An unreachable store or a user without accounts yields an
// empty map.
func (e *Engine) VerifyUserAccounts(ctx context.Context, userID string) map[accounts.Platform][]Result {
	out := make(map[accounts.Platform][]Result)
	if e.store == nil {
		e.logger.Error("verify: account store not configured")
		return out
	}

	accts, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		e.logger.Error("verify: list user accounts", zap.String("user_id", userID), zap.Error(err))
		return out
	}
	if len(accts) == 0 {
		e.logger.Info("verify: no linked accounts", zap.String("user_id", userID))
		return out
	}

	for _, a := range accts {
		e.logger.Info("verify: checking account",
			zap.String("user_id", userID),
			zap.String("platform", a.Platform.String()),
			zap.String("username", a.Username),
		)
		res := e.VerifyAndRecord(ctx, a)
		out[a.Platform] = append(out[a.Platform], res)
	}
	return out
}

// Record writes res onto acct. Write failures are logged and swallowed: the
// returned Result stays authoritative even if it was not persisted.
func (e *Engine) Record(ctx context.Context, acct *accounts.Account, res Result) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateVerification(ctx, acct.ID, res.Update()); err != nil {
		e.logger.Error("verify: persist result",
			zap.String("account_id", acct.ID.String()),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("verify: result recorded",
		zap.String("account_id", acct.ID.String()),
		zap.Bool("verified", res.Verified),
	)
	if acct.Verified != res.Verified && e.onStatusChange != nil {
		e.onStatusChange(ctx, acct, res)
	}
}

func (e *Engine) lookupCode(ctx context.Context, userID string, platform accounts.Platform, username string) string {
	if e.store == nil {
		return ""
	}
	code, err := e.store.GetVerificationCode(ctx, userID, platform, username)
	if err != nil {
		e.logger.Warn("verify: could not read stored verification code",
			zap.String("user_id", userID),
			zap.String("platform", platform.String()),
			zap.String("username", username),
			zap.Error(err),
		)
		return ""
	}
	if code != "" {
		e.logger.Info("verify: using stored verification code",
			zap.String("user_id", userID),
			zap.String("platform", platform.String()),
		)
	}
	return code
}

func (e *Engine) record(platform accounts.Platform, outcome Outcome) {
	if e.metrics != nil {
		e.metrics.RecordVerification(platform.String(), string(outcome))
	}
}
