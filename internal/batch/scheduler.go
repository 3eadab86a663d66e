// Package batch re-verifies stale accounts in bounded, paced batches, either
// once or continuously.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/verify"
	"go.uber.org/zap"
)

// ErrSelection wraps failures to read the pending set. The batch is aborted.
var ErrSelection = errors.New("select pending accounts")

// PendingLister returns accounts never attempted or last attempted before
// cutoff, at most limit of them, in the store's native order.
type PendingLister interface {
	ListPending(ctx context.Context, cutoff time.Time, limit int) ([]*accounts.Account, error)
}

// Verifier checks one stored account and persists the outcome.
// *verify.Engine satisfies this interface.
type Verifier interface {
	VerifyAndRecord(ctx context.Context, acct *accounts.Account) verify.Result
}

// Config holds batch configuration.
type Config struct {
	Size       int           // default cap per batch
	Pace       time.Duration // pause between consecutive accounts
	StaleAfter time.Duration // accounts attempted more recently are skipped
}

// MetricsRecordFunc is an optional callback invoked after every batch with
// "ok", "empty" or "error".
type MetricsRecordFunc func(result string, elapsed time.Duration)

// Scheduler selects pending accounts and verifies them one at a time.
type Scheduler struct {
	lister    PendingLister
	verifier  Verifier
	cfg       Config
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// NewScheduler creates a Scheduler. Zero config values take their defaults:
// 10 accounts per batch, 1s pace, 24h staleness.
func NewScheduler(lister PendingLister, verifier Verifier, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Size <= 0 {
		cfg.Size = 10
	}
	if cfg.Pace == 0 {
		cfg.Pace = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	return &Scheduler{
		lister:   lister,
		verifier: verifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
		logger:   logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (s *Scheduler) SetMetricsRecord(fn MetricsRecordFunc) {
	s.onMetrics = fn
}

// RunPending verifies up to limit pending accounts sequentially, pausing
// between accounts, and returns the results grouped by user id. limit <= 0
// uses the configured size.
//
// A selection failure returns an empty map and an error wrapping
// ErrSelection. If ctx is cancelled during a pause the remaining accounts
// are skipped and the partial results are returned with ctx.Err().
func (s *Scheduler) RunPending(ctx context.Context, limit int) (map[string][]verify.Result, error) {
	if limit <= 0 {
		limit = s.cfg.Size
	}
	start := s.now()
	out := make(map[string][]verify.Result)

	pending, err := s.lister.ListPending(ctx, start.Add(-s.cfg.StaleAfter), limit)
	if err != nil {
		s.logger.Error("batch: select pending accounts", zap.Error(err))
		s.observe("error", start)
		return out, fmt.Errorf("%w: %w", ErrSelection, err)
	}
	if len(pending) == 0 {
		s.logger.Info("batch: no accounts need verification")
		s.observe("empty", start)
		return out, nil
	}
	if len(pending) > limit {
		pending = pending[:limit]
	}

	s.logger.Info("batch: verifying accounts", zap.Int("count", len(pending)))
	for i, acct := range pending {
		res := s.verifier.VerifyAndRecord(ctx, acct)
		out[acct.UserID] = append(out[acct.UserID], res)

		if i == len(pending)-1 {
			break
		}
		if err := s.sleep(ctx, s.cfg.Pace); err != nil {
			s.logger.Warn("batch: interrupted",
				zap.Int("processed", i+1),
				zap.Int("selected", len(pending)),
			)
			s.observe("ok", start)
			return out, err
		}
	}

	s.observe("ok", start)
	return out, nil
}

func (s *Scheduler) observe(result string, start time.Time) {
	if s.onMetrics != nil {
		s.onMetrics(result, s.now().Sub(start))
	}
}

// Summary counts the results of one batch.
type Summary struct {
	Processed int
	Verified  int
	Users     int
}

// Summarize counts results grouped by user.
func Summarize(results map[string][]verify.Result) Summary {
	sum := Summary{Users: len(results)}
	for _, rs := range results {
		for _, r := range rs {
			sum.Processed++
			if r.Verified {
				sum.Verified++
			}
		}
	}
	return sum
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
