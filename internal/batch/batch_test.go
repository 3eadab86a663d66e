package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubLister struct {
	err   error
	calls int
}

func (s *stubLister) ListPending(_ context.Context, _ time.Time, _ int) ([]*accounts.Account, error) {
	s.calls++
	return nil, s.err
}

type countingVerifier struct {
	mu      sync.Mutex
	checked []string
}

func (v *countingVerifier) VerifyAndRecord(_ context.Context, acct *accounts.Account) verify.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checked = append(v.checked, acct.Username)
	return verify.Result{Platform: acct.Platform, Username: acct.Username, CheckedAt: time.Now().UTC()}
}

type bioFetcher string

func (b bioFetcher) FetchBio(context.Context, string) (string, error) { return string(b), nil }

func seedStore(t *testing.T, n int) *accounts.MemoryStore {
	t.Helper()
	store := accounts.NewMemoryStore()
	for i := 0; i < n; i++ {
		_, err := store.Link(context.Background(), "user-"+string(rune('a'+i%3)), accounts.PlatformInstagram, "acct"+string(rune('a'+i)))
		require.NoError(t, err)
	}
	return store
}

func noSleep(pauses *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*pauses = append(*pauses, d)
		return ctx.Err()
	}
}

// ── Scheduler ────────────────────────────────────────────────────────────

func TestRunPending_capsAtLimitAndPaces(t *testing.T) {
	store := seedStore(t, 12)
	v := &countingVerifier{}
	s := NewScheduler(store, v, Config{Pace: 250 * time.Millisecond}, zap.NewNop())
	var pauses []time.Duration
	s.sleep = noSleep(&pauses)

	out, err := s.RunPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, Summarize(out).Processed)
	assert.Equal(t, []string{"accta", "acctb", "acctc", "acctd", "accte"}, v.checked)
	// no pause after the last account
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, pauses)

	t.Run("non-positive limit uses configured size", func(t *testing.T) {
		v.checked = nil
		out, err := s.RunPending(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, 10, Summarize(out).Processed)
	})
}

func TestRunPending_groupsByUser(t *testing.T) {
	store := seedStore(t, 4)
	s := NewScheduler(store, &countingVerifier{}, Config{}, zap.NewNop())
	var pauses []time.Duration
	s.sleep = noSleep(&pauses)

	out, err := s.RunPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Len(t, out["user-a"], 2)
	assert.Equal(t, "accta", out["user-a"][0].Username)
	assert.Equal(t, "acctd", out["user-a"][1].Username)
}

func TestRunPending_freshResultsAreSkipped(t *testing.T) {
	store := seedStore(t, 3)
	engine := verify.NewEngine(bio.NewRegistry(map[accounts.Platform]bio.Fetcher{
		accounts.PlatformInstagram: bioFetcher("no code here"),
	}), store, zap.NewNop())
	s := NewScheduler(store, engine, Config{Pace: time.Nanosecond}, zap.NewNop())

	first, err := s.RunPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, Summarize(first).Processed)

	second, err := s.RunPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, second)

	t.Run("stale records are selected again", func(t *testing.T) {
		s.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
		again, err := s.RunPending(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 3, Summarize(again).Processed)
	})
}

func TestRunPending_selectionFailure(t *testing.T) {
	lister := &stubLister{err: errors.New("connection reset")}
	v := &countingVerifier{}
	s := NewScheduler(lister, v, Config{}, zap.NewNop())

	var recorded []string
	s.SetMetricsRecord(func(result string, _ time.Duration) { recorded = append(recorded, result) })

	out, err := s.RunPending(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelection)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, out)
	assert.Empty(t, v.checked)
	assert.Equal(t, []string{"error"}, recorded)
}

func TestRunPending_emptySelection(t *testing.T) {
	s := NewScheduler(accounts.NewMemoryStore(), &countingVerifier{}, Config{}, zap.NewNop())
	out, err := s.RunPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRunPending_cancelledDuringPause(t *testing.T) {
	store := seedStore(t, 5)
	v := &countingVerifier{}
	s := NewScheduler(store, v, Config{Pace: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	out, err := s.RunPending(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, Summarize(out).Processed)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(map[string][]verify.Result{
		"u1": {{Verified: true}, {Verified: false}},
		"u2": {{Verified: true}},
	})
	assert.Equal(t, Summary{Processed: 3, Verified: 2, Users: 2}, sum)
}

// ── Runner ───────────────────────────────────────────────────────────────

type scriptedBatches struct {
	mu      sync.Mutex
	calls   int
	script  []func() (map[string][]verify.Result, error)
	ctxErrs []error
	onCall  func(call int)
}

func (s *scriptedBatches) RunPending(ctx context.Context, _ int) (map[string][]verify.Result, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(call)
	}
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if call <= len(s.script) {
		return s.script[call-1]()
	}
	return map[string][]verify.Result{}, nil
}

func TestRunner_stopsDuringSleepWithoutAnotherBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	batches := &scriptedBatches{onCall: func(int) { cancel() }}
	r := NewRunner(batches, RunnerConfig{BatchSize: 3, Interval: time.Hour}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, 1, batches.calls)
	// the in-flight batch was not cancelled
	assert.Equal(t, []error{nil}, batches.ctxErrs)
	assert.Equal(t, StateStopped, r.State())
}

func TestRunner_cooldownAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	batches := &scriptedBatches{script: []func() (map[string][]verify.Result, error){
		func() (map[string][]verify.Result, error) { return map[string][]verify.Result{}, ErrSelection },
		func() (map[string][]verify.Result, error) { panic("store exploded") },
		func() (map[string][]verify.Result, error) {
			return map[string][]verify.Result{"u1": {{Verified: true}}}, nil
		},
	}}
	r := NewRunner(batches, RunnerConfig{Interval: time.Hour, Cooldown: time.Minute}, zap.NewNop())

	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
			return context.Canceled
		}
		return nil
	}

	r.Run(ctx)
	assert.Equal(t, 3, batches.calls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Hour}, waits)
}

func TestRunner_cancelledBeforeFirstBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batches := &scriptedBatches{}
	r := NewRunner(batches, RunnerConfig{}, zap.NewNop())

	r.Run(ctx)
	assert.Equal(t, 0, batches.calls)
	assert.Equal(t, StateStopped, r.State())
}
