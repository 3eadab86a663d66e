package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cashcore/bioverify/internal/verify"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Runner.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// BatchRunner runs a single batch. *Scheduler satisfies this interface.
type BatchRunner interface {
	RunPending(ctx context.Context, limit int) (map[string][]verify.Result, error)
}

// RunnerConfig holds continuous-run configuration.
type RunnerConfig struct {
	BatchSize int
	Interval  time.Duration // sleep after a successful batch
	Cooldown  time.Duration // sleep after a failed batch
}

// Runner repeats batches until its context is cancelled.
type Runner struct {
	batches BatchRunner
	cfg     RunnerConfig
	state   atomic.Int32
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zap.Logger
}

// NewRunner creates a Runner. Zero durations take their defaults: 60m
// between batches, 5m after a failure.
func NewRunner(batches BatchRunner, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Runner{
		batches: batches,
		cfg:     cfg,
		sleep:   sleepContext,
		logger:  logger,
	}
}

// State reports whether Run is currently looping.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run loops: one batch, a summary log line, then a sleep of Interval (or
// Cooldown after a failure). Cancellation is observed before each batch and
// during sleeps only; a batch that has started runs to completion.
func (r *Runner) Run(ctx context.Context) {
	r.state.Store(int32(StateRunning))
	defer r.state.Store(int32(StateStopped))

	r.logger.Info("runner: started",
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Duration("interval", r.cfg.Interval),
	)

	for {
		if ctx.Err() != nil {
			r.logger.Info("runner: stopped by request")
			return
		}

		wait := r.cfg.Interval
		if err := r.runOnce(context.WithoutCancel(ctx)); err != nil {
			r.logger.Error("runner: batch failed",
				zap.Error(err),
				zap.Duration("retry_in", r.cfg.Cooldown),
			)
			wait = r.cfg.Cooldown
		}

		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info("runner: stopped by request")
			return
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("batch panicked: %v", rec)
		}
	}()

	results, err := r.batches.RunPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	sum := Summarize(results)
	r.logger.Info("runner: batch complete",
		zap.Int("verified", sum.Verified),
		zap.Int("processed", sum.Processed),
		zap.Int("users", sum.Users),
	)
	return nil
}
