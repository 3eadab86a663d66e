package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cashcore/bioverify/internal/batch"
	"github.com/cashcore/bioverify/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScheduler(a *app) *batch.Scheduler {
	s := batch.NewScheduler(a.store, a.engine, cfg.Batch, logger)
	s.SetMetricsRecord(metrics.RecordBatch)
	return s
}

// ── batch ────────────────────────────────────────────────────────────────────

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Verify one batch of accounts that are unchecked or stale",
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "maximum accounts to check (default batch.size)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := newScheduler(a).RunPending(ctx, batchLimit)
	if printErr := printBatch(cmd.OutOrStdout(), results); printErr != nil {
		return printErr
	}
	return err
}

// ── run ──────────────────────────────────────────────────────────────────────

var (
	runBatchSize int
	runInterval  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Verify stale accounts continuously until interrupted",
	Long: `Run repeats batches forever: one batch, then a pause of --interval
(runner.cooldown after a failed batch). SIGINT or SIGTERM stops the runner
between batches; a batch in progress is allowed to finish.

Prometheus metrics are served on metrics.addr when it is set.`,
	RunE: runContinuous,
}

func init() {
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "accounts per batch (default batch.size)")
	runCmd.Flags().DurationVar(&runInterval, "interval", 0, "pause between batches (default runner.interval)")
}

func runContinuous(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	rc := cfg.Runner
	if runBatchSize > 0 {
		rc.BatchSize = runBatchSize
	}
	if runInterval > 0 {
		rc.Interval = runInterval
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.Server(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listen error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	batch.NewRunner(newScheduler(a), rc, logger).Run(ctx)
	return nil
}
