package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cashcore/bioverify/internal/api"
	"github.com/cashcore/bioverify/internal/auth"
	"github.com/cashcore/bioverify/internal/batch"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveWithRunner bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the verification HTTP API",
	Long: `Serve exposes verification over HTTP on api.port:

  GET  /healthz
  GET  /metrics
  POST /api/v1/verify
  POST /api/v1/users/:user_id/verify[?force=true]
  GET  /api/v1/users/:user_id/accounts
  POST /api/v1/users/:user_id/accounts

Requests need a bearer token from "bioverify token" when api.jwt_secret is
set. --with-runner also runs continuous batches in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithRunner, "with-runner", false, "run continuous batch verification alongside the API")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, serveWithRunner)
	if err != nil {
		return err
	}
	defer a.close()

	var tokens *auth.TokenIssuer
	if cfg.API.JWTSecret != "" {
		tokens = auth.NewTokenIssuer(cfg.API.JWTSecret, "", cfg.API.TokenTTL)
	} else {
		logger.Warn("api.jwt_secret not set; API authentication disabled")
	}

	rcfg := api.RouterConfig{
		CORSOrigins:  cfg.API.CORSOrigins,
		RateLimitRPS: cfg.API.RateLimitRPS,
		Tokens:       tokens,
	}
	var h *api.Handler
	if a.store != nil {
		rcfg.Health = a.store
		h = api.NewHandler(a.engine, a.store, cfg.Batch.StaleAfter, logger)
	} else {
		h = api.NewHandler(a.engine, nil, cfg.Batch.StaleAfter, logger)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           api.NewRouter(ctx, rcfg, h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("bioverify API listening", zap.Int("port", cfg.API.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", zap.Error(err))
			stop()
		}
	}()

	runnerDone := make(chan struct{})
	if serveWithRunner {
		runner := batch.NewRunner(newScheduler(a), cfg.Runner, logger)
		go func() {
			defer close(runnerDone)
			runner.Run(ctx)
		}()
	} else {
		close(runnerDone)
	}

	<-ctx.Done()
	logger.Info("shutting down bioverify API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	<-runnerDone

	logger.Info("bioverify API stopped")
	return nil
}
