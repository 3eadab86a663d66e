package main

import (
	"fmt"
	"time"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/auth"
	"github.com/cashcore/bioverify/internal/migrate"
	"github.com/cashcore/bioverify/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ── link ─────────────────────────────────────────────────────────────────────

var (
	linkUserID   string
	linkPlatform string
	linkUsername string
	linkReset    bool
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link an account to a user and assign a verification code",
	Long: `Link records that a user claims an account and assigns it a fresh
CASHCORE code. Linking an already-linked account rotates its code and clears
its verification state; --reset-code only rotates the code.`,
	RunE: runLink,
}

func init() {
	linkCmd.Flags().StringVar(&linkUserID, "user-id", "", "owning user")
	linkCmd.Flags().StringVar(&linkPlatform, "platform", "", "instagram, tiktok or youtube")
	linkCmd.Flags().StringVar(&linkUsername, "username", "", "account handle, with or without @")
	linkCmd.Flags().BoolVar(&linkReset, "reset-code", false, "rotate the code of an existing link without clearing its state")
	for _, f := range []string{"user-id", "platform", "username"} {
		_ = linkCmd.MarkFlagRequired(f)
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	platform, err := accounts.ParsePlatform(linkPlatform)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	var acct *accounts.Account
	if linkReset {
		acct, err = a.store.Get(ctx, linkUserID, platform, linkUsername)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		code, err := a.store.ResetCode(ctx, acct.ID)
		if err != nil {
			return fmt.Errorf("reset code: %w", err)
		}
		acct.VerificationCode = &code
	} else {
		acct, err = a.store.Link(ctx, linkUserID, platform, linkUsername)
		if err != nil {
			return fmt.Errorf("link account: %w", err)
		}
	}
	return printAccount(cmd.OutOrStdout(), acct)
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenUserID string
	tokenAdmin  bool
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with api.jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret is not set")
		}
		role := auth.RoleUser
		if tokenAdmin {
			role = auth.RoleAdmin
		}
		tok, err := auth.NewTokenIssuer(cfg.API.JWTSecret, "", cfg.API.TokenTTL).Issue(tokenUserID, role, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user the token acts as")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "issue an admin token that may act on any user")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default api.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("user-id")
}

// ── migrate ──────────────────────────────────────────────────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("%w: set database.url or DATABASE_URL", accounts.ErrStoreDisabled)
		}
		ctx := cmd.Context()
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		n, err := migrate.Up(ctx, db, migrations.FS, logger)
		if err != nil {
			return err
		}
		if n == 0 {
			logger.Info("nothing to migrate; already up to date")
		} else {
			logger.Info("migrations applied", zap.Int("count", n))
		}
		return nil
	},
}
