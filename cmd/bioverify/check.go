package main

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/spf13/cobra"
)

var errNotVerified = errors.New("account not verified")

// ── check ────────────────────────────────────────────────────────────────────

var (
	checkPlatform string
	checkUsername string
	checkUserID   string
	checkCode     string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one account's bio for a verification code",
	Long: `Check fetches the public bio of one account and looks for a CASHCORE
code. With --code the bio must contain that code; with --user-id the code
assigned to that user's linked account is expected instead. If the account
is linked to --user-id the result is recorded.

Exits non-zero when the account is not verified.

  bioverify check --platform instagram --username alice --code CASHCORE123456`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPlatform, "platform", "", "instagram, tiktok or youtube")
	checkCmd.Flags().StringVar(&checkUsername, "username", "", "account handle, with or without @")
	checkCmd.Flags().StringVar(&checkUserID, "user-id", "", "owner whose stored code is expected")
	checkCmd.Flags().StringVar(&checkCode, "code", "", "expected verification code")
	_ = checkCmd.MarkFlagRequired("platform")
	_ = checkCmd.MarkFlagRequired("username")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	return a.checkOne(ctx, cmd.OutOrStdout(), checkPlatform, checkUsername, checkCode, checkUserID)
}

// checkOne verifies and prints one account. An unknown platform still
// produces a printed result carrying the fetch failure.
func (a *app) checkOne(ctx context.Context, w io.Writer, platformName, username, code, userID string) error {
	platform, _ := accounts.ParsePlatform(platformName)
	username = accounts.NormalizeUsername(username)

	res := a.engine.VerifyAccount(ctx, platform, username, code, userID)
	if userID != "" && a.store != nil && platform.Valid() {
		if acct, err := a.store.Get(ctx, userID, platform, username); err == nil {
			a.engine.Record(ctx, acct, res)
		}
	}

	if err := printResult(w, res); err != nil {
		return err
	}
	if !res.Verified {
		return errNotVerified
	}
	return nil
}

// ── check-user ───────────────────────────────────────────────────────────────

var checkUserUserID string

var checkUserCmd = &cobra.Command{
	Use:   "check-user",
	Short: "Check every account linked by a user and record the results",
	RunE:  runCheckUser,
}

func init() {
	checkUserCmd.Flags().StringVar(&checkUserUserID, "user-id", "", "user whose linked accounts are checked")
	_ = checkUserCmd.MarkFlagRequired("user-id")
}

func runCheckUser(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	results := a.engine.VerifyUserAccounts(ctx, checkUserUserID)
	return printUserResults(cmd.OutOrStdout(), checkUserUserID, results)
}
