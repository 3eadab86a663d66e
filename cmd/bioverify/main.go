package main

import (
	"fmt"
	"os"

	"github.com/cashcore/bioverify/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	verbose      bool
	outputFormat string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "bioverify",
	Short: "Verify social account ownership through bio codes",
	Long: `bioverify checks that a user controls a linked Instagram, TikTok or
YouTube account by looking for their assigned CASHCORE code in the
account's public bio.

Settings come from bioverify.yaml (./configs or .) and the environment,
e.g. DATABASE_URL, YOUTUBE_API_KEY, BATCH_SIZE.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat != "text" && outputFormat != "json" {
			return fmt.Errorf("--format must be text or json, got %q", outputFormat)
		}

		var err error
		cfg, err = config.Load(config.New(cfgFile))
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/bioverify.yaml or ./bioverify.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging at debug level")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(checkUserCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds a production JSON logger, or a console logger at debug
// level when verbose or log.development is set.
func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if verbose || lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" && !verbose {
		lvl, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the bioverify version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bioverify %s\n", version)
	},
}
