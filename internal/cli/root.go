package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/solwatch/internal/control"
	"github.com/vietddude/solwatch/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "solwatch",
	Short: "Solana slot indexer",
	Long: `solwatch follows the ledger head slot by slot and stores block, transaction and
program summaries in PostgreSQL. Without RUN_INDEXER=1 it only connects, migrates and
reports the cursor.`,
	Run: runObserver,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig reads .env and the config file, then installs the logger.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := cfg.LogLevel()
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

// openObserver loads config and builds the observer, exiting on failure.
func openObserver(ctx context.Context) (*config.AppConfig, *control.Observer) {
	cfg := loadConfig()

	app, err := control.NewObserver(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize observer", "error", err)
		os.Exit(1)
	}
	return cfg, app
}

func runObserver(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, app := openObserver(ctx)
	defer app.Close()

	slog.Info("Observer started",
		"config", cfgPath,
		"run_id", app.RunID(),
		"commitment", cfg.Commitment(),
		"continuous", cfg.Indexer.Run,
	)

	if err := app.Run(ctx); err != nil {
		slog.Error("Observer stopped with error", "error", err)
		app.Close()
		os.Exit(1)
	}

	slog.Info("Observer stopped gracefully")
}
