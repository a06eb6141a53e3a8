package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/solwatch/internal/control"
	"github.com/vietddude/solwatch/internal/core/domain"
)

var (
	backfillLimit    int
	backfillInterval time.Duration
	backfillScan     string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay recorded skipped slots without moving the cursor",
	Long: `Take pending skipped slots in ascending order and fetch, decode and persist each one.
With --scan START-END, slots in the range that have no stored block are queued first.`,
	Args: cobra.NoArgs,
	Run:  runBackfill,
}

func init() {
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 100, "max pending slots to replay")
	backfillCmd.Flags().DurationVar(&backfillInterval, "interval", 200*time.Millisecond, "pause between slots")
	backfillCmd.Flags().StringVar(&backfillScan, "scan", "", "queue slots without a block in START-END first")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) {
	opts := control.BackfillOptions{
		Limit:    backfillLimit,
		Interval: backfillInterval,
	}
	if backfillScan != "" {
		rng, err := domain.ParseSlotRange(backfillScan)
		if err != nil {
			fmt.Printf("Invalid --scan range: %v\n", err)
			os.Exit(1)
		}
		opts.Scan = &rng
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, app := openObserver(ctx)
	defer app.Close()

	report, err := app.Backfill(ctx, opts)
	if err != nil {
		slog.Error("Backfill failed", "error", err, "attempted", report.Attempted)
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Replayed %d slots: %d resolved, %d empty, %d still pending, %d remaining\n",
		report.Attempted, report.Resolved, report.Empty, report.StillPending, report.Remaining)
}
