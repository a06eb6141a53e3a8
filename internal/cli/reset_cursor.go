package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/solwatch/internal/core/domain"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [slot]",
	Short: "Set the cursor to a given slot, forwards or backwards",
	Long: `Overwrite last_indexed_slot. The next run resumes at slot+1. Lowering the cursor
re-indexes the range; writes are upserts so nothing is duplicated.`,
	Args: cobra.ExactArgs(1),
	Run:  runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	slot, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid slot: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	_, app := openObserver(ctx)
	defer app.Close()

	prev, err := app.ResetCursor(ctx, domain.Slot(slot))
	if err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor from slot %d to slot %d\n", prev, slot)
}
