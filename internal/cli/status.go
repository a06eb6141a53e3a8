package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor, ledger head, lag and skipped slot backlog",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, app := openObserver(ctx)
	defer app.Close()

	st, err := app.Status(ctx)
	if err != nil {
		slog.Error("Failed to read status", "error", err)
		app.Close()
		os.Exit(1)
	}

	head, lag := fmt.Sprint(st.Head), fmt.Sprint(st.Lag)
	if st.HeadError != nil {
		head, lag = "unavailable", "-"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CURSOR\tHEAD\tLAG\tCOMMITMENT\tBLOCKS\tSKIPPED\tGAP STORE\tUPDATED")
	_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
		st.Cursor, head, lag, st.Commitment, st.Blocks, st.SkippedPending, st.GapStore,
		st.CursorUpdated.Format(time.RFC3339),
	)
	_ = w.Flush()

	if st.HeadError != nil {
		slog.Warn("Ledger node unreachable", "error", st.HeadError)
	}
}
