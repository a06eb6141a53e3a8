package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and print the schema version",
	Args:  cobra.NoArgs,
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, app := openObserver(ctx)
	defer app.Close()

	version, err := app.Migrate(ctx)
	if err != nil {
		slog.Error("Migration failed", "error", err)
		app.Close()
		os.Exit(1)
	}

	fmt.Printf("Database schema at version %d\n", version)
}
