package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/price-publisher/internal/db"
)

var queueCommand = &cobra.Command{
	Use:   "queue",
	Short: "List publish queue entries",
	Long: `Shows queue entries newest first, optionally filtered by status
(pending, published, failed). Failed entries keep their failure log for
manual inspection.`,
	RunE: queueCmd,
}

var (
	queueStatus      string
	queueLimit       int
	queueDatabaseURL string
)

func init() {
	queueCommand.Flags().StringVar(&queueStatus, "status", "", "Filter by status: pending, published, or failed")
	queueCommand.Flags().IntVar(&queueLimit, "limit", 50, "Maximum entries to show")
	queueCommand.Flags().StringVar(&queueDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(queueCommand)
}

func queueCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	switch queueStatus {
	case "", db.EntryStatusPending, db.EntryStatusPublished, db.EntryStatusFailed:
	default:
		return fmt.Errorf("unknown status %q", queueStatus)
	}

	dbURL := queueDatabaseURL
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	entries, err := database.ListQueueEntries(ctx, queueStatus, queueLimit)
	if err != nil {
		return err
	}

	newStdoutPrinter().PrintQueueEntries(entries)
	return nil
}
