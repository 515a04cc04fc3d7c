// Command migrate applies schema.sql to the configured database.
//
// Usage:
//
//	go run cmd/tools/migrate/main.go [path/to/schema.sql]
//
// Requires DATABASE_URL environment variable to be set. Statements in the
// schema use IF NOT EXISTS so the command is safe to re-run.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "ERROR: DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	schemaPath := "schema.sql"
	if len(os.Args) > 1 {
		schemaPath = os.Args[1]
	}

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to read %s: %v\n", schemaPath, err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Applied %s\n", schemaPath)
}
