package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
)

// MigrateCmd creates the conversation tables for a persistent backend.
func MigrateCmd() *cobra.Command {
	var (
		backend     string
		databaseURL string
		sqlitePath  string
		attempts    int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the conversation schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch backend {
			case storage.BackendPostgres:
				if databaseURL == "" {
					databaseURL = getenv("DATABASE_URL")
				}
				if databaseURL == "" {
					return errors.New("DATABASE_URL or --database-url is required")
				}
				pool, err := storage.ConnectPostgres(ctx, databaseURL, attempts)
				if err != nil {
					return err
				}
				store := storage.NewPostgresStore(pool)
				defer store.Close()
				if err := store.Migrate(ctx); err != nil {
					return err
				}
			case storage.BackendSQLite:
				if sqlitePath == "" {
					sqlitePath = getenv("SQLITE_PATH")
				}
				if sqlitePath == "" {
					return errors.New("SQLITE_PATH or --sqlite-path is required")
				}
				store, err := storage.NewSQLiteStore(sqlitePath)
				if err != nil {
					return err
				}
				defer store.Close()
			default:
				return fmt.Errorf("unknown backend %q", backend)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", backend)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", storage.BackendPostgres, "Backend to migrate: postgres or sqlite")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite file (defaults to SQLITE_PATH)")
	cmd.Flags().IntVar(&attempts, "attempts", 5, "Connection attempts before giving up")
	return cmd
}
