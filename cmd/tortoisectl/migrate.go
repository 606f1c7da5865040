package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newMigrateCmd(logger func(*cobra.Command) *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply every embedded migration that has not run yet. Applied files are
tracked in schema_migrations, so running migrate twice is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := openDB(cmd.Context(), logger(cmd))
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			db.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
