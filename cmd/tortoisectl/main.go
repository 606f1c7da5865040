// Command tortoisectl administers a Tortoise deployment: schema migrations,
// catalog seeding, embedding backfill, signing keys and offline intent checks.
//
// It reads the same environment (and .env file) as the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lifelonglearners/tortoise/internal/config"
	"github.com/lifelonglearners/tortoise/internal/storage"
	"github.com/lifelonglearners/tortoise/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "tortoisectl",
		Short:         "Administer a Tortoise learning assistant deployment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	logger := func(cmd *cobra.Command) *slog.Logger {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	}

	root.AddCommand(
		newMigrateCmd(logger),
		newSeedCmd(logger),
		newClassifyCmd(),
		newReindexCmd(logger),
		newGenkeyCmd(),
	)
	return root
}

// openDB loads configuration, connects and applies migrations.
func openDB(ctx context.Context, logger *slog.Logger) (*storage.DB, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, config.Config{}, err
	}
	return db, cfg, nil
}
