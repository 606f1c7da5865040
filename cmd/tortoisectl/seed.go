package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/seed"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/provider"
)

func newSeedCmd(logger func(*cobra.Command) *slog.Logger) *cobra.Command {
	var (
		creator string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load books and challenges from a YAML file",
		Long: `Load a YAML catalog of books and challenges. Entries are validated
before anything is written. Books already in the catalog (same title and
author) and challenges the creator already owns (same title) are skipped.`,
		Example: `  tortoisectl seed catalog.yaml --creator admin@example.com
  tortoisectl seed catalog.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			cat, err := seed.Load(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "%s is valid: %d books, %d challenges\n", args[0], len(cat.Books), len(cat.Challenges))
				return nil
			}
			if creator == "" {
				return fmt.Errorf("seed: --creator is required unless --dry-run is set")
			}
			email, err := model.NormalizeEmail(creator)
			if err != nil {
				return fmt.Errorf("seed: --creator: %w", err)
			}

			ctx := cmd.Context()
			log := logger(cmd)
			db, cfg, err := openDB(ctx, log)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			defer db.Close()

			owner, err := db.GetUserByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("seed: look up creator %s: %w", email, err)
			}
			if !model.RoleAtLeast(owner.Role, model.RoleCreator) {
				return fmt.Errorf("seed: %s is a %s and cannot create catalog entries", email, owner.Role)
			}

			idx := catalog.New(db, provider.Embedding(ctx, cfg, log), nil, log)
			res, err := seed.Apply(ctx, db, idx, owner.ID, cat, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "seeded %d books and %d challenges (skipped %d books, %d challenges already present)\n",
				res.Books, res.Challenges, res.SkippedBooks, res.SkippedChallenges)
			return nil
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "email of the admin or creator account that owns the entries")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without touching the database")
	return cmd
}
