package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/embedding"
	"github.com/lifelonglearners/tortoise/internal/service/provider"
)

func newReindexCmd(logger func(*cobra.Command) *slog.Logger) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Embed catalog entries that have no vector yet",
		Long: `Embed every book and challenge stored without an embedding, for example
after switching embedding provider, and mirror them into Qdrant when
QDRANT_URL is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if batch <= 0 {
				return fmt.Errorf("reindex: --batch must be positive")
			}
			ctx := cmd.Context()
			log := logger(cmd)
			db, cfg, err := openDB(ctx, log)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			defer db.Close()

			embedder := provider.Embedding(ctx, cfg, log)
			if !embedding.Available(embedder) {
				return errors.New("reindex: no embedding provider is configured")
			}

			var index catalog.VectorIndex
			if cfg.QdrantURL != "" {
				qdrant, err := search.NewQdrantIndex(search.QdrantConfig{
					URL:        cfg.QdrantURL,
					APIKey:     cfg.QdrantAPIKey,
					Collection: cfg.QdrantCollection,
					Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
				}, log)
				if err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				defer func() { _ = qdrant.Close() }()
				if err := qdrant.EnsureCollection(ctx); err != nil {
					return fmt.Errorf("reindex: %w", err)
				}
				index = qdrant
			}

			res, err := catalog.New(db, embedder, index, log).Backfill(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d books and %d challenges\n", res.Books, res.Challenges)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "entries embedded per provider call")
	return cmd
}
