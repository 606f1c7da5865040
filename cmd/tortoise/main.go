// Command tortoise runs the Tortoise learning assistant: the HTTP API, the
// chat WebSocket, the MCP endpoint and (with -tags ui) the web client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lifelonglearners/tortoise/api"
	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/config"
	"github.com/lifelonglearners/tortoise/internal/mcp"
	"github.com/lifelonglearners/tortoise/internal/ratelimit"
	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/server"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/embedding"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/provider"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
	"github.com/lifelonglearners/tortoise/internal/storage"
	"github.com/lifelonglearners/tortoise/internal/telemetry"
	"github.com/lifelonglearners/tortoise/migrations"
	"github.com/lifelonglearners/tortoise/ui"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// .env is optional; production sets real environment variables.
	_ = godotenv.Load()

	level, err := config.ParseLogLevel(os.Getenv("TORTOISE_LOG_LEVEL"))
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Version == "dev" {
		cfg.Version = version
	}

	logger.Info("tortoise starting", "version", cfg.Version, "port", cfg.Port, "env", cfg.Environment)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
		Environment: cfg.Environment,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.JWTPrivateKeyPath == "" {
		logger.Warn("auth: using an ephemeral signing key, tokens will not survive a restart")
	}

	embedder := provider.Embedding(ctx, cfg, logger)
	chat := provider.LLM(ctx, cfg, logger)

	// Qdrant is optional. Without it semantic search runs on pgvector.
	var (
		index    catalog.VectorIndex
		searcher search.Searcher
	)
	if cfg.QdrantURL != "" && embedding.Available(embedder) {
		qdrant, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrant.Close() }()
		if err := qdrant.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		index, searcher = qdrant, qdrant
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled")
	}

	cat := catalog.New(db, embedder, index, logger)

	// Catalog entries saved while no embedder was configured get their
	// vectors now. Non-fatal.
	if cat.Semantic() {
		if res, err := cat.Backfill(ctx, 200); err != nil {
			logger.Warn("embedding backfill failed", "error", err)
		} else if res.Books+res.Challenges > 0 {
			logger.Info("embedding backfill complete", "books", res.Books, "challenges", res.Challenges)
		}
	}

	svc := tortoise.New(tortoise.Config{
		Store:      db,
		Catalog:    cat,
		Classifier: intent.NewClassifier(chat, cfg.ClassifierModel, logger),
		LLM:        chat,
		ChatModel:  cfg.ChatModel,
		Logger:     logger,
	})
	logger.Info("tortoise: answering with " + svc.Backend())

	mcpSrv := mcp.New(db, cat, svc, logger, cfg.Version)

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = limiter.Close() }()

	uiFS, err := ui.DistFS()
	if err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	if uiFS != nil {
		logger.Info("ui: embedded SPA loaded")
	}

	srv := server.New(server.ServerConfig{
		Store:               db,
		JWTMgr:              jwtMgr,
		Tortoise:            svc,
		Catalog:             cat,
		Logger:              logger,
		Limiter:             limiter,
		RateLimitWindow:     ratelimit.Window(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Searcher:            searcher,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             cfg.Version,
		Environment:         cfg.Environment,
		FrontendURL:         cfg.FrontendURL,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		UIFS:                uiFS,
		OpenAPISpec:         api.OpenAPISpec,
	})

	if err := srv.Handlers().EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Warn("admin bootstrap failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("tortoise shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("tortoise stopped")
	return nil
}

// newLimiter returns a Redis-backed limiter when REDIS_URL is set so limits
// hold across replicas, the in-process token bucket otherwise.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnabled {
		logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}, nil
	}
	if cfg.RedisURL != "" {
		window := ratelimit.Window(cfg.RateLimitRPS, cfg.RateLimitBurst)
		l, err := ratelimit.DialRedis(ctx, cfg.RedisURL, cfg.RateLimitBurst, window)
		if err != nil {
			return nil, fmt.Errorf("rate limiting: %w", err)
		}
		logger.Info("rate limiting: redis sliding window", "limit", cfg.RateLimitBurst, "window", window)
		return l, nil
	}
	logger.Info("rate limiting: memory (in-process token bucket)",
		"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), nil
}
