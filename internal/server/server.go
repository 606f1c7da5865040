package server

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/ratelimit"
	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

// Server is the Tortoise HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Searcher, MCPServer, UIFS, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Store    Store
	JWTMgr   *auth.JWTManager
	Tortoise *tortoise.Service
	Catalog  *catalog.Service
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter          ratelimit.Limiter
	RateLimitWindow  time.Duration // Retry-After on 429s
	Searcher         search.Searcher
	MCPServer        *mcpserver.MCPServer
	AllowedWSOrigins []string

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	Environment         string
	FrontendURL         string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	UIFS        fs.FS  // Embedded UI filesystem (SPA).
	OpenAPISpec []byte // Embedded OpenAPI YAML.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}

	h := NewHandlers(HandlersDeps{
		Store:               cfg.Store,
		JWTMgr:              cfg.JWTMgr,
		Tortoise:            cfg.Tortoise,
		Catalog:             cfg.Catalog,
		Searcher:            cfg.Searcher,
		Limiter:             limiter,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		Environment:         cfg.Environment,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
		WSOrigins:           append([]string{cfg.FrontendURL}, cfg.AllowedWSOrigins...),
	})

	rl := ratelimit.Middleware(limiter, ratelimit.UserOrIPKey, cfg.RateLimitWindow, cfg.Logger)

	mux := http.NewServeMux()

	// Health and OpenAPI spec (no auth, no rate limit).
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("GET /api/openapi.yaml", h.HandleOpenAPISpec)

	// Accounts (rate limited by IP).
	mux.Handle("POST /api/auth/signup", rl(http.HandlerFunc(h.HandleSignup)))
	mux.Handle("POST /api/auth/login", rl(http.HandlerFunc(h.HandleLogin)))
	mux.Handle("GET /api/auth/me", requireAuth(http.HandlerFunc(h.HandleMe)))

	// The Tortoise. Anonymous visitors may chat; identity comes from the token.
	mux.Handle("POST /api/ai/ask", rl(http.HandlerFunc(h.HandleAsk)))
	mux.Handle("POST /api/ai/classify-intent", rl(http.HandlerFunc(h.HandleClassifyIntent)))
	mux.Handle("POST /api/ai/generate-plan", rl(http.HandlerFunc(h.HandleGeneratePlan)))
	mux.Handle("POST /api/ai/feedback", rl(http.HandlerFunc(h.HandleFeedback)))
	mux.HandleFunc("GET /api/ai/ws", h.HandleChatSocket) // limited per message

	// Profiles (self or admin).
	mux.Handle("GET /api/users/{id}", requireAuth(http.HandlerFunc(h.HandleGetUser)))
	mux.Handle("POST /api/users/{id}/preferences", requireAuth(http.HandlerFunc(h.HandleUpdatePreferences)))
	mux.Handle("POST /api/users/{id}/interactions", requireAuth(http.HandlerFunc(h.HandleRecordInteraction)))
	mux.Handle("GET /api/users/{id}/conversations", requireAuth(http.HandlerFunc(h.HandleListConversations)))
	mux.Handle("GET /api/users/{id}/insights", requireAuth(http.HandlerFunc(h.HandleInsights)))
	mux.Handle("GET /api/users/{id}/challenges", requireAuth(http.HandlerFunc(h.HandleJoinedChallenges)))
	mux.Handle("GET /api/users/{id}/created-challenges", requireAuth(http.HandlerFunc(h.HandleCreatedChallenges)))

	// Search (public).
	mux.HandleFunc("GET /api/search/books", h.HandleSearchBooks)
	mux.HandleFunc("GET /api/search/challenges", h.HandleSearchChallenges)
	mux.Handle("GET /api/search/recommendations/{userId}", requireAuth(http.HandlerFunc(h.HandleRecommendations)))

	// Catalog. Reads are public; writes need creator+.
	creatorOnly := requireRole(model.RoleCreator)
	mux.HandleFunc("GET /api/books", h.HandleListBooks)
	mux.HandleFunc("GET /api/books/{id}", h.HandleGetBook)
	mux.Handle("POST /api/books", creatorOnly(http.HandlerFunc(h.HandleCreateBook)))
	mux.HandleFunc("GET /api/challenges", h.HandleListChallenges)
	mux.HandleFunc("GET /api/challenges/{id}", h.HandleGetChallenge)
	mux.Handle("POST /api/challenges", creatorOnly(http.HandlerFunc(h.HandleCreateChallenge)))
	mux.Handle("POST /api/challenges/{id}/join", requireAuth(http.HandlerFunc(h.HandleJoinChallenge)))
	mux.Handle("POST /api/challenges/{id}/complete", requireAuth(http.HandlerFunc(h.HandleCompleteChallenge)))

	// Admin dashboard.
	mux.Handle("GET /api/admin/stats", requireRole(model.RoleAdmin)(http.HandlerFunc(h.HandleAdminStats)))

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", requireAuth(mcpHTTP))
	}

	// SPA: serve the embedded UI at the root path.
	// Registered last so all API routes take priority via the mux's longest-match rule.
	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("ui enabled, serving SPA at /")
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → CORS → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.FrontendURL, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers for access to EnsureAdmin.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
