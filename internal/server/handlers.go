package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/ratelimit"
	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/service/catalog"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

// Store is the persistence the handlers use directly. *storage.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdatePreferences(ctx context.Context, id uuid.UUID, prefs model.Preferences) (model.User, error)
	SetUserRole(ctx context.Context, id uuid.UUID, role model.UserRole) error

	InsertInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]model.Conversation, error)

	CreateBook(ctx context.Context, b model.Book) (model.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (model.Book, error)
	CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (model.Challenge, error)
	ListChallenges(ctx context.Context, f storage.ChallengeFilter) ([]model.Challenge, error)

	JoinChallenge(ctx context.Context, userID, challengeID uuid.UUID) (model.Membership, error)
	CompleteChallenge(ctx context.Context, userID, challengeID uuid.UUID) (model.Membership, error)
	ListJoinedChallenges(ctx context.Context, userID uuid.UUID, limit int) ([]model.JoinedChallenge, error)

	PlatformStats(ctx context.Context, recent int) (model.PlatformStats, error)
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	store               Store
	jwtMgr              *auth.JWTManager
	tortoise            *tortoise.Service
	catalog             *catalog.Service
	searcher            search.Searcher
	limiter             ratelimit.Limiter
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	environment         string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	wsOrigins           map[string]bool
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Searcher, Limiter, OpenAPISpec, WSOrigins.
type HandlersDeps struct {
	Store               Store
	JWTMgr              *auth.JWTManager
	Tortoise            *tortoise.Service
	Catalog             *catalog.Service
	Searcher            search.Searcher
	Limiter             ratelimit.Limiter
	Logger              *slog.Logger
	Version             string
	Environment         string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
	WSOrigins           []string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	origins := make(map[string]bool, len(d.WSOrigins))
	for _, o := range d.WSOrigins {
		if o = strings.TrimRight(o, "/"); o != "" {
			origins[o] = true
		}
	}
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &Handlers{
		store:               d.Store,
		jwtMgr:              d.JWTMgr,
		tortoise:            d.Tortoise,
		catalog:             d.Catalog,
		searcher:            d.Searcher,
		limiter:             limiter,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		environment:         d.Environment,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		wsOrigins:           origins,
	}
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	resp := model.HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Environment: h.environment,
		Database:    dbStatus,
		Version:     h.version,
		Uptime:      int64(time.Since(h.startedAt).Seconds()),
	}

	// Qdrant is an optional accelerator; losing it degrades but does not fail.
	if h.searcher != nil {
		if err := h.searcher.Healthy(r.Context()); err == nil {
			resp.Qdrant = "connected"
		} else {
			resp.Qdrant = "disconnected"
			if status == "healthy" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, r, httpStatus, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "openapi spec not available")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// --- Shared helpers ---

// writeInternalError logs err and answers 500. The error text is only
// exposed to clients in development.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", ctxutil.RequestIDFromContext(r.Context()))
	var details any
	if h.environment == "development" && err != nil {
		details = map[string]string{"cause": err.Error()}
	}
	writeErrorDetails(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg, details)
}

// decode reads a JSON body, answering 400 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(w, r, target, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathUUID parses the named path segment, answering 400 when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// actingFor resolves the user a request body speaks for. An absent id means
// the caller (or nobody, for anonymous requests). A present id must be the
// caller's own unless the caller is an admin.
func actingFor(ctx context.Context, bodyID *uuid.UUID) (*uuid.UUID, bool) {
	if bodyID == nil {
		return ctxutil.UserIDFromContext(ctx), true
	}
	if !ctxutil.CanActFor(ctx, *bodyID) {
		return nil, false
	}
	id := *bodyID
	return &id, true
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryOffset parses the "offset" query parameter, clamped to >= 0.
func queryOffset(r *http.Request) int {
	return max(0, queryInt(r, "offset", 0))
}

// queryLimit parses the "limit" query parameter, clamped to [1, 100].
func queryLimit(r *http.Request, defaultVal int) int {
	return min(max(queryInt(r, "limit", defaultVal), 1), 100)
}

// queryFilter returns a trimmed query parameter, treating "all" as unset.
func queryFilter(r *http.Request, key string) string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}
