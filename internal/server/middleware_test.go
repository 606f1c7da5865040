package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = ctxutil.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err, "generated request IDs are UUIDs")
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 129))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, strings.Repeat("x", 129), seen, "oversized IDs are replaced")
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := requireRole(model.RoleCreator)(ok)

	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"learner", &auth.Claims{UserID: uuid.New(), Role: model.RoleLearner}, http.StatusForbidden},
		{"creator", &auth.Claims{UserID: uuid.New(), Role: model.RoleCreator}, http.StatusNoContent},
		{"admin", &auth.Claims{UserID: uuid.New(), Role: model.RoleAdmin}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/books", nil)
			if tt.claims != nil {
				req = req.WithContext(ctxutil.WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Message string `json:"message"`
	}
	decode := func(raw string, limit int64) (body, error) {
		var b body
		req := httptest.NewRequest("POST", "/", strings.NewReader(raw))
		err := decodeJSON(httptest.NewRecorder(), req, &b, limit)
		return b, err
	}

	b, err := decode(`{"message":"hi"}`, 1024)
	require.NoError(t, err)
	assert.Equal(t, "hi", b.Message)

	_, err = decode(``, 1024)
	assert.EqualError(t, err, "request body is empty")

	_, err = decode(`{"message":"hi","extra":1}`, 1024)
	assert.ErrorContains(t, err, "unknown field")

	_, err = decode(`{"message":"`+strings.Repeat("a", 64)+`"}`, 16)
	assert.EqualError(t, err, "request body exceeds 16 bytes")
}

func TestStatusWriterRecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = sw.Write([]byte("partial"))
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, sw.statusCode, "status is fixed once the body starts")

	sw.Flush()
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, sw.Unwrap())

	_, _, err := sw.Hijack()
	assert.Error(t, err, "recorders cannot be hijacked")
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	status := http.StatusNotFound
	h := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/books/x", nil))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
	assert.Equal(t, "/api/books/x", entry["path"])

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/health", nil))
	assert.Empty(t, buf.String(), "health checks are not logged")

	buf.Reset()
	status = http.StatusBadGateway
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/books", nil))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
}

func TestRecoveryMiddlewareRepanicsOnAbort(t *testing.T) {
	h := recoveryMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}
