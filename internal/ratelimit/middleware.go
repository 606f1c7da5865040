package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
)

// KeyFunc names the budget a request draws from. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429 and a Retry-After of
// retryAfter, rounded up to whole seconds. Limiter errors are logged and the
// request is let through.
func Middleware(limiter Limiter, keyFunc KeyFunc, retryAfter time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	seconds := strconv.Itoa(max(1, int(math.Ceil(retryAfter.Seconds()))))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("ratelimit: limiter failed, allowing request", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", seconds)
				writeRateLimitError(w, ctxutil.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{
			Code:    model.ErrCodeRateLimited,
			Message: "too many requests, slow and steady wins the race",
		},
		Meta: model.ResponseMeta{
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		},
	})
}

// UserOrIPKey keys authenticated callers by user id and everyone else by
// remote IP. X-Forwarded-For is ignored because clients can set it freely.
func UserOrIPKey(r *http.Request) string {
	if id := ctxutil.UserIDFromContext(r.Context()); id != nil {
		return "user:" + id.String()
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
