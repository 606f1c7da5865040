package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/ratelimit"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

// Websocket chat limits.
const (
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
)

// wsPingPeriod must stay below wsPongWait.
var wsPingPeriod = (wsPongWait * 9) / 10

// Server frame types.
const (
	frameDelta = "delta"
	frameDone  = "done"
	frameError = "error"
)

// chatFrame is sent by the client, one per message.
type chatFrame struct {
	Message string `json:"message"`
}

// replyFrame is sent by the server: a run of delta frames per message,
// closed by a done or error frame.
type replyFrame struct {
	Type           string       `json:"type"`
	Content        string       `json:"content,omitempty"`
	ConversationID *uuid.UUID   `json:"conversation_id,omitempty"`
	Intent         model.Intent `json:"intent,omitempty"`
	Code           string       `json:"code,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// HandleChatSocket handles GET /api/ai/ws. Browsers cannot set headers on a
// websocket handshake, so a token may also arrive as ?token=. Every chat
// frame draws from the caller's rate limit budget.
func (h *Handlers) HandleChatSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if ctxutil.ClaimsFromContext(ctx) == nil {
		if tok := r.URL.Query().Get("token"); tok != "" {
			claims, err := h.jwtMgr.ValidateToken(tok)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			ctx = ctxutil.WithClaims(ctx, claims)
		}
	}
	userID := ctxutil.UserIDFromContext(ctx)
	limitKey := ratelimit.UserOrIPKey(r.WithContext(ctx))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	if h.maxRequestBodyBytes > 0 {
		conn.SetReadLimit(h.maxRequestBodyBytes)
	}

	send := func(f replyFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(conn, stopPing)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		var in chatFrame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		if strings.TrimSpace(in.Message) == "" || len(in.Message) > model.MaxMessageLen {
			if err := send(replyFrame{Type: frameError, Error: fmt.Sprintf("message is required and must be at most %d bytes", model.MaxMessageLen)}); err != nil {
				return
			}
			continue
		}

		if !h.allowFrame(ctx, limitKey) {
			if err := send(replyFrame{Type: frameError, Code: model.ErrCodeRateLimited, Error: "too many messages, slow and steady wins the race"}); err != nil {
				return
			}
			continue
		}

		var detected intent.Result
		res, err := h.tortoise.Ask(ctx, tortoise.AskInput{
			UserID:   userID,
			Message:  in.Message,
			OnIntent: func(r intent.Result) { detected = r },
		}, func(chunk string) error {
			return send(replyFrame{Type: frameDelta, Content: chunk})
		})
		if err != nil {
			msg := "the Tortoise could not answer right now"
			if errors.Is(err, tortoise.ErrEmptyMessage) {
				msg = "message is required"
			}
			h.logger.Warn("websocket chat failed", "error", err)
			if err := send(replyFrame{Type: frameError, Intent: detected.Intent, Error: msg}); err != nil {
				return
			}
			continue
		}
		id := res.ConversationID
		if err := send(replyFrame{Type: frameDone, ConversationID: &id, Intent: res.Intent.Intent}); err != nil {
			return
		}
	}
}

// allowFrame reports whether key may send another chat message. Limiter
// errors let the message through.
func (h *Handlers) allowFrame(ctx context.Context, key string) bool {
	ok, err := h.limiter.Allow(ctx, key)
	if err != nil {
		h.logger.Warn("ratelimit: limiter failed, allowing chat frame", "key", key, "error", err)
		return true
	}
	return ok
}

// pingLoop keeps the connection alive until stop is closed or a ping fails.
// WriteControl may run concurrently with the chat writes.
func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts same-origin handshakes, non-browser clients that send
// no Origin, and the configured web client.
func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.wsOrigins[strings.TrimRight(origin, "/")] {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
