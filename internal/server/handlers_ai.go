package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

// HandleAsk handles POST /api/ai/ask. The reply streams as plain text,
// flushed per chunk, with the conversation id and detected intent in the
// response headers. Failures before the first chunk are JSON errors; after
// it the stream simply ends.
func (h *Handlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req model.AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message is required")
		return
	}
	if len(req.Message) > model.MaxMessageLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("message must be at most %d bytes", model.MaxMessageLen))
		return
	}
	userID, ok := actingFor(r.Context(), req.UserID)
	if !ok {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "cannot chat on behalf of another user")
		return
	}

	conversationID := uuid.New()
	var detected intent.Result
	started := false
	rc := http.NewResponseController(w)

	emit := func(chunk string) error {
		if !started {
			hdr := w.Header()
			hdr.Set("Content-Type", "text/plain; charset=utf-8")
			hdr.Set("Cache-Control", "no-cache")
			hdr.Set("X-Conversation-ID", conversationID.String())
			hdr.Set("X-Intent", string(detected.Intent))
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		return nil
	}

	_, err := h.tortoise.Ask(r.Context(), tortoise.AskInput{
		ConversationID: conversationID,
		UserID:         userID,
		Message:        req.Message,
		ClientContext:  req.Context,
		OnIntent:       func(res intent.Result) { detected = res },
	}, emit)
	if err != nil {
		if started {
			h.logger.Warn("chat stream ended early",
				"conversation_id", conversationID,
				"error", err,
				"request_id", ctxutil.RequestIDFromContext(r.Context()),
			)
			return
		}
		if errors.Is(err, tortoise.ErrEmptyMessage) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message is required")
			return
		}
		h.writeInternalError(w, r, "the Tortoise could not answer right now", err)
		return
	}
	if !started {
		_ = emit("")
	}
}

// classifyResponse is the body of POST /api/ai/classify-intent.
type classifyResponse struct {
	intent.Result
	Keywords []string `json:"keywords"`
}

// HandleClassifyIntent handles POST /api/ai/classify-intent.
func (h *Handlers) HandleClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req model.ClassifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Message) > model.MaxMessageLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("message must be at most %d bytes", model.MaxMessageLen))
		return
	}

	res, err := h.tortoise.Classify(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, tortoise.ErrEmptyMessage) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "message is required")
			return
		}
		h.writeInternalError(w, r, "failed to classify message", err)
		return
	}
	keywords := intent.ExtractKeywords(req.Message)
	if keywords == nil {
		keywords = []string{}
	}
	writeJSON(w, r, http.StatusOK, classifyResponse{Result: res, Keywords: keywords})
}

// HandleGeneratePlan handles POST /api/ai/generate-plan.
func (h *Handlers) HandleGeneratePlan(w http.ResponseWriter, r *http.Request) {
	var req model.PlanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Goals) > model.MaxGoalsLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("goals must be at most %d bytes", model.MaxGoalsLen))
		return
	}
	userID, ok := actingFor(r.Context(), req.UserID)
	if !ok {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "cannot plan on behalf of another user")
		return
	}

	plan, err := h.tortoise.GeneratePlan(r.Context(), tortoise.PlanInput{
		UserID:         userID,
		Goals:          req.Goals,
		CurrentLevel:   req.EffectiveLevel(),
		TimeCommitment: req.TimeCommitment,
	})
	if err != nil {
		if errors.Is(err, tortoise.ErrEmptyGoals) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "goals are required")
			return
		}
		h.writeInternalError(w, r, "failed to generate learning plan", err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.PlanResponse{Plan: plan})
}

// HandleFeedback handles POST /api/ai/feedback.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	var req model.FeedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ConversationID == uuid.Nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "conversation_id is required")
		return
	}
	if len(req.Feedback) > model.MaxFeedbackLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("feedback must be at most %d bytes", model.MaxFeedbackLen))
		return
	}

	err := h.tortoise.SubmitFeedback(r.Context(), req.ConversationID, req.Rating, req.Feedback)
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, map[string]any{
			"conversation_id": req.ConversationID,
			"rating":          req.Rating,
		})
	case errors.Is(err, tortoise.ErrInvalidRating):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "rating must be between 1 and 5")
	case isNotFound(err):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "conversation not found")
	default:
		h.writeInternalError(w, r, "failed to save feedback", err)
	}
}
