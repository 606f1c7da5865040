package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

// queryTags splits ?tags=a,b into normalized tags.
func queryTags(r *http.Request) []string {
	raw := r.URL.Query().Get("tags")
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// HandleListBooks handles GET /api/books.
func (h *Handlers) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.FilterBooks(r.Context(), storage.BookFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Language:   queryFilter(r, "language"),
		Format:     queryFilter(r, "format"),
		Difficulty: queryFilter(r, "difficulty"),
		Tags:       queryTags(r),
		Limit:      queryLimit(r, 50),
		Offset:     queryOffset(r),
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to list books", err)
		return
	}
	if books == nil {
		books = []model.Book{}
	}
	writeJSON(w, r, http.StatusOK, books)
}

// HandleGetBook handles GET /api/books/{id}.
func (h *Handlers) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.store.GetBook(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "book not found")
			return
		}
		h.writeInternalError(w, r, "failed to get book", err)
		return
	}
	writeJSON(w, r, http.StatusOK, book)
}

// HandleCreateBook handles POST /api/books (creator+). The book is embedded
// for semantic search on a best-effort basis.
func (h *Handlers) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBookRequest
	if !h.decode(w, r, &req) {
		return
	}
	book, err := req.Book()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	book.CreatedBy = ctxutil.UserIDFromContext(r.Context())

	book, err = h.store.CreateBook(r.Context(), book)
	if err != nil {
		h.writeInternalError(w, r, "failed to create book", err)
		return
	}
	if err := h.catalog.IndexBook(r.Context(), book); err != nil {
		h.logger.Warn("book created but not indexed", "book_id", book.ID, "error", err)
	}
	writeJSON(w, r, http.StatusCreated, book)
}

// HandleListChallenges handles GET /api/challenges. Only public challenges
// are listed.
func (h *Handlers) HandleListChallenges(w http.ResponseWriter, r *http.Request) {
	f := storage.ChallengeFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Type:       queryFilter(r, "type"),
		Difficulty: queryFilter(r, "difficulty"),
		Visibility: model.VisibilityPublic,
		Tags:       queryTags(r),
		Limit:      queryLimit(r, 50),
		Offset:     queryOffset(r),
	}
	if status := queryFilter(r, "status"); status != "" {
		f.Statuses = []model.ChallengeStatus{model.ChallengeStatus(status)}
	}
	challenges, err := h.catalog.FilterChallenges(r.Context(), f)
	if err != nil {
		h.writeInternalError(w, r, "failed to list challenges", err)
		return
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	writeJSON(w, r, http.StatusOK, challenges)
}

// HandleGetChallenge handles GET /api/challenges/{id}. Private challenges
// are visible to their creator and admins only.
func (h *Handlers) HandleGetChallenge(w http.ResponseWriter, r *http.Request) {
	c, ok := h.visibleChallenge(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// visibleChallenge loads {id}, answering 404 for missing challenges and for
// private ones the caller may not see.
func (h *Handlers) visibleChallenge(w http.ResponseWriter, r *http.Request) (model.Challenge, bool) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return model.Challenge{}, false
	}
	c, err := h.store.GetChallenge(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "challenge not found")
			return model.Challenge{}, false
		}
		h.writeInternalError(w, r, "failed to get challenge", err)
		return model.Challenge{}, false
	}
	if c.Visibility == model.VisibilityPrivate && !ctxutil.CanActFor(r.Context(), c.CreatedBy) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "challenge not found")
		return model.Challenge{}, false
	}
	return c, true
}

// HandleCreateChallenge handles POST /api/challenges (creator+).
func (h *Handlers) HandleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req model.CreateChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	creator := ctxutil.ClaimsFromContext(r.Context()).UserID
	c, err := req.Challenge(creator)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	c, err = h.store.CreateChallenge(r.Context(), c)
	if err != nil {
		h.writeInternalError(w, r, "failed to create challenge", err)
		return
	}
	if err := h.catalog.IndexChallenge(r.Context(), c); err != nil {
		h.logger.Warn("challenge created but not indexed", "challenge_id", c.ID, "error", err)
	}
	writeJSON(w, r, http.StatusCreated, c)
}

// HandleJoinChallenge handles POST /api/challenges/{id}/join.
func (h *Handlers) HandleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	c, ok := h.visibleChallenge(w, r)
	if !ok {
		return
	}
	if c.Status == model.StatusCompleted {
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "this challenge has already ended")
		return
	}
	userID := ctxutil.ClaimsFromContext(r.Context()).UserID

	m, err := h.store.JoinChallenge(r.Context(), userID, c.ID)
	if err != nil {
		switch {
		case isConflict(err):
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "you have already joined this challenge")
		case isNotFound(err):
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "challenge not found")
		default:
			h.writeInternalError(w, r, "failed to join challenge", err)
		}
		return
	}
	h.recordChallengeInteraction(r, userID, c, "challenge_join")
	writeJSON(w, r, http.StatusCreated, m)
}

// HandleCompleteChallenge handles POST /api/challenges/{id}/complete.
func (h *Handlers) HandleCompleteChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID := ctxutil.ClaimsFromContext(r.Context()).UserID

	m, err := h.store.CompleteChallenge(r.Context(), userID, id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "you have not joined this challenge")
			return
		}
		h.writeInternalError(w, r, "failed to complete challenge", err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

// recordChallengeInteraction logs a join as an interaction so the challenge's
// tags feed later recommendations. Failures are logged only.
func (h *Handlers) recordChallengeInteraction(r *http.Request, userID uuid.UUID, c model.Challenge, kind string) {
	entityID := c.ID.String()
	if _, err := h.store.InsertInteraction(r.Context(), model.Interaction{
		UserID:          userID,
		InteractionType: kind,
		EntityType:      "challenge",
		EntityID:        &entityID,
		Metadata:        map[string]any{"tags": c.Tags, "type": string(c.Type)},
	}); err != nil {
		h.logger.Warn("failed to record challenge interaction", "user_id", userID, "challenge_id", c.ID, "error", err)
	}
}
