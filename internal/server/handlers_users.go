package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

// ownedUserID parses {id} and checks that the caller may act for that user.
func ownedUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return uuid.Nil, false
	}
	if !ctxutil.CanActFor(r.Context(), id) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "you can only access your own profile")
		return uuid.Nil, false
	}
	return id, true
}

// HandleGetUser handles GET /api/users/{id}.
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "user not found")
			return
		}
		h.writeInternalError(w, r, "failed to get user", err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// HandleUpdatePreferences handles POST /api/users/{id}/preferences. The body
// replaces all three fields; omitted ones reset to their defaults.
func (h *Handlers) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	var req model.UpdatePreferencesRequest
	if !h.decode(w, r, &req) {
		return
	}

	interests, err := model.ValidateTags(req.LearningInterests)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "learning_interests: "+err.Error())
		return
	}
	interests = model.MergeInterests(nil, interests, model.MaxLearningInterests)

	prefs := model.Preferences{
		Preferences:        req.Preferences,
		LearningInterests:  interests,
		LanguagePreference: strings.ToLower(strings.TrimSpace(req.LanguagePreference)),
	}
	if prefs.Preferences == nil {
		prefs.Preferences = map[string]any{}
	}
	if prefs.LanguagePreference == "" {
		prefs.LanguagePreference = model.DefaultLanguage
	}
	if d, present := prefs.Preferences["difficulty_level"]; present {
		s, isString := d.(string)
		if !isString || model.ValidateDifficulty(s) != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				"preferences.difficulty_level must be one of beginner, intermediate, advanced")
			return
		}
	}

	user, err := h.store.UpdatePreferences(r.Context(), id, prefs)
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "user not found")
			return
		}
		h.writeInternalError(w, r, "failed to update preferences", err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// HandleRecordInteraction handles POST /api/users/{id}/interactions.
func (h *Handlers) HandleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	var req model.InteractionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.InteractionType = strings.TrimSpace(req.InteractionType)
	req.EntityType = strings.TrimSpace(req.EntityType)
	if req.InteractionType == "" || req.EntityType == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "interaction_type and entity_type are required")
		return
	}
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}

	in, err := h.store.InsertInteraction(r.Context(), model.Interaction{
		UserID:          id,
		InteractionType: req.InteractionType,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		if isNotFound(err) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "user not found")
			return
		}
		h.writeInternalError(w, r, "failed to record interaction", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]uuid.UUID{"interaction_id": in.ID})
}

// HandleListConversations handles GET /api/users/{id}/conversations.
func (h *Handlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	convs, err := h.store.ListConversations(r.Context(), id, queryLimit(r, 20))
	if err != nil {
		h.writeInternalError(w, r, "failed to list conversations", err)
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, r, http.StatusOK, convs)
}

// HandleInsights handles GET /api/users/{id}/insights.
func (h *Handlers) HandleInsights(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	insights, err := h.tortoise.Insights(r.Context(), id)
	if err != nil {
		h.writeInternalError(w, r, "failed to compute insights", err)
		return
	}
	writeJSON(w, r, http.StatusOK, insights)
}

// HandleJoinedChallenges handles GET /api/users/{id}/challenges.
func (h *Handlers) HandleJoinedChallenges(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	joined, err := h.store.ListJoinedChallenges(r.Context(), id, queryLimit(r, 50))
	if err != nil {
		h.writeInternalError(w, r, "failed to list joined challenges", err)
		return
	}
	if joined == nil {
		joined = []model.JoinedChallenge{}
	}
	writeJSON(w, r, http.StatusOK, joined)
}

// HandleCreatedChallenges handles GET /api/users/{id}/created-challenges,
// including private ones.
func (h *Handlers) HandleCreatedChallenges(w http.ResponseWriter, r *http.Request) {
	id, ok := ownedUserID(w, r)
	if !ok {
		return
	}
	challenges, err := h.store.ListChallenges(r.Context(), storage.ChallengeFilter{
		CreatedBy: &id,
		Limit:     queryLimit(r, 50),
		Offset:    queryOffset(r),
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to list created challenges", err)
		return
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	writeJSON(w, r, http.StatusOK, challenges)
}
