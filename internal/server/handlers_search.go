package server

import (
	"net/http"
	"strings"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/storage"
)

type bookSearchResponse struct {
	Books []model.ScoredBook `json:"books"`
	Total int                `json:"total"`
}

type challengeSearchResponse struct {
	Challenges []model.ScoredChallenge `json:"challenges"`
	Total      int                     `json:"total"`
}

// queryPreferences turns ?language= and ?difficulty= into the preferences the
// fuzzy search filters by.
func queryPreferences(r *http.Request) model.Preferences {
	var prefs model.Preferences
	prefs.LanguagePreference = strings.ToLower(queryFilter(r, "language"))
	if d := queryFilter(r, "difficulty"); d != "" {
		prefs.Preferences = map[string]any{"difficulty_level": d}
	}
	return prefs
}

// HandleSearchBooks handles GET /api/search/books. With q it runs the fuzzy
// search; without it, a filtered listing newest first.
func (h *Handlers) HandleSearchBooks(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10)
	format := queryFilter(r, "format")
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	var out []model.ScoredBook
	if q != "" {
		found, err := h.catalog.SearchBooks(r.Context(), q, queryPreferences(r))
		if err != nil {
			h.writeInternalError(w, r, "failed to search books", err)
			return
		}
		for _, b := range found {
			if format != "" && string(b.Format) != format {
				continue
			}
			out = append(out, b)
		}
	} else {
		books, err := h.catalog.FilterBooks(r.Context(), storage.BookFilter{
			Language:   queryFilter(r, "language"),
			Format:     format,
			Difficulty: queryFilter(r, "difficulty"),
			Limit:      limit,
			Offset:     queryOffset(r),
		})
		if err != nil {
			h.writeInternalError(w, r, "failed to search books", err)
			return
		}
		for _, b := range books {
			out = append(out, model.ScoredBook{Book: b})
		}
	}

	out = out[:min(len(out), limit)]
	if out == nil {
		out = []model.ScoredBook{}
	}
	writeJSON(w, r, http.StatusOK, bookSearchResponse{Books: out, Total: len(out)})
}

// HandleSearchChallenges handles GET /api/search/challenges. Only public
// challenges are searched.
func (h *Handlers) HandleSearchChallenges(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10)
	typ := queryFilter(r, "type")
	status := queryFilter(r, "status")
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	var out []model.ScoredChallenge
	if q != "" {
		found, err := h.catalog.SearchChallenges(r.Context(), q, queryPreferences(r))
		if err != nil {
			h.writeInternalError(w, r, "failed to search challenges", err)
			return
		}
		for _, c := range found {
			if typ != "" && string(c.Type) != typ {
				continue
			}
			if status != "" && string(c.Status) != status {
				continue
			}
			out = append(out, c)
		}
	} else {
		f := storage.ChallengeFilter{
			Type:       typ,
			Difficulty: queryFilter(r, "difficulty"),
			Visibility: model.VisibilityPublic,
			Limit:      limit,
			Offset:     queryOffset(r),
		}
		if status != "" {
			f.Statuses = []model.ChallengeStatus{model.ChallengeStatus(status)}
		}
		challenges, err := h.catalog.FilterChallenges(r.Context(), f)
		if err != nil {
			h.writeInternalError(w, r, "failed to search challenges", err)
			return
		}
		for _, c := range challenges {
			out = append(out, model.ScoredChallenge{Challenge: c})
		}
	}

	out = out[:min(len(out), limit)]
	if out == nil {
		out = []model.ScoredChallenge{}
	}
	writeJSON(w, r, http.StatusOK, challengeSearchResponse{Challenges: out, Total: len(out)})
}

// HandleRecommendations handles GET /api/search/recommendations/{userId}.
func (h *Handlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "userId")
	if !ok {
		return
	}
	if !ctxutil.CanActFor(r.Context(), id) {
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "you can only see your own recommendations")
		return
	}
	recs, err := h.catalog.RecommendFromHistory(r.Context(), id)
	if err != nil {
		h.writeInternalError(w, r, "failed to get recommendations", err)
		return
	}
	writeJSON(w, r, http.StatusOK, recs)
}
