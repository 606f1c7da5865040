// Package catalog finds books and challenges for learners: fuzzy search over
// the catalog, a semantic fallback through embeddings, and tag-overlap
// recommendations from a learner's history.
//
// The chat pipeline, the HTTP search endpoints and the MCP tools all go
// through this service so they rank results identically.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/service/embedding"
	"github.com/lifelonglearners/tortoise/internal/storage"
	"github.com/lifelonglearners/tortoise/internal/telemetry"
)

// Result sizes.
const (
	BlankQueryLimit      = 5
	SearchLimit          = 3
	RecommendLimit       = 3
	historyInteractions  = 20
	historyConversations = 10
)

// Store is the slice of storage the catalog reads and writes.
type Store interface {
	ListBooks(ctx context.Context, f storage.BookFilter) ([]model.Book, error)
	ListChallenges(ctx context.Context, f storage.ChallengeFilter) ([]model.Challenge, error)
	GetBooksByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Book, error)
	GetChallengesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Challenge, error)
	ListInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Interaction, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]model.Conversation, error)

	NearestBooks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.Book, error)
	NearestChallenges(ctx context.Context, vec pgvector.Vector, limit int) ([]model.Challenge, error)
	SetBookEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error
	SetChallengeEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error
	BooksMissingEmbedding(ctx context.Context, limit int) ([]model.Book, error)
	ChallengesMissingEmbedding(ctx context.Context, limit int) ([]model.Challenge, error)
}

// VectorIndex is an external vector index holding catalog embeddings.
type VectorIndex interface {
	search.Searcher
	search.Indexer
}

// Service implements catalog search and recommendations.
type Service struct {
	store    Store
	embedder embedding.Provider
	index    VectorIndex
	logger   *slog.Logger

	books      *search.Matcher[model.Book]
	challenges *search.Matcher[model.Challenge]

	searchDuration metric.Float64Histogram
	semanticHits   metric.Int64Counter
}

// New creates a catalog Service. index may be nil, in which case semantic
// search uses pgvector directly. A nil or noop embedder disables semantic
// search and indexing.
func New(store Store, embedder embedding.Provider, index VectorIndex, logger *slog.Logger) *Service {
	meter := telemetry.Meter("tortoise/catalog")
	searchDur, _ := meter.Float64Histogram("tortoise.catalog.search.duration",
		metric.WithDescription("Time to search the catalog (ms)"),
		metric.WithUnit("ms"),
	)
	semantic, _ := meter.Int64Counter("tortoise.catalog.semantic_fallbacks",
		metric.WithDescription("Searches answered by the embedding fallback"),
	)
	if embedder == nil {
		embedder = embedding.NewNoopProvider(0)
	}
	return &Service{
		store:          store,
		embedder:       embedder,
		index:          index,
		logger:         logger,
		books:          BookMatcher(),
		challenges:     ChallengeMatcher(),
		searchDuration: searchDur,
		semanticHits:   semantic,
	}
}

// BookMatcher weights title over author over description over tags.
func BookMatcher() *search.Matcher[model.Book] {
	return search.NewMatcher(search.DefaultThreshold,
		search.Field[model.Book]{Name: "title", Weight: 0.4, Values: func(b model.Book) []string { return []string{b.Title} }},
		search.Field[model.Book]{Name: "author", Weight: 0.3, Values: func(b model.Book) []string { return []string{b.Author} }},
		search.Field[model.Book]{Name: "description", Weight: 0.2, Values: func(b model.Book) []string { return optional(b.Description) }},
		search.Field[model.Book]{Name: "tags", Weight: 0.1, Values: func(b model.Book) []string { return b.Tags }},
	)
}

// ChallengeMatcher weights title over description over type over tags.
func ChallengeMatcher() *search.Matcher[model.Challenge] {
	return search.NewMatcher(search.DefaultThreshold,
		search.Field[model.Challenge]{Name: "title", Weight: 0.4, Values: func(c model.Challenge) []string { return []string{c.Title} }},
		search.Field[model.Challenge]{Name: "description", Weight: 0.3, Values: func(c model.Challenge) []string { return optional(c.Description) }},
		search.Field[model.Challenge]{Name: "type", Weight: 0.2, Values: func(c model.Challenge) []string { return []string{string(c.Type)} }},
		search.Field[model.Challenge]{Name: "tags", Weight: 0.1, Values: func(c model.Challenge) []string { return c.Tags }},
	)
}

func optional(s *string) []string {
	if s == nil {
		return nil
	}
	return []string{*s}
}

// SearchBooks fuzzy-matches query against every book and returns the best
// three that fit the learner's language and difficulty. A blank query returns
// the first five books unfiltered.
func (s *Service) SearchBooks(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredBook, error) {
	start := time.Now()
	defer func() { s.recordSearch(ctx, "book", start) }()

	books, err := s.store.ListBooks(ctx, storage.BookFilter{})
	if err != nil {
		return nil, fmt.Errorf("catalog: search books: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		out := make([]model.ScoredBook, 0, min(len(books), BlankQueryLimit))
		for _, b := range books[:min(len(books), BlankQueryLimit)] {
			out = append(out, model.ScoredBook{Book: b})
		}
		return out, nil
	}

	var scored []model.ScoredBook
	for _, m := range s.books.Match(query, books) {
		scored = append(scored, model.ScoredBook{Book: m.Item, Score: m.Score})
	}
	if len(scored) == 0 {
		scored = s.semanticBooks(ctx, query)
	}

	lang := prefs.LanguagePreference
	difficulty := prefs.Difficulty()
	out := make([]model.ScoredBook, 0, len(scored))
	for _, b := range scored {
		if lang != "" && lang != "any" && b.Language != lang {
			continue
		}
		if difficulty != "" && (b.DifficultyLevel == nil || *b.DifficultyLevel != difficulty) {
			continue
		}
		out = append(out, b)
	}
	return out[:min(len(out), SearchLimit)], nil
}

// SearchChallenges fuzzy-matches query against public challenges that are
// active or upcoming and returns the best three at the learner's difficulty.
func (s *Service) SearchChallenges(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredChallenge, error) {
	start := time.Now()
	defer func() { s.recordSearch(ctx, "challenge", start) }()

	challenges, err := s.store.ListChallenges(ctx, storage.ChallengeFilter{
		Statuses:   model.OpenStatuses,
		Visibility: model.VisibilityPublic,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: search challenges: %w", err)
	}
	if strings.TrimSpace(query) == "" {
		out := make([]model.ScoredChallenge, 0, min(len(challenges), BlankQueryLimit))
		for _, c := range challenges[:min(len(challenges), BlankQueryLimit)] {
			out = append(out, model.ScoredChallenge{Challenge: c})
		}
		return out, nil
	}

	var scored []model.ScoredChallenge
	for _, m := range s.challenges.Match(query, challenges) {
		scored = append(scored, model.ScoredChallenge{Challenge: m.Item, Score: m.Score})
	}
	if len(scored) == 0 {
		scored = s.semanticChallenges(ctx, query)
	}

	difficulty := prefs.Difficulty()
	out := make([]model.ScoredChallenge, 0, len(scored))
	for _, c := range scored {
		if difficulty != "" && c.DifficultyLevel != difficulty {
			continue
		}
		out = append(out, c)
	}
	return out[:min(len(out), SearchLimit)], nil
}

func (s *Service) recordSearch(ctx context.Context, kind string, start time.Time) {
	s.searchDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("kind", kind)))
}

// FilterBooks lists books for the non-query search endpoint.
func (s *Service) FilterBooks(ctx context.Context, f storage.BookFilter) ([]model.Book, error) {
	books, err := s.store.ListBooks(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: filter books: %w", err)
	}
	return books, nil
}

// FilterChallenges lists challenges for the non-query search endpoint.
func (s *Service) FilterChallenges(ctx context.Context, f storage.ChallengeFilter) ([]model.Challenge, error) {
	challenges, err := s.store.ListChallenges(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: filter challenges: %w", err)
	}
	return challenges, nil
}

// RecommendFromHistory derives interests from the tags of a learner's recent
// interactions and recommendations, then returns catalog entries sharing them.
func (s *Service) RecommendFromHistory(ctx context.Context, userID uuid.UUID) (model.Recommendations, error) {
	recs := model.Recommendations{Books: []model.Book{}, Challenges: []model.Challenge{}, Interests: []string{}}

	interactions, err := s.store.ListInteractions(ctx, userID, historyInteractions)
	if err != nil {
		s.logger.Warn("catalog: load interactions failed", "user_id", userID, "error", err)
	}
	conversations, err := s.store.ListConversations(ctx, userID, historyConversations)
	if err != nil {
		s.logger.Warn("catalog: load conversations failed", "user_id", userID, "error", err)
	}

	recs.Interests = InterestsFromHistory(interactions, conversations)
	if len(recs.Interests) == 0 {
		return recs, nil
	}

	books, err := s.store.ListBooks(ctx, storage.BookFilter{Tags: recs.Interests, Limit: RecommendLimit})
	if err != nil {
		return recs, fmt.Errorf("catalog: recommend books: %w", err)
	}
	challenges, err := s.store.ListChallenges(ctx, storage.ChallengeFilter{
		Tags:       recs.Interests,
		Statuses:   model.OpenStatuses,
		Visibility: model.VisibilityPublic,
		Limit:      RecommendLimit,
	})
	if err != nil {
		return recs, fmt.Errorf("catalog: recommend challenges: %w", err)
	}
	if books != nil {
		recs.Books = books
	}
	if challenges != nil {
		recs.Challenges = challenges
	}
	return recs, nil
}

// InterestsFromHistory collects tags from interaction metadata and from the
// recommendations given in past conversations, deduplicated in first-seen order.
func InterestsFromHistory(interactions []model.Interaction, conversations []model.Conversation) []string {
	seen := make(map[string]bool)
	interests := []string{}
	add := func(tags []string) {
		for _, t := range tags {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			interests = append(interests, t)
		}
	}
	for _, in := range interactions {
		add(in.Tags())
	}
	for _, c := range conversations {
		for _, r := range c.RecommendationsGiven {
			add(r.Tags)
		}
	}
	return interests
}
