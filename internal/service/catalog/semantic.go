package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/search"
	"github.com/lifelonglearners/tortoise/internal/service/embedding"
)

// semanticFetch over-fetches so the preference filters still leave results.
const semanticFetch = SearchLimit * 4

// Semantic reports whether embedding-based fallback search is enabled.
func (s *Service) Semantic() bool {
	return embedding.Available(s.embedder)
}

// semanticBooks finds books near query in embedding space. Failures are
// logged and yield no results; fuzzy search has already come up empty.
func (s *Service) semanticBooks(ctx context.Context, query string) []model.ScoredBook {
	vec, ok := s.embedQuery(ctx, query)
	if !ok {
		return nil
	}

	var out []model.ScoredBook
	if s.index != nil {
		hits, err := s.index.Search(ctx, search.KindBook, vec.Slice(), semanticFetch)
		if err != nil {
			s.logger.Warn("catalog: vector index book search failed", "error", err)
			return nil
		}
		ids, scores := splitHits(hits)
		books, err := s.store.GetBooksByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("catalog: hydrate books failed", "error", err)
			return nil
		}
		for _, b := range books {
			out = append(out, model.ScoredBook{Book: b, Score: scores[b.ID]})
		}
	} else {
		books, err := s.store.NearestBooks(ctx, vec, semanticFetch)
		if err != nil {
			s.logger.Warn("catalog: nearest books failed", "error", err)
			return nil
		}
		for i, b := range books {
			out = append(out, model.ScoredBook{Book: b, Score: rankScore(i, len(books))})
		}
	}
	if len(out) > 0 {
		s.semanticHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "book")))
	}
	return out
}

func (s *Service) semanticChallenges(ctx context.Context, query string) []model.ScoredChallenge {
	vec, ok := s.embedQuery(ctx, query)
	if !ok {
		return nil
	}

	var out []model.ScoredChallenge
	if s.index != nil {
		hits, err := s.index.Search(ctx, search.KindChallenge, vec.Slice(), semanticFetch)
		if err != nil {
			s.logger.Warn("catalog: vector index challenge search failed", "error", err)
			return nil
		}
		ids, scores := splitHits(hits)
		challenges, err := s.store.GetChallengesByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("catalog: hydrate challenges failed", "error", err)
			return nil
		}
		for _, c := range challenges {
			out = append(out, model.ScoredChallenge{Challenge: c, Score: scores[c.ID]})
		}
	} else {
		challenges, err := s.store.NearestChallenges(ctx, vec, semanticFetch)
		if err != nil {
			s.logger.Warn("catalog: nearest challenges failed", "error", err)
			return nil
		}
		for i, c := range challenges {
			out = append(out, model.ScoredChallenge{Challenge: c, Score: rankScore(i, len(challenges))})
		}
	}
	if len(out) > 0 {
		s.semanticHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "challenge")))
	}
	return out
}

func (s *Service) embedQuery(ctx context.Context, query string) (pgvector.Vector, bool) {
	if !s.Semantic() {
		return pgvector.Vector{}, false
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("catalog: embed query failed", "error", err)
		return pgvector.Vector{}, false
	}
	return vec, true
}

// splitHits returns hit ids in rank order and each id's distance, where 0 is
// identical. Cosine similarity is mapped onto the fuzzy score scale.
func splitHits(hits []search.Result) ([]uuid.UUID, map[uuid.UUID]float64) {
	ids := make([]uuid.UUID, len(hits))
	scores := make(map[uuid.UUID]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = max(0, min(1, 1-float64(h.Score)))
	}
	return ids, scores
}

// rankScore spreads pgvector results, which arrive ordered but unscored,
// evenly across [0, 1).
func rankScore(i, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(i) / float64(n)
}

// IndexBook embeds a book and stores its vector in Postgres and, when
// configured, the vector index. It is a no-op without an embedding provider.
func (s *Service) IndexBook(ctx context.Context, b model.Book) error {
	if !s.Semantic() {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, b.Text())
	if err != nil {
		return fmt.Errorf("catalog: embed book %s: %w", b.ID, err)
	}
	return s.storeBookVectors(ctx, []model.Book{b}, []pgvector.Vector{vec})
}

// IndexChallenge is IndexBook for challenges.
func (s *Service) IndexChallenge(ctx context.Context, c model.Challenge) error {
	if !s.Semantic() {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, c.Text())
	if err != nil {
		return fmt.Errorf("catalog: embed challenge %s: %w", c.ID, err)
	}
	return s.storeChallengeVectors(ctx, []model.Challenge{c}, []pgvector.Vector{vec})
}

func (s *Service) storeBookVectors(ctx context.Context, books []model.Book, vecs []pgvector.Vector) error {
	if len(vecs) != len(books) {
		return fmt.Errorf("catalog: got %d book embeddings for %d books", len(vecs), len(books))
	}
	points := make([]search.Point, 0, len(books))
	for i, b := range books {
		if err := s.store.SetBookEmbedding(ctx, b.ID, vecs[i]); err != nil {
			return fmt.Errorf("catalog: store book embedding: %w", err)
		}
		p := search.Point{ID: b.ID, Kind: search.KindBook, Embedding: vecs[i].Slice(), Tags: b.Tags, Language: b.Language}
		if b.DifficultyLevel != nil {
			p.Difficulty = *b.DifficultyLevel
		}
		points = append(points, p)
	}
	if s.index == nil {
		return nil
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("catalog: index books: %w", err)
	}
	return nil
}

func (s *Service) storeChallengeVectors(ctx context.Context, challenges []model.Challenge, vecs []pgvector.Vector) error {
	if len(vecs) != len(challenges) {
		return fmt.Errorf("catalog: got %d challenge embeddings for %d challenges", len(vecs), len(challenges))
	}
	points := make([]search.Point, 0, len(challenges))
	for i, c := range challenges {
		if err := s.store.SetChallengeEmbedding(ctx, c.ID, vecs[i]); err != nil {
			return fmt.Errorf("catalog: store challenge embedding: %w", err)
		}
		points = append(points, search.Point{
			ID:         c.ID,
			Kind:       search.KindChallenge,
			Embedding:  vecs[i].Slice(),
			Tags:       c.Tags,
			Difficulty: c.DifficultyLevel,
			Visibility: string(c.Visibility),
			Status:     string(c.Status),
		})
	}
	if s.index == nil {
		return nil
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		return fmt.Errorf("catalog: index challenges: %w", err)
	}
	return nil
}

// BackfillResult counts the entries embedded by Backfill.
type BackfillResult struct {
	Books      int `json:"books"`
	Challenges int `json:"challenges"`
}

// Backfill embeds every book and challenge that has no vector yet, batch at
// a time. It stops at the first failure and reports what was done so far.
func (s *Service) Backfill(ctx context.Context, batch int) (BackfillResult, error) {
	var res BackfillResult
	if !s.Semantic() {
		return res, nil
	}
	if batch <= 0 {
		batch = 50
	}

	for {
		books, err := s.store.BooksMissingEmbedding(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("catalog: backfill books: %w", err)
		}
		if len(books) == 0 {
			break
		}
		texts := make([]string, len(books))
		for i, b := range books {
			texts[i] = b.Text()
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("catalog: backfill books: %w", err)
		}
		if err := s.storeBookVectors(ctx, books, vecs); err != nil {
			return res, err
		}
		res.Books += len(books)
		s.logger.Info("catalog: backfilled books", "count", len(books), "total", res.Books)
		if len(books) < batch {
			break
		}
	}

	for {
		challenges, err := s.store.ChallengesMissingEmbedding(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("catalog: backfill challenges: %w", err)
		}
		if len(challenges) == 0 {
			break
		}
		texts := make([]string, len(challenges))
		for i, c := range challenges {
			texts[i] = c.Text()
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("catalog: backfill challenges: %w", err)
		}
		if err := s.storeChallengeVectors(ctx, challenges, vecs); err != nil {
			return res, err
		}
		res.Challenges += len(challenges)
		s.logger.Info("catalog: backfilled challenges", "count", len(challenges), "total", res.Challenges)
		if len(challenges) < batch {
			break
		}
	}
	return res, nil
}
