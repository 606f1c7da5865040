// Package search provides catalog matching: a weighted fuzzy matcher for
// keyword queries and a Qdrant vector index for semantic fallback.
package search

import (
	"context"

	"github.com/google/uuid"
)

// Kind distinguishes catalog entries sharing one vector collection.
type Kind string

const (
	KindBook      Kind = "book"
	KindChallenge Kind = "challenge"
)

// Result holds a catalog entry ID and its raw similarity score from the index.
// The caller hydrates full rows from Postgres (source of truth).
type Result struct {
	ID    uuid.UUID
	Score float32
}

// Searcher is the interface for vector search indexes.
// Implementations must be safe for concurrent use.
type Searcher interface {
	// Search returns entries of the given kind nearest to the query vector.
	Search(ctx context.Context, kind Kind, embedding []float32, limit int) ([]Result, error)

	// Healthy returns nil if the search index is reachable, or an error describing the problem.
	Healthy(ctx context.Context) error
}

// Indexer is the write side of a vector index.
type Indexer interface {
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, ids []uuid.UUID) error
}
