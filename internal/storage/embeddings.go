package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// SetBookEmbedding stores the semantic vector for a book.
func (db *DB) SetBookEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error {
	if _, err := db.pool.Exec(ctx, `UPDATE books SET embedding = $2 WHERE id = $1`, id, vec); err != nil {
		return fmt.Errorf("storage: set book embedding: %w", err)
	}
	return nil
}

// SetChallengeEmbedding stores the semantic vector for a challenge.
func (db *DB) SetChallengeEmbedding(ctx context.Context, id uuid.UUID, vec pgvector.Vector) error {
	if _, err := db.pool.Exec(ctx, `UPDATE challenges SET embedding = $2 WHERE id = $1`, id, vec); err != nil {
		return fmt.Errorf("storage: set challenge embedding: %w", err)
	}
	return nil
}

// BooksMissingEmbedding returns up to limit books that have no vector yet.
func (db *DB) BooksMissingEmbedding(ctx context.Context, limit int) ([]model.Book, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE embedding IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: books missing embedding: %w", err)
	}
	return collectBooks(rows)
}

// ChallengesMissingEmbedding returns up to limit challenges that have no vector yet.
func (db *DB) ChallengesMissingEmbedding(ctx context.Context, limit int) ([]model.Challenge, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE embedding IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: challenges missing embedding: %w", err)
	}
	return collectChallenges(rows)
}

// NearestBooks returns the books closest to vec by cosine distance.
func (db *DB) NearestBooks(ctx context.Context, vec pgvector.Vector, limit int) ([]model.Book, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: nearest books: %w", err)
	}
	return collectBooks(rows)
}

// NearestChallenges returns open public challenges closest to vec by cosine distance.
func (db *DB) NearestChallenges(ctx context.Context, vec pgvector.Vector, limit int) ([]model.Challenge, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE embedding IS NOT NULL AND visibility = 'public' AND status IN ('active', 'upcoming')
		 ORDER BY embedding <=> $1 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: nearest challenges: %w", err)
	}
	return collectChallenges(rows)
}
