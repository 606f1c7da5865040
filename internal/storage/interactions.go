package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// InsertInteraction records a user action and returns it with its id set.
func (db *DB) InsertInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Metadata == nil {
		in.Metadata = map[string]any{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_interactions (id, user_id, interaction_type, entity_type, entity_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.UserID, in.InteractionType, in.EntityType, in.EntityID, in.Metadata, in.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Interaction{}, fmt.Errorf("storage: user %s: %w", in.UserID, ErrNotFound)
		}
		return model.Interaction{}, fmt.Errorf("storage: insert interaction: %w", err)
	}
	return in, nil
}

// ListInteractions returns a user's interactions, newest first.
func (db *DB) ListInteractions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Interaction, error) {
	q, args := paginate(
		`SELECT id, user_id, interaction_type, entity_type, entity_id, metadata, created_at
		 FROM user_interactions WHERE user_id = $1 ORDER BY created_at DESC`,
		[]any{userID}, limit, 0)

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var in model.Interaction
		if err := rows.Scan(
			&in.ID, &in.UserID, &in.InteractionType, &in.EntityType, &in.EntityID, &in.Metadata, &in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
