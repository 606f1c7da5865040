package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// InsertConversation logs one exchange with the Tortoise.
func (db *DB) InsertConversation(ctx context.Context, c model.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.RecommendationsGiven == nil {
		c.RecommendationsGiven = []model.Recommendation{}
	}
	if c.ContextUsed == nil {
		c.ContextUsed = map[string]any{}
	}
	var intent *string
	if c.Intent != nil {
		s := string(*c.Intent)
		intent = &s
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO ai_conversations (id, user_id, message, intent, ai_response, recommendations_given,
		                               context_used, response_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.UserID, c.Message, intent, c.AIResponse, c.RecommendationsGiven,
		c.ContextUsed, c.ResponseTimeMS, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert conversation: %w", err)
	}
	return nil
}

// ListConversations returns a user's conversations, newest first.
func (db *DB) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]model.Conversation, error) {
	q, args := paginate(
		`SELECT id, user_id, message, intent, ai_response, recommendations_given, context_used,
		        response_time_ms, satisfaction_rating, feedback, created_at
		 FROM ai_conversations WHERE user_id = $1 ORDER BY created_at DESC`,
		[]any{userID}, limit, 0)

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list conversations: %w", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		var c model.Conversation
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Message, &c.Intent, &c.AIResponse, &c.RecommendationsGiven,
			&c.ContextUsed, &c.ResponseTimeMS, &c.SatisfactionRating, &c.Feedback, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConversationFeedback stores a rating and free-text feedback.
// Returns ErrNotFound if the conversation does not exist.
func (db *DB) UpdateConversationFeedback(ctx context.Context, id uuid.UUID, rating int, feedback *string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE ai_conversations SET satisfaction_rating = $2, feedback = $3 WHERE id = $1`,
		id, rating, feedback,
	)
	if err != nil {
		return fmt.Errorf("storage: update conversation feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: conversation %s: %w", id, ErrNotFound)
	}
	return nil
}
