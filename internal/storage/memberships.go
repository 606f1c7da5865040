package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifelonglearners/tortoise/internal/model"
)

// JoinChallenge records userID joining challengeID. Returns ErrConflict if the
// user already joined and ErrNotFound if either side does not exist.
func (db *DB) JoinChallenge(ctx context.Context, userID, challengeID uuid.UUID) (model.Membership, error) {
	m := model.Membership{
		ID:          uuid.New(),
		UserID:      userID,
		ChallengeID: challengeID,
		JoinedAt:    time.Now().UTC(),
		Progress:    map[string]any{},
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_challenges (id, user_id, challenge_id, joined_at, progress)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.ChallengeID, m.JoinedAt, m.Progress,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Membership{}, fmt.Errorf("storage: already joined challenge %s: %w", challengeID, ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return model.Membership{}, fmt.Errorf("storage: challenge %s: %w", challengeID, ErrNotFound)
		}
		return model.Membership{}, fmt.Errorf("storage: join challenge: %w", err)
	}
	return m, nil
}

// HasJoined reports whether userID has joined challengeID.
func (db *DB) HasJoined(ctx context.Context, userID, challengeID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_challenges WHERE user_id = $1 AND challenge_id = $2)`,
		userID, challengeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: has joined: %w", err)
	}
	return exists, nil
}

// CompleteChallenge marks a membership completed. Returns ErrNotFound if the
// user never joined.
func (db *DB) CompleteChallenge(ctx context.Context, userID, challengeID uuid.UUID) (model.Membership, error) {
	var m model.Membership
	err := db.pool.QueryRow(ctx,
		`UPDATE user_challenges SET completed_at = COALESCE(completed_at, now())
		 WHERE user_id = $1 AND challenge_id = $2
		 RETURNING id, user_id, challenge_id, joined_at, completed_at, progress`,
		userID, challengeID,
	).Scan(&m.ID, &m.UserID, &m.ChallengeID, &m.JoinedAt, &m.CompletedAt, &m.Progress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Membership{}, fmt.Errorf("storage: membership %s/%s: %w", userID, challengeID, ErrNotFound)
		}
		return model.Membership{}, fmt.Errorf("storage: complete challenge: %w", err)
	}
	return m, nil
}

// ListJoinedChallenges returns the user's memberships with their challenges,
// most recently joined first.
func (db *DB) ListJoinedChallenges(ctx context.Context, userID uuid.UUID, limit int) ([]model.JoinedChallenge, error) {
	q := `SELECT uc.id, uc.user_id, uc.challenge_id, uc.joined_at, uc.completed_at, uc.progress,
	             c.id, c.title, c.description, c.type, c.created_by, c.start_date, c.end_date,
	             c.visibility, c.tags, c.difficulty_level, c.status, c.created_at
	      FROM user_challenges uc
	      JOIN challenges c ON c.id = uc.challenge_id
	      WHERE uc.user_id = $1
	      ORDER BY uc.joined_at DESC`
	q, args := paginate(q, []any{userID}, limit, 0)

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list joined challenges: %w", err)
	}
	defer rows.Close()

	var out []model.JoinedChallenge
	for rows.Next() {
		var j model.JoinedChallenge
		c := &j.Challenge
		if err := rows.Scan(
			&j.ID, &j.UserID, &j.ChallengeID, &j.JoinedAt, &j.CompletedAt, &j.Progress,
			&c.ID, &c.Title, &c.Description, &c.Type, &c.CreatedBy, &c.StartDate, &c.EndDate,
			&c.Visibility, &c.Tags, &c.DifficultyLevel, &c.Status, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan joined challenge: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
