package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lifelonglearners/tortoise/internal/model"
)

const challengeColumns = `id, title, description, type, created_by, start_date, end_date,
	visibility, tags, difficulty_level, status, created_at`

// ChallengeFilter narrows ListChallenges. Empty fields and "all" match everything.
type ChallengeFilter struct {
	Search     string
	Type       string
	Difficulty string
	Statuses   []model.ChallengeStatus
	Visibility model.Visibility
	CreatedBy  *uuid.UUID
	Tags       []string // any overlap
	Limit      int
	Offset     int
}

func scanChallenge(row pgx.Row) (model.Challenge, error) {
	var c model.Challenge
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Type, &c.CreatedBy, &c.StartDate, &c.EndDate,
		&c.Visibility, &c.Tags, &c.DifficultyLevel, &c.Status, &c.CreatedAt,
	)
	return c, err
}

func collectChallenges(rows pgx.Rows) ([]model.Challenge, error) {
	defer rows.Close()
	var out []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan challenge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateChallenge inserts a challenge.
func (db *DB) CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Visibility == "" {
		c.Visibility = model.VisibilityPublic
	}
	if c.DifficultyLevel == "" {
		c.DifficultyLevel = model.DifficultyBeginner
	}
	if c.Status == "" {
		c.Status = model.StatusUpcoming
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO challenges (id, title, description, type, created_by, start_date, end_date,
		                         visibility, tags, difficulty_level, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.Title, c.Description, string(c.Type), c.CreatedBy, c.StartDate, c.EndDate,
		string(c.Visibility), c.Tags, c.DifficultyLevel, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("storage: create challenge: %w", err)
	}
	return c, nil
}

// GetChallenge retrieves a challenge by id.
func (db *DB) GetChallenge(ctx context.Context, id uuid.UUID) (model.Challenge, error) {
	c, err := scanChallenge(db.pool.QueryRow(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Challenge{}, fmt.Errorf("storage: challenge %s: %w", id, ErrNotFound)
		}
		return model.Challenge{}, fmt.Errorf("storage: get challenge: %w", err)
	}
	return c, nil
}

// ListChallenges returns challenges matching the filter, newest first.
func (db *DB) ListChallenges(ctx context.Context, f ChallengeFilter) ([]model.Challenge, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(title ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+escapeLike(s)+"%")
	}
	if isFilter(f.Type) {
		add("type = $%d", f.Type)
	}
	if isFilter(f.Difficulty) {
		add("difficulty_level = $%d", f.Difficulty)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if f.Visibility != "" {
		add("visibility = $%d", string(f.Visibility))
	}
	if f.CreatedBy != nil {
		add("created_by = $%d", *f.CreatedBy)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d", f.Tags)
	}

	q := `SELECT ` + challengeColumns + ` FROM challenges`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	q, args = paginate(q, args, f.Limit, f.Offset)

	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list challenges: %w", err)
	}
	return collectChallenges(rows)
}

// GetChallengesByIDs returns the challenges with the given ids, in id order.
func (db *DB) GetChallengesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Challenge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get challenges by ids: %w", err)
	}
	found, err := collectChallenges(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Challenge, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	ordered := make([]model.Challenge, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}
