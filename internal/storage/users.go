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

const userColumns = `id, name, email, role, password_hash, preferences, learning_interests,
	language_preference, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.Preferences,
		&u.LearningInterests, &u.LanguagePreference, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

// CreateUser inserts a new profile. Returns ErrConflict if the email is taken.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = model.RoleLearner
	}
	if u.Preferences == nil {
		u.Preferences = map[string]any{}
	}
	if u.LearningInterests == nil {
		u.LearningInterests = []string{}
	}
	if u.LanguagePreference == "" {
		u.LanguagePreference = model.DefaultLanguage
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role, password_hash, preferences, learning_interests,
		                    language_preference, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Name, u.Email, string(u.Role), u.PasswordHash, u.Preferences,
		u.LearningInterests, u.LanguagePreference, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", u.Email, ErrConflict)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a profile by id.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a profile by its (normalized) email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", email, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return u, nil
}

// UpdatePreferences replaces the recommendation-related fields of a profile
// and bumps updated_at.
func (db *DB) UpdatePreferences(ctx context.Context, id uuid.UUID, prefs model.Preferences) (model.User, error) {
	if prefs.Preferences == nil {
		prefs.Preferences = map[string]any{}
	}
	if prefs.LearningInterests == nil {
		prefs.LearningInterests = []string{}
	}
	if prefs.LanguagePreference == "" {
		prefs.LanguagePreference = model.DefaultLanguage
	}

	u, err := scanUser(db.pool.QueryRow(ctx,
		`UPDATE users
		 SET preferences = $2, learning_interests = $3, language_preference = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, prefs.Preferences, prefs.LearningInterests, prefs.LanguagePreference,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: update preferences: %w", err)
	}
	return u, nil
}

// MergeLearningInterests appends keywords to a user's learning interests,
// dropping duplicates and keeping the first limit entries. The row is locked
// for the read-modify-write so concurrent chats do not lose each other's
// keywords. Returns the resulting interests.
func (db *DB) MergeLearningInterests(ctx context.Context, id uuid.UUID, keywords []string, limit int) ([]string, error) {
	var merged []string
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var current []string
		if err := tx.QueryRow(ctx,
			`SELECT learning_interests FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&current); err != nil {
			return err
		}

		merged = model.MergeInterests(current, keywords, limit)
		_, err := tx.Exec(ctx,
			`UPDATE users SET learning_interests = $2, updated_at = now() WHERE id = $1`,
			id, merged,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("storage: merge learning interests: %w", err)
	}
	return merged, nil
}

// SetUserRole changes a user's role. Used by admin bootstrap.
func (db *DB) SetUserRole(ctx context.Context, id uuid.UUID, role model.UserRole) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("storage: set user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRecentUsers returns the newest profiles first.
func (db *DB) ListRecentUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list recent users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
