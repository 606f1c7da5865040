package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Field length limits for user-supplied text that flows into prompts and
// Postgres TEXT columns.
const (
	MaxMessageLen     = 4 * 1024
	MaxGoalsLen       = 2 * 1024
	MaxFeedbackLen    = 4 * 1024
	MaxTitleLen       = 300
	MaxDescriptionLen = 16 * 1024
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
	Qdrant      string    `json:"qdrant,omitempty"`
	Version     string    `json:"version"`
	Uptime      int64     `json:"uptime_seconds"`
}

// SignupRequest is the request body for POST /api/auth/signup.
type SignupRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// AskRequest is the request body for POST /api/ai/ask.
type AskRequest struct {
	Message string         `json:"message"`
	UserID  *uuid.UUID     `json:"user_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ClassifyRequest is the request body for POST /api/ai/classify-intent.
type ClassifyRequest struct {
	Message string `json:"message"`
}

// PlanRequest is the request body for POST /api/ai/generate-plan.
type PlanRequest struct {
	Goals          string     `json:"goals"`
	CurrentLevel   string     `json:"current_level,omitempty"`
	Level          string     `json:"level,omitempty"` // older clients; current_level wins
	TimeCommitment string     `json:"time_commitment,omitempty"`
	UserID         *uuid.UUID `json:"user_id,omitempty"`
}

// EffectiveLevel returns the requested starting level, preferring current_level.
func (r PlanRequest) EffectiveLevel() string {
	if strings.TrimSpace(r.CurrentLevel) != "" {
		return r.CurrentLevel
	}
	return r.Level
}

// PlanResponse is the response for POST /api/ai/generate-plan.
type PlanResponse struct {
	Plan string `json:"plan"`
}

// FeedbackRequest is the request body for POST /api/ai/feedback.
type FeedbackRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Rating         int       `json:"rating"`
	Feedback       string    `json:"feedback,omitempty"`
}

// UpdatePreferencesRequest is the request body for POST /api/users/{id}/preferences.
type UpdatePreferencesRequest struct {
	Preferences        map[string]any `json:"preferences,omitempty"`
	LearningInterests  []string       `json:"learning_interests,omitempty"`
	LanguagePreference string         `json:"language_preference,omitempty"`
}

// InteractionRequest is the request body for POST /api/users/{id}/interactions.
type InteractionRequest struct {
	InteractionType string         `json:"interaction_type"`
	EntityType      string         `json:"entity_type"`
	EntityID        *string        `json:"entity_id,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// CreateBookRequest is the request body for POST /api/books.
type CreateBookRequest struct {
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Description     *string    `json:"description,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Language        string     `json:"language,omitempty"`
	Format          BookFormat `json:"format"`
	DifficultyLevel *string    `json:"difficulty_level,omitempty"`
}

// CreateChallengeRequest is the request body for POST /api/challenges.
type CreateChallengeRequest struct {
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Type            ChallengeType   `json:"type"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	Visibility      Visibility      `json:"visibility,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	DifficultyLevel string          `json:"difficulty_level,omitempty"`
	Status          ChallengeStatus `json:"status,omitempty"`
}

// Recommendations is the response for GET /api/search/recommendations/{userId}.
type Recommendations struct {
	Books      []Book      `json:"books"`
	Challenges []Challenge `json:"challenges"`
	Interests  []string    `json:"interests"`
}

// Book validates the request and returns the book it describes. Tags are
// normalized and the language defaults to DefaultLanguage.
func (r CreateBookRequest) Book() (Book, error) {
	b := Book{
		Title:       strings.TrimSpace(r.Title),
		Author:      strings.TrimSpace(r.Author),
		Description: r.Description,
		Language:    strings.ToLower(strings.TrimSpace(r.Language)),
		Format:      r.Format,
	}
	if b.Title == "" || b.Author == "" {
		return Book{}, fmt.Errorf("title and author are required")
	}
	if len(b.Title) > MaxTitleLen {
		return Book{}, fmt.Errorf("title must be at most %d characters", MaxTitleLen)
	}
	if r.Description != nil && len(*r.Description) > MaxDescriptionLen {
		return Book{}, fmt.Errorf("description must be at most %d characters", MaxDescriptionLen)
	}
	if b.Language == "" {
		b.Language = DefaultLanguage
	}
	if err := ValidateBookFormat(b.Format); err != nil {
		return Book{}, err
	}
	if r.DifficultyLevel != nil && *r.DifficultyLevel != "" {
		if err := ValidateDifficulty(*r.DifficultyLevel); err != nil {
			return Book{}, err
		}
		d := *r.DifficultyLevel
		b.DifficultyLevel = &d
	}
	tags, err := ValidateTags(r.Tags)
	if err != nil {
		return Book{}, err
	}
	b.Tags = tags
	return b, nil
}

// Challenge validates the request and returns the challenge it describes,
// created by creator. Visibility, difficulty and status take their defaults
// when blank.
func (r CreateChallengeRequest) Challenge(creator uuid.UUID) (Challenge, error) {
	c := Challenge{
		Title:           strings.TrimSpace(r.Title),
		Description:     r.Description,
		Type:            r.Type,
		CreatedBy:       creator,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		Visibility:      r.Visibility,
		DifficultyLevel: r.DifficultyLevel,
		Status:          r.Status,
	}
	if c.Title == "" {
		return Challenge{}, fmt.Errorf("title is required")
	}
	if len(c.Title) > MaxTitleLen {
		return Challenge{}, fmt.Errorf("title must be at most %d characters", MaxTitleLen)
	}
	if r.Description != nil && len(*r.Description) > MaxDescriptionLen {
		return Challenge{}, fmt.Errorf("description must be at most %d characters", MaxDescriptionLen)
	}
	if err := ValidateChallengeType(c.Type); err != nil {
		return Challenge{}, err
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityPublic
	}
	if err := ValidateVisibility(c.Visibility); err != nil {
		return Challenge{}, err
	}
	if c.DifficultyLevel == "" {
		c.DifficultyLevel = DifficultyBeginner
	}
	if err := ValidateDifficulty(c.DifficultyLevel); err != nil {
		return Challenge{}, err
	}
	if c.Status == "" {
		c.Status = StatusUpcoming
	}
	if err := ValidateChallengeStatus(c.Status); err != nil {
		return Challenge{}, err
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return Challenge{}, fmt.Errorf("end_date must not be before start_date")
	}
	tags, err := ValidateTags(r.Tags)
	if err != nil {
		return Challenge{}, err
	}
	c.Tags = tags
	return c, nil
}
