package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookFormat enumerates how a book is delivered.
type BookFormat string

const (
	FormatPDF   BookFormat = "pdf"
	FormatAudio BookFormat = "audio"
	FormatPrint BookFormat = "print"
	FormatEbook BookFormat = "ebook"
)

// ChallengeType enumerates the kinds of challenge a creator can publish.
type ChallengeType string

const (
	ChallengeReading  ChallengeType = "reading"
	ChallengeCoding   ChallengeType = "coding"
	ChallengeSpeaking ChallengeType = "speaking"
	ChallengeCustom   ChallengeType = "custom"
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	StatusUpcoming  ChallengeStatus = "upcoming"
	StatusActive    ChallengeStatus = "active"
	StatusCompleted ChallengeStatus = "completed"
)

// OpenStatuses are the statuses a learner can still join.
var OpenStatuses = []ChallengeStatus{StatusActive, StatusUpcoming}

// Visibility controls whether a challenge is listed publicly.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Difficulty levels shared by books and challenges.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Book is a catalog entry.
type Book struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Description     *string    `json:"description,omitempty"`
	Tags            []string   `json:"tags"`
	Language        string     `json:"language"`
	Format          BookFormat `json:"format"`
	DifficultyLevel *string    `json:"difficulty_level,omitempty"`
	CreatedBy       *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Challenge is a time-boxed learning activity learners can join.
type Challenge struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	Type            ChallengeType   `json:"type"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	Visibility      Visibility      `json:"visibility"`
	Tags            []string        `json:"tags"`
	DifficultyLevel string          `json:"difficulty_level"`
	Status          ChallengeStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Membership records a user joining a challenge.
type Membership struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	ChallengeID uuid.UUID      `json:"challenge_id"`
	JoinedAt    time.Time      `json:"joined_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    map[string]any `json:"progress"`
}

// JoinedChallenge is a membership together with the challenge it refers to.
type JoinedChallenge struct {
	Membership
	Challenge Challenge `json:"challenge"`
}

// ScoredBook is a book with its fuzzy-match distance (0 is a perfect match).
type ScoredBook struct {
	Book
	Score float64 `json:"score"`
}

// ScoredChallenge is a challenge with its fuzzy-match distance.
type ScoredChallenge struct {
	Challenge
	Score float64 `json:"score"`
}

// Text returns the prose used to embed a book.
func (b Book) Text() string {
	parts := []string{b.Title, "by " + b.Author}
	if b.Description != nil {
		parts = append(parts, *b.Description)
	}
	if len(b.Tags) > 0 {
		parts = append(parts, strings.Join(b.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

// Text returns the prose used to embed a challenge.
func (c Challenge) Text() string {
	parts := []string{c.Title, string(c.Type) + " challenge"}
	if c.Description != nil {
		parts = append(parts, *c.Description)
	}
	if len(c.Tags) > 0 {
		parts = append(parts, strings.Join(c.Tags, ", "))
	}
	return strings.Join(parts, "\n")
}

// ValidateBookFormat checks a format against the allowed set.
func ValidateBookFormat(f BookFormat) error {
	switch f {
	case FormatPDF, FormatAudio, FormatPrint, FormatEbook:
		return nil
	default:
		return fmt.Errorf("format must be one of pdf, audio, print, ebook (got %q)", f)
	}
}

// ValidateChallengeType checks a challenge type against the allowed set.
func ValidateChallengeType(t ChallengeType) error {
	switch t {
	case ChallengeReading, ChallengeCoding, ChallengeSpeaking, ChallengeCustom:
		return nil
	default:
		return fmt.Errorf("type must be one of reading, coding, speaking, custom (got %q)", t)
	}
}

// ValidateChallengeStatus checks a status against the allowed set.
func ValidateChallengeStatus(s ChallengeStatus) error {
	switch s {
	case StatusUpcoming, StatusActive, StatusCompleted:
		return nil
	default:
		return fmt.Errorf("status must be one of upcoming, active, completed (got %q)", s)
	}
}

// ValidateVisibility checks a visibility value.
func ValidateVisibility(v Visibility) error {
	switch v {
	case VisibilityPublic, VisibilityPrivate:
		return nil
	default:
		return fmt.Errorf("visibility must be public or private (got %q)", v)
	}
}

// ValidateDifficulty checks a difficulty level.
func ValidateDifficulty(d string) error {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return nil
	default:
		return fmt.Errorf("difficulty_level must be one of beginner, intermediate, advanced (got %q)", d)
	}
}

// ValidateTags returns the tags trimmed and lowercased, rejecting empty ones.
func ValidateTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for i, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			return nil, fmt.Errorf("tags[%d] must not be empty", i)
		}
		if len(t) > 64 {
			return nil, fmt.Errorf("tags[%d] must be at most 64 characters", i)
		}
		out = append(out, t)
	}
	return out, nil
}
