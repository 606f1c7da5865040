package model

import (
	"time"

	"github.com/google/uuid"
)

// Intent is the classified purpose of a chat message.
type Intent string

const (
	IntentBookRequest       Intent = "book_request"
	IntentChallengeRequest  Intent = "challenge_request"
	IntentPlanRequest       Intent = "plan_request"
	IntentMotivationRequest Intent = "motivation_request"
	IntentProgressInquiry   Intent = "progress_inquiry"
	IntentGeneral           Intent = "general"
)

// KnownIntent reports whether s names an intent the pipeline understands.
func KnownIntent(s string) (Intent, bool) {
	switch i := Intent(s); i {
	case IntentBookRequest, IntentChallengeRequest, IntentPlanRequest,
		IntentMotivationRequest, IntentProgressInquiry, IntentGeneral:
		return i, true
	}
	return IntentGeneral, false
}

// Recommendation is the record of one book or challenge offered in a reply.
type Recommendation struct {
	Kind  string    `json:"kind"` // "book" or "challenge"
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Tags  []string  `json:"tags"`
}

// Conversation is one logged exchange with the Tortoise.
type Conversation struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               *uuid.UUID       `json:"user_id,omitempty"`
	Message              string           `json:"message"`
	Intent               *Intent          `json:"intent,omitempty"`
	AIResponse           *string          `json:"ai_response,omitempty"`
	RecommendationsGiven []Recommendation `json:"recommendations_given"`
	ContextUsed          map[string]any   `json:"context_used"`
	ResponseTimeMS       *int             `json:"response_time_ms,omitempty"`
	SatisfactionRating   *int             `json:"satisfaction_rating,omitempty"`
	Feedback             *string          `json:"feedback,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// Interaction records something a user did on the platform.
type Interaction struct {
	ID              uuid.UUID      `json:"id"`
	UserID          uuid.UUID      `json:"user_id"`
	InteractionType string         `json:"interaction_type"`
	EntityType      string         `json:"entity_type"`
	EntityID        *string        `json:"entity_id,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Tags returns metadata.tags as strings, ignoring non-string entries.
func (i Interaction) Tags() []string {
	raw, ok := i.Metadata["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Learning frequency buckets.
const (
	FrequencyNewUser    = "new_user"
	FrequencyVeryActive = "very_active"
	FrequencyActive     = "active"
	FrequencyModerate   = "moderate"
	FrequencyOccasional = "occasional"
)

// Satisfaction trend values.
const (
	TrendInsufficientData = "insufficient_data"
	TrendNewFeedback      = "new_feedback"
	TrendImproving        = "improving"
	TrendDeclining        = "declining"
	TrendStable           = "stable"
)

// LearningInsights summarizes a learner's recent activity.
type LearningInsights struct {
	MostDiscussedTopics     []string `json:"most_discussed_topics"`
	LearningFrequency       string   `json:"learning_frequency"`
	PreferredChallengeTypes []string `json:"preferred_challenge_types"`
	SatisfactionTrend       string   `json:"satisfaction_trend"`
}

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	TotalUsers       int         `json:"total_users"`
	ActiveChallenges int         `json:"active_challenges"`
	TotalBooks       int         `json:"total_books"`
	CompletionRate   float64     `json:"completion_rate"`
	RecentUsers      []User      `json:"recent_users"`
	RecentChallenges []Challenge `json:"recent_challenges"`
	RecentBooks      []Book      `json:"recent_books"`
}
