package tortoise

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/llm"
)

// PlanInput describes what a learner wants a plan for.
type PlanInput struct {
	UserID         *uuid.UUID
	Goals          string
	CurrentLevel   string // default DefaultLevel
	TimeCommitment string // default DefaultCommitment
}

// GeneratePlan drafts a phased learning plan. When a user is known the plan
// is logged as a plan_request conversation.
func (s *Service) GeneratePlan(ctx context.Context, in PlanInput) (string, error) {
	start := s.now()
	goals := strings.TrimSpace(in.Goals)
	if goals == "" {
		return "", ErrEmptyGoals
	}
	level := strings.TrimSpace(in.CurrentLevel)
	if level == "" {
		level = DefaultLevel
	}
	commitment := strings.TrimSpace(in.TimeCommitment)
	if commitment == "" {
		commitment = DefaultCommitment
	}

	var (
		plan    string
		backend = OfflineSource
	)
	if s.llm != nil {
		text, err := s.llm.Complete(ctx, llm.Request{
			Model:       s.chatModel,
			Messages:    []llm.Message{llm.System(planSystemPrompt), llm.User(PlanPrompt(goals, level, commitment))},
			MaxTokens:   planMaxTokens,
			Temperature: chatTemperature,
		})
		if err != nil {
			s.llmErrors.Add(ctx, 1)
			return "", fmt.Errorf("tortoise: generate plan: %w", err)
		}
		plan, backend = text, s.llm.Name()
	} else {
		plan = s.offline.Plan(goals, level, commitment)
	}

	if in.UserID != nil {
		detected := model.IntentPlanRequest
		ms := int(s.now().Sub(start).Milliseconds())
		if err := s.store.InsertConversation(context.WithoutCancel(ctx), model.Conversation{
			ID:         uuid.New(),
			UserID:     in.UserID,
			Message:    "Generate learning plan: " + goals,
			Intent:     &detected,
			AIResponse: &plan,
			ContextUsed: map[string]any{
				"current_level":   level,
				"time_commitment": commitment,
				"backend":         backend,
			},
			ResponseTimeMS: &ms,
		}); err != nil {
			s.logger.Error("tortoise: log plan failed", "user_id", *in.UserID, "error", err)
		}
	}
	return plan, nil
}
