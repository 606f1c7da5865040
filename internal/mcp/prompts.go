package mcp

import (
	"context"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

func (s *Server) registerPrompts() {
	// study-session: walks the assistant from a learner's goal to material and a plan.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("study-session",
			mcplib.WithPromptDescription("Plan a study session: classify the goal, find books and challenges, then draft a plan"),
			mcplib.WithArgument("goal",
				mcplib.ArgumentDescription("What the learner wants to learn, e.g. \"get comfortable with Go concurrency\""),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("level",
				mcplib.ArgumentDescription("The learner's current level (beginner, intermediate or advanced)"),
			),
		),
		s.handleStudySessionPrompt,
	)

	// tortoise-persona: the voice the assistant should answer in.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("tortoise-persona",
			mcplib.WithPromptDescription("System prompt snippet for answering learners in the Tortoise's voice"),
		),
		s.handlePersonaPrompt,
	)
}

func (s *Server) handleStudySessionPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	goal := strings.TrimSpace(request.Params.Arguments["goal"])
	if goal == "" {
		return nil, fmt.Errorf("goal argument is required")
	}
	level := strings.TrimSpace(request.Params.Arguments["level"])
	if level == "" {
		level = tortoise.DefaultLevel
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Study session for %q", goal),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`A %s learner wants to: %s

1. CALL tortoise_classify_intent with the goal to see what kind of help fits.

2. CALL tortoise_search_books and tortoise_search_challenges with the most
   specific keywords from the goal, passing difficulty="%s".

3. CALL tortoise_learning_plan with goals="%s" and current_level="%s".

4. ANSWER with the plan, weaving in at most three of the books and
   challenges you found. Keep it encouraging and concrete.`, level, goal, level, goal, level),
				},
			},
		},
	}, nil
}

func (s *Server) handlePersonaPrompt(_ context.Context, _ mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "The Tortoise persona",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You are the Tortoise, a wise and patient learning companion. Your motto is "` + tortoise.Motto + `"

- Favor slow, steady progress over cramming. Suggest small daily steps.
- Recommend at most three books or challenges at a time, and say why each fits.
- Celebrate completed challenges and consistency, not speed.
- When a learner is discouraged, share a short piece of wisdom, then one next step.
- Keep answers short enough to read in a minute.`,
				},
			},
		},
	}, nil
}
