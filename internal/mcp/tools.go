package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("tortoise_search_books",
			mcplib.WithDescription(`Search the book catalog by title, author, description and tags.

Matching is typo tolerant. Returns at most three books, best match first,
each with a score where 0 is a perfect match.

EXAMPLE: query="atomic habits", language="english"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("What to look for: a title, an author or a topic"),
				mcplib.Required(),
			),
			mcplib.WithString("language",
				mcplib.Description("Only return books in this language, e.g. english or amharic"),
			),
			mcplib.WithString("difficulty",
				mcplib.Description("Only return books at this level"),
				mcplib.Enum(model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced),
			),
		),
		s.handleSearchBooks,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("tortoise_search_challenges",
			mcplib.WithDescription(`Search public challenges that are active or upcoming.

Returns at most three challenges, best match first.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("What to look for: a skill, a topic or a challenge title"),
				mcplib.Required(),
			),
			mcplib.WithString("difficulty",
				mcplib.Description("Only return challenges at this level"),
				mcplib.Enum(model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced),
			),
		),
		s.handleSearchChallenges,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("tortoise_recommend",
			mcplib.WithDescription(`Recommend books and challenges from a learner's history.

Interests are collected from the learner's recorded interactions and from
what the Tortoise recommended in past conversations. You may only ask for
your own recommendations unless you are an admin.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("user_id",
				mcplib.Description("The learner's UUID. Defaults to your authenticated identity."),
			),
		),
		s.handleRecommend,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("tortoise_classify_intent",
			mcplib.WithDescription(`Classify what a learner's message is asking for.

Intents: book_request, challenge_request, plan_request, motivation_request,
progress_inquiry, general. The result carries a confidence in [0, 1] and
the keywords extracted from the message.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("message",
				mcplib.Description("The learner's message"),
				mcplib.Required(),
			),
		),
		s.handleClassifyIntent,
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("tortoise_learning_plan",
			mcplib.WithDescription(`Draft a phased learning plan in the slow and steady style.

The plan has a foundation, a building and a mastery phase with milestones.
The plan is saved to the caller's conversation history.`),
			mcplib.WithReadOnlyHintAnnotation(false),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithString("goals",
				mcplib.Description("What the learner wants to achieve"),
				mcplib.Required(),
			),
			mcplib.WithString("current_level",
				mcplib.Description("The learner's current level (default beginner)"),
			),
			mcplib.WithString("time_commitment",
				mcplib.Description("How much time the learner can give (default 30 minutes daily)"),
			),
		),
		s.handleLearningPlan,
	)
}

func (s *Server) handleSearchBooks(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return errorResult("query is required"), nil
	}
	prefs := preferences(request.GetString("language", ""), request.GetString("difficulty", ""))

	books, err := s.catalog.SearchBooks(ctx, query, prefs)
	if err != nil {
		s.logger.Error("mcp: search books failed", "error", err)
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}
	if books == nil {
		books = []model.ScoredBook{}
	}
	return jsonResult(map[string]any{"books": books, "total": len(books)}), nil
}

func (s *Server) handleSearchChallenges(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return errorResult("query is required"), nil
	}
	prefs := preferences("", request.GetString("difficulty", ""))

	challenges, err := s.catalog.SearchChallenges(ctx, query, prefs)
	if err != nil {
		s.logger.Error("mcp: search challenges failed", "error", err)
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}
	if challenges == nil {
		challenges = []model.ScoredChallenge{}
	}
	return jsonResult(map[string]any{"challenges": challenges, "total": len(challenges)}), nil
}

func (s *Server) handleRecommend(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return errorResult("authentication required"), nil
	}
	userID := claims.UserID
	if raw := strings.TrimSpace(request.GetString("user_id", "")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return errorResult("user_id must be a UUID"), nil
		}
		userID = id
	}
	if !ctxutil.CanActFor(ctx, userID) {
		return errorResult("you can only see your own recommendations"), nil
	}

	recs, err := s.catalog.RecommendFromHistory(ctx, userID)
	if err != nil {
		s.logger.Error("mcp: recommend failed", "user_id", userID, "error", err)
		return errorResult(fmt.Sprintf("recommendation failed: %v", err)), nil
	}
	return jsonResult(recs), nil
}

func (s *Server) handleClassifyIntent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	message := request.GetString("message", "")
	res, err := s.assistant.Classify(ctx, message)
	if err != nil {
		if errors.Is(err, tortoise.ErrEmptyMessage) {
			return errorResult("message is required"), nil
		}
		return errorResult(fmt.Sprintf("classification failed: %v", err)), nil
	}
	return jsonResult(struct {
		intent.Result
		Keywords []string `json:"keywords"`
	}{res, nonNil(intent.ExtractKeywords(message))}), nil
}

func (s *Server) handleLearningPlan(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	in := tortoise.PlanInput{
		UserID:         ctxutil.UserIDFromContext(ctx),
		Goals:          request.GetString("goals", ""),
		CurrentLevel:   request.GetString("current_level", ""),
		TimeCommitment: request.GetString("time_commitment", ""),
	}
	plan, err := s.assistant.GeneratePlan(ctx, in)
	if err != nil {
		if errors.Is(err, tortoise.ErrEmptyGoals) {
			return errorResult("goals are required"), nil
		}
		s.logger.Error("mcp: learning plan failed", "error", err)
		return errorResult(fmt.Sprintf("plan generation failed: %v", err)), nil
	}
	return jsonResult(model.PlanResponse{Plan: plan}), nil
}

func preferences(language, difficulty string) model.Preferences {
	prefs := model.Preferences{LanguagePreference: strings.ToLower(strings.TrimSpace(language))}
	if d := strings.TrimSpace(difficulty); d != "" {
		prefs.Preferences = map[string]any{"difficulty_level": d}
	}
	return prefs
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
