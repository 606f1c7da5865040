// Package mcp implements the Model Context Protocol server for the Tortoise.
//
// The MCP server exposes catalog search, recommendations, intent
// classification and learning plans as MCP tools, so MCP-compatible
// assistants can use the Tortoise the way the web client does.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/tortoise"
)

// Catalog is the search surface the tools need.
type Catalog interface {
	SearchBooks(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredBook, error)
	SearchChallenges(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredChallenge, error)
	RecommendFromHistory(ctx context.Context, userID uuid.UUID) (model.Recommendations, error)
}

// Assistant is the conversational surface the tools need.
type Assistant interface {
	Classify(ctx context.Context, message string) (intent.Result, error)
	GeneratePlan(ctx context.Context, in tortoise.PlanInput) (string, error)
	Insights(ctx context.Context, userID uuid.UUID) (model.LearningInsights, error)
}

// Store loads the records exposed as resources.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (model.Challenge, error)
}

// Server wraps the MCP server with the Tortoise's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     Store
	catalog   Catalog
	assistant Assistant
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools, resources and
// prompts registered.
func New(store Store, catalog Catalog, assistant Assistant, logger *slog.Logger, version string) *Server {
	s := &Server{
		store:     store,
		catalog:   catalog,
		assistant: assistant,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"tortoise",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const instructions = `The Tortoise is a learning companion for the LifelongLearners platform. Its motto: "` + tortoise.Motto + `"

Use tortoise_classify_intent to understand what a learner is asking for, then
tortoise_search_books or tortoise_search_challenges to find material, and
tortoise_learning_plan to turn goals into a phased plan. tortoise_recommend
suggests books and challenges from a learner's history.`

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
