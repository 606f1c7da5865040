package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
)

const (
	profileURI         = "tortoise://profile/current"
	challengeURIPrefix = "tortoise://challenge/"
)

func (s *Server) registerResources() {
	// tortoise://profile/current: the caller's profile and learning insights.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			profileURI,
			"Current Learner",
			mcplib.WithResourceDescription("Profile, interests and learning insights of the authenticated learner"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleProfileCurrent,
	)

	// tortoise://challenge/{id}: a single challenge.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			challengeURIPrefix+"{id}",
			"Challenge",
			mcplib.WithTemplateDescription("A challenge by ID. Private challenges are visible to their creator only."),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleChallenge,
	)
}

type profileResource struct {
	User     model.User             `json:"user"`
	Insights model.LearningInsights `json:"insights"`
}

func (s *Server) handleProfileCurrent(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	id := ctxutil.UserIDFromContext(ctx)
	if id == nil {
		return nil, errors.New("mcp: profile: authentication required")
	}
	user, err := s.store.GetUser(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("mcp: profile: %w", err)
	}
	insights, err := s.assistant.Insights(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("mcp: profile insights: %w", err)
	}
	return jsonContents(profileURI, profileResource{User: user, Insights: insights})
}

func (s *Server) handleChallenge(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	id, err := parseChallengeURI(request.Params.URI)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: challenge %s: %w", id, err)
	}
	if c.Visibility == model.VisibilityPrivate && !ctxutil.CanActFor(ctx, c.CreatedBy) {
		return nil, fmt.Errorf("mcp: challenge %s: not found", id)
	}
	return jsonContents(request.Params.URI, c)
}

// parseChallengeURI extracts the challenge ID from tortoise://challenge/{id}.
func parseChallengeURI(uri string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(uri, challengeURIPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("mcp: invalid challenge URI %q", uri)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid challenge id %q: %w", raw, err)
	}
	return id, nil
}

func jsonContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
