package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini generates completions with Google's Gemini models.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client. model is used when a Request names no
// model or names an OpenAI model (the configured chat models default to
// OpenAI names).
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Name implements Client.
func (g *Gemini) Name() string { return "gemini" }

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	contents, cfg := toGenAI(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.modelFor(req), contents, cfg)
	if err != nil {
		return "", fmt.Errorf("llm: gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// Stream implements Client.
func (g *Gemini) Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error) {
	contents, cfg := toGenAI(req)
	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.modelFor(req), contents, cfg) {
		if err != nil {
			return full.String(), fmt.Errorf("llm: gemini stream: %w", err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	if full.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return full.String(), nil
}

func (g *Gemini) modelFor(req Request) string {
	if req.Model == "" || strings.HasPrefix(req.Model, "gpt-") {
		return g.model
	}
	return req.Model
}

// toGenAI maps chat messages onto Gemini contents. System messages become the
// system instruction; assistant turns become model turns.
func toGenAI(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens) //nolint:gosec // token limits are small constants
	}
	temp := float32(req.Temperature)
	cfg.Temperature = &temp

	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, cfg
}
