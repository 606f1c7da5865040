package embedding

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// GeminiProvider generates embeddings with Google's embedding models.
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiProvider creates a Gemini embedding provider. Output is truncated
// to dimensions server-side.
func NewGeminiProvider(ctx context.Context, apiKey, model string, dimensions int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: gemini api key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dimensions: dimensions}, nil
}

// Dimensions returns the configured vector size.
func (p *GeminiProvider) Dimensions() int {
	return p.dimensions
}

// Embed generates a single embedding.
func (p *GeminiProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request.
func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dims := int32(p.dimensions) //nolint:gosec // validated positive at config load
	result, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: gemini returned %d vectors for %d inputs", len(result.Embeddings), len(texts))
	}
	vecs := make([]pgvector.Vector, len(texts))
	for i, e := range result.Embeddings {
		if len(e.Values) != p.dimensions {
			return nil, fmt.Errorf("embedding: got %d dimensions, want %d", len(e.Values), p.dimensions)
		}
		vecs[i] = pgvector.NewVector(e.Values)
	}
	return vecs, nil
}
