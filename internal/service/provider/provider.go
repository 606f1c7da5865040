// Package provider picks the language model and embedding backends from
// configuration. Both binaries share it so the server and tortoisectl embed
// the catalog the same way.
package provider

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lifelonglearners/tortoise/internal/config"
	"github.com/lifelonglearners/tortoise/internal/service/embedding"
	"github.com/lifelonglearners/tortoise/internal/service/llm"
)

// LLM returns the chat backend, or nil when Tortoise should answer offline.
// "auto" prefers OpenAI, then Gemini.
func LLM(ctx context.Context, cfg config.Config, logger *slog.Logger) llm.Client {
	openai := func(how string) llm.Client {
		logger.Info("llm: openai"+how, "chat_model", cfg.ChatModel, "classifier_model", cfg.ClassifierModel)
		return llm.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	}
	gemini := func(how string) llm.Client {
		c, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("llm: gemini init failed, answering offline", "error", err)
			return nil
		}
		logger.Info("llm: gemini"+how, "model", cfg.GeminiModel)
		return c
	}

	switch cfg.LLMProvider {
	case "openai":
		return openai("")
	case "gemini":
		return gemini("")
	case "offline":
		logger.Info("llm: offline (template answers)")
		return nil
	default:
		if cfg.OpenAIAPIKey != "" {
			return openai(" (auto-detected)")
		}
		if cfg.GeminiAPIKey != "" {
			return gemini(" (auto-detected)")
		}
		logger.Warn("llm: no API key configured, answering offline")
		return nil
	}
}

// Embedding returns the embedding backend. "auto" prefers a reachable
// Ollama, then OpenAI, then Gemini, else noop.
func Embedding(ctx context.Context, cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	openai := func(how string) embedding.Provider {
		logger.Info("embedding provider: openai"+how, "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, dims)
	}
	ollama := func(how string) embedding.Provider {
		logger.Info("embedding provider: ollama"+how, "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
	}
	gemini := func(how string) embedding.Provider {
		model := ""
		if strings.HasPrefix(cfg.EmbeddingModel, "gemini") || strings.HasPrefix(cfg.EmbeddingModel, "text-embedding-0") {
			model = cfg.EmbeddingModel
		}
		p, err := embedding.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model, dims)
		if err != nil {
			logger.Error("gemini embedding init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: gemini"+how, "dimensions", dims)
		return p
	}

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when TORTOISE_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		return openai("")
	case "gemini":
		return gemini("")
	case "ollama":
		return ollama("")
	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	default:
		if ollamaReachable(ctx, cfg.OllamaURL) {
			return ollama(" (auto-detected)")
		}
		if cfg.OpenAIAPIKey != "" {
			return openai(" (auto-detected)")
		}
		if cfg.GeminiAPIKey != "" {
			return gemini(" (auto-detected)")
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

func ollamaReachable(ctx context.Context, baseURL string) bool {
	if baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
