// Package intent classifies chat messages into the requests the Tortoise
// knows how to serve.
//
// Classification is keyword scoring first. When the keywords are not
// decisive and a completion model is configured, the model is asked instead.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/llm"
)

// Source records how a Result was produced.
type Source string

const (
	SourceKeyword  Source = "keyword"
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// Result is a classified intent with a confidence in [0, 1].
type Result struct {
	Intent     model.Intent `json:"intent"`
	Confidence float64      `json:"confidence"`
	Source     Source       `json:"source"`
}

// pattern is the keyword list for one intent. Multi-word keywords match as
// phrases.
type pattern struct {
	intent   model.Intent
	keywords []string
}

// patterns are scored in order. Ties keep the earlier intent.
var patterns = []pattern{
	{model.IntentBookRequest, []string{"book", "read", "reading", "recommend", "suggestion", "literature", "author", "novel"}},
	{model.IntentChallengeRequest, []string{"challenge", "practice", "exercise", "learn", "skill", "improve", "training", "bootcamp"}},
	{model.IntentPlanRequest, []string{"plan", "roadmap", "path", "journey", "guide", "how to", "steps", "strategy"}},
	{model.IntentMotivationRequest, []string{"motivation", "inspire", "encourage", "quote", "wisdom", "advice", "support"}},
	{model.IntentProgressInquiry, []string{"progress", "how am i doing", "my stats", "achievements", "completed", "status"}},
}

const (
	// DefaultThreshold is the keyword confidence above which the model is not consulted.
	DefaultThreshold = 0.8

	// fallbackConfidence is reported when the model could not be used.
	fallbackConfidence = 0.3

	// defaultLLMConfidence is assumed when the model omits a confidence.
	defaultLLMConfidence = 0.5
)

// ByKeywords scores message against every intent's keyword list. Each
// keyword that occurs as a substring of the lowercased message adds one
// point; confidence is points divided by the list length, capped at 1.
func ByKeywords(message string) Result {
	lower := strings.ToLower(message)
	best := Result{Intent: model.IntentGeneral, Confidence: 0, Source: SourceKeyword}
	for _, p := range patterns {
		score := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		conf := min(float64(score)/float64(len(p.keywords)), 1)
		if conf > best.Confidence {
			best = Result{Intent: p.intent, Confidence: conf, Source: SourceKeyword}
		}
	}
	return best
}

// Completer is the slice of llm.Client the classifier needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Classifier combines keyword scoring with an optional model fallback.
type Classifier struct {
	llm       Completer
	model     string
	threshold float64
	logger    *slog.Logger
}

// NewClassifier creates a Classifier. completer may be nil, in which case
// only keyword scoring is used.
func NewClassifier(completer Completer, modelName string, logger *slog.Logger) *Classifier {
	if modelName == "" {
		modelName = "gpt-3.5-turbo"
	}
	return &Classifier{
		llm:       completer,
		model:     modelName,
		threshold: DefaultThreshold,
		logger:    logger,
	}
}

// Classify returns the intent of message. It never fails: a model error or
// unreadable reply yields general with a low confidence.
func (c *Classifier) Classify(ctx context.Context, message string) Result {
	kw := ByKeywords(message)
	if kw.Confidence > c.threshold || c.llm == nil {
		return kw
	}

	res, err := c.classifyWithLLM(ctx, message)
	if err != nil {
		c.logger.Warn("intent: model classification failed", "error", err)
		return Result{Intent: model.IntentGeneral, Confidence: fallbackConfidence, Source: SourceFallback}
	}
	return res
}

const classifierPrompt = `You are an intent classifier for a learning platform. Classify the user's message into one of these categories:
- book_request: User wants book recommendations
- challenge_request: User wants challenge or practice recommendations
- plan_request: User wants a learning plan or roadmap
- motivation_request: User wants motivation or inspiration
- general: General conversation or other requests

Respond with only a JSON object: {"intent": "category", "confidence": 0.0-1.0}`

type llmVerdict struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
}

func (c *Classifier) classifyWithLLM(ctx context.Context, message string) (Result, error) {
	text, err := c.llm.Complete(ctx, llm.Request{
		Model:       c.model,
		Messages:    []llm.Message{llm.System(classifierPrompt), llm.User(message)},
		MaxTokens:   50,
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, err
	}
	return parseVerdict(text)
}

// parseVerdict decodes the model's JSON answer, tolerating code fences and
// surrounding prose.
func parseVerdict(text string) (Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("intent: no JSON object in model reply %q", text)
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Result{}, fmt.Errorf("intent: decode model reply: %w", err)
	}

	in, _ := model.KnownIntent(strings.TrimSpace(v.Intent))
	conf := defaultLLMConfidence
	if v.Confidence != nil {
		conf = min(max(*v.Confidence, 0), 1)
	}
	return Result{Intent: in, Confidence: conf, Source: SourceLLM}, nil
}
