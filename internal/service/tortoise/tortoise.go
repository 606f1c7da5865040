// Package tortoise is the chat pipeline behind the Tortoise learning companion.
//
// A message is classified, matched against the catalog, framed into prompts
// and answered by a language model (or by templates when none is configured).
// Each exchange is logged and its keywords feed the learner's interests.
// The HTTP API, the websocket chat and the MCP server all delegate here.
package tortoise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/llm"
	"github.com/lifelonglearners/tortoise/internal/storage"
	"github.com/lifelonglearners/tortoise/internal/telemetry"
)

// Sentinel errors for caller mistakes.
var (
	ErrEmptyMessage  = errors.New("tortoise: message is required")
	ErrEmptyGoals    = errors.New("tortoise: goals are required")
	ErrInvalidRating = errors.New("tortoise: rating must be between 1 and 5")
)

// Chat generation settings.
const (
	chatMaxTokens   = 1000
	planMaxTokens   = 800
	chatTemperature = 0.7

	DefaultLevel      = "beginner"
	DefaultCommitment = "30 minutes daily"

	// OfflineSource names the template responder in logs and context_used.
	OfflineSource = "offline"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	MergeLearningInterests(ctx context.Context, id uuid.UUID, keywords []string, limit int) ([]string, error)
	InsertConversation(ctx context.Context, c model.Conversation) error
	UpdateConversationFeedback(ctx context.Context, id uuid.UUID, rating int, feedback *string) error
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]model.Conversation, error)
	InsertInteraction(ctx context.Context, in model.Interaction) (model.Interaction, error)
	ListJoinedChallenges(ctx context.Context, userID uuid.UUID, limit int) ([]model.JoinedChallenge, error)
}

// Catalog finds books and challenges for a message.
type Catalog interface {
	SearchBooks(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredBook, error)
	SearchChallenges(ctx context.Context, query string, prefs model.Preferences) ([]model.ScoredChallenge, error)
	RecommendFromHistory(ctx context.Context, userID uuid.UUID) (model.Recommendations, error)
}

// Classifier decides what a message is asking for.
type Classifier interface {
	Classify(ctx context.Context, message string) intent.Result
}

// Config wires a Service.
type Config struct {
	Store      Store
	Catalog    Catalog
	Classifier Classifier
	LLM        llm.Client // nil answers from templates
	ChatModel  string
	Logger     *slog.Logger
	Offline    *Offline // nil uses NewOffline
}

// Service runs the Tortoise chat pipeline.
type Service struct {
	store      Store
	catalog    Catalog
	classifier Classifier
	llm        llm.Client
	chatModel  string
	offline    *Offline
	logger     *slog.Logger
	now        func() time.Time

	intentCounter metric.Int64Counter
	askDuration   metric.Float64Histogram
	llmErrors     metric.Int64Counter
}

// New creates a Service.
func New(cfg Config) *Service {
	meter := telemetry.Meter("tortoise/chat")
	intents, _ := meter.Int64Counter("tortoise.intent.classified",
		metric.WithDescription("Messages classified, by intent and source"),
	)
	askDur, _ := meter.Float64Histogram("tortoise.ask.duration",
		metric.WithDescription("End-to-end time to answer a chat message (ms)"),
		metric.WithUnit("ms"),
	)
	llmErrs, _ := meter.Int64Counter("tortoise.llm.errors",
		metric.WithDescription("Language model calls that failed"),
	)
	offline := cfg.Offline
	if offline == nil {
		offline = NewOffline()
	}
	return &Service{
		store:         cfg.Store,
		catalog:       cfg.Catalog,
		classifier:    cfg.Classifier,
		llm:           cfg.LLM,
		chatModel:     cfg.ChatModel,
		offline:       offline,
		logger:        cfg.Logger,
		now:           time.Now,
		intentCounter: intents,
		askDuration:   askDur,
		llmErrors:     llmErrs,
	}
}

// Backend names the answering backend: the LLM client or the offline templates.
func (s *Service) Backend() string {
	if s.llm == nil {
		return OfflineSource
	}
	return s.llm.Name()
}

// AskInput is one chat message.
type AskInput struct {
	ConversationID uuid.UUID  // uuid.Nil assigns a fresh id
	UserID         *uuid.UUID // nil for anonymous visitors
	Message        string
	ClientContext  map[string]any

	// OnIntent, when set, is called once the message is classified and before
	// the first delta is emitted.
	OnIntent func(intent.Result)
}

// AskResult describes an answered message.
type AskResult struct {
	ConversationID uuid.UUID
	Intent         intent.Result
	Response       string
	Backend        string
	Found          Found
}

// Ask answers a message, streaming the reply through emit. An error before
// the first emit means nothing was sent. After the first emit, a failure ends
// the stream early; the partial reply is still logged and returned with the error.
func (s *Service) Ask(ctx context.Context, in AskInput, emit func(string) error) (AskResult, error) {
	start := s.now()
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return AskResult{}, ErrEmptyMessage
	}
	res := AskResult{ConversationID: in.ConversationID}
	if res.ConversationID == uuid.Nil {
		res.ConversationID = uuid.New()
	}

	res.Intent = s.classifier.Classify(ctx, message)
	s.intentCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", string(res.Intent.Intent)),
		attribute.String("source", string(res.Intent.Source)),
	))
	if in.OnIntent != nil {
		in.OnIntent(res.Intent)
	}

	user, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return AskResult{}, err
	}
	prefs := model.PreferencesOf(user)

	keywords := intent.ExtractKeywords(message)
	res.Found = s.find(ctx, res.Intent.Intent, strings.Join(keywords, " "), prefs)
	if res.Found.Empty() && in.UserID != nil {
		recs, err := s.catalog.RecommendFromHistory(ctx, *in.UserID)
		if err != nil {
			s.logger.Warn("tortoise: history recommendations failed", "user_id", *in.UserID, "error", err)
		} else {
			res.Found = Found{Books: recs.Books, Challenges: recs.Challenges}
		}
	}

	pc := PromptContext{Message: message, Intent: res.Intent.Intent, Preferences: prefs, Found: res.Found}
	offline := func() string {
		return s.offline.Respond(OfflineInput{
			Intent:    res.Intent.Intent,
			Name:      user.Name,
			Role:      user.Role,
			Interests: prefs.LearningInterests,
			Found:     res.Found,
			Joined:    s.joinedCount(ctx, in.UserID),
		})
	}
	var answerErr error
	res.Response, res.Backend, answerErr = s.answer(ctx, pc, offline, emit)

	elapsed := s.now().Sub(start)
	s.askDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("intent", string(res.Intent.Intent)),
		attribute.String("backend", res.Backend),
	))

	// The reply has been delivered; bookkeeping must not be cut short by the
	// client going away.
	bg := context.WithoutCancel(ctx)
	if res.Response != "" {
		s.logConversation(bg, res, in, message, prefs, elapsed)
	}
	if in.UserID != nil && len(keywords) > 0 {
		s.learnInterests(bg, *in.UserID, res, keywords)
	}
	return res, answerErr
}

// loadUser returns the profile for id. A missing profile is treated as an
// anonymous visitor.
func (s *Service) loadUser(ctx context.Context, id *uuid.UUID) (model.User, error) {
	if id == nil {
		return model.User{}, nil
	}
	u, err := s.store.GetUser(ctx, *id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.User{}, nil
	}
	if err != nil {
		return model.User{}, fmt.Errorf("tortoise: load preferences: %w", err)
	}
	return u, nil
}

// find searches books and challenges concurrently, as the intent warrants.
// Search failures are logged and leave that list empty.
func (s *Service) find(ctx context.Context, in model.Intent, query string, prefs model.Preferences) Found {
	var found Found
	g, gctx := errgroup.WithContext(ctx)
	if in == model.IntentBookRequest || in == model.IntentGeneral {
		g.Go(func() error {
			scored, err := s.catalog.SearchBooks(gctx, query, prefs)
			if err != nil {
				s.logger.Warn("tortoise: book search failed", "error", err)
				return nil
			}
			for _, b := range scored {
				found.Books = append(found.Books, b.Book)
			}
			return nil
		})
	}
	if in == model.IntentChallengeRequest || in == model.IntentGeneral {
		g.Go(func() error {
			scored, err := s.catalog.SearchChallenges(gctx, query, prefs)
			if err != nil {
				s.logger.Warn("tortoise: challenge search failed", "error", err)
				return nil
			}
			for _, c := range scored {
				found.Challenges = append(found.Challenges, c.Challenge)
			}
			return nil
		})
	}
	_ = g.Wait()
	return found
}

// answer streams the model's reply. Without a model, or when the model fails
// before producing any text, the offline template is emitted instead.
func (s *Service) answer(ctx context.Context, pc PromptContext, offline func() string, emit func(string) error) (string, string, error) {
	if s.llm != nil {
		var (
			sent    bool
			emitErr error
		)
		text, err := s.llm.Stream(ctx, llm.Request{
			Model:       s.chatModel,
			Messages:    []llm.Message{llm.System(SystemPrompt(pc)), llm.User(UserPrompt(pc))},
			MaxTokens:   chatMaxTokens,
			Temperature: chatTemperature,
		}, func(delta string) error {
			sent = true
			if err := emit(delta); err != nil {
				emitErr = err
				return err
			}
			return nil
		})
		switch {
		case err == nil:
			return text, s.llm.Name(), nil
		case emitErr != nil:
			return text, s.llm.Name(), fmt.Errorf("tortoise: deliver reply: %w", emitErr)
		}

		s.llmErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", s.llm.Name())))
		if sent {
			s.logger.Error("tortoise: reply interrupted", "backend", s.llm.Name(), "error", err)
			return text, s.llm.Name(), fmt.Errorf("tortoise: reply interrupted: %w", err)
		}
		if ctx.Err() != nil {
			return "", s.llm.Name(), ctx.Err()
		}
		s.logger.Warn("tortoise: model unavailable, answering offline", "backend", s.llm.Name(), "error", err)
	}

	text := offline()
	if err := emit(text); err != nil {
		return text, OfflineSource, fmt.Errorf("tortoise: deliver reply: %w", err)
	}
	return text, OfflineSource, nil
}

func (s *Service) joinedCount(ctx context.Context, userID *uuid.UUID) int {
	if userID == nil {
		return 0
	}
	joined, err := s.store.ListJoinedChallenges(ctx, *userID, 0)
	if err != nil {
		s.logger.Warn("tortoise: load joined challenges failed", "user_id", *userID, "error", err)
		return 0
	}
	return len(joined)
}

func (s *Service) logConversation(ctx context.Context, res AskResult, in AskInput, message string, prefs model.Preferences, elapsed time.Duration) {
	used := map[string]any{
		"intent":            res.Intent.Intent,
		"intent_confidence": res.Intent.Confidence,
		"intent_source":     res.Intent.Source,
		"user_preferences":  prefs,
		"user_interests":    nonNil(prefs.LearningInterests),
		"search_results":    res.Found,
		"backend":           res.Backend,
	}
	if len(in.ClientContext) > 0 {
		used["client_context"] = in.ClientContext
	}
	detected := res.Intent.Intent
	ms := int(elapsed.Milliseconds())
	if err := s.store.InsertConversation(ctx, model.Conversation{
		ID:                   res.ConversationID,
		UserID:               in.UserID,
		Message:              message,
		Intent:               &detected,
		AIResponse:           &res.Response,
		RecommendationsGiven: res.Found.Recommendations(),
		ContextUsed:          used,
		ResponseTimeMS:       &ms,
	}); err != nil {
		s.logger.Error("tortoise: log conversation failed", "conversation_id", res.ConversationID, "error", err)
	}
}

// learnInterests folds the message keywords into the learner's interests and
// records the chat as an interaction.
func (s *Service) learnInterests(ctx context.Context, userID uuid.UUID, res AskResult, keywords []string) {
	if _, err := s.store.MergeLearningInterests(ctx, userID, keywords, model.MaxLearningInterests); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("tortoise: update interests failed", "user_id", userID, "error", err)
		}
		return
	}
	entityID := res.ConversationID.String()
	if _, err := s.store.InsertInteraction(ctx, model.Interaction{
		UserID:          userID,
		InteractionType: "ai_chat",
		EntityType:      "conversation",
		EntityID:        &entityID,
		Metadata: map[string]any{
			"intent":   res.Intent.Intent,
			"keywords": keywords,
			"tags":     keywords,
		},
	}); err != nil {
		s.logger.Warn("tortoise: record interaction failed", "user_id", userID, "error", err)
	}
}

// Classify reports the intent of message without answering it.
func (s *Service) Classify(ctx context.Context, message string) (intent.Result, error) {
	if strings.TrimSpace(message) == "" {
		return intent.Result{}, ErrEmptyMessage
	}
	res := s.classifier.Classify(ctx, message)
	s.intentCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", string(res.Intent)),
		attribute.String("source", string(res.Source)),
	))
	return res, nil
}

// SubmitFeedback stores a learner's rating of a logged conversation.
func (s *Service) SubmitFeedback(ctx context.Context, conversationID uuid.UUID, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	var fb *string
	if f := strings.TrimSpace(feedback); f != "" {
		fb = &f
	}
	if err := s.store.UpdateConversationFeedback(ctx, conversationID, rating, fb); err != nil {
		return fmt.Errorf("tortoise: submit feedback: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
