package intent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/model"
	"github.com/lifelonglearners/tortoise/internal/service/intent"
	"github.com/lifelonglearners/tortoise/internal/service/llm"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeCompleter struct {
	reply string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	return f.reply, f.err
}

func TestByKeywords(t *testing.T) {
	tests := []struct {
		name    string
		message string
		intent  model.Intent
		conf    float64
	}{
		{"empty", "", model.IntentGeneral, 0},
		{"no match", "hello there", model.IntentGeneral, 0},
		{"book", "Can you recommend a good book?", model.IntentBookRequest, 2.0 / 8},
		// "reading" also contains "read", so both keywords score.
		{"substring counts twice", "I love reading", model.IntentBookRequest, 2.0 / 8},
		{"phrase keyword", "How to build a roadmap", model.IntentPlanRequest, 2.0 / 8},
		{"motivation", "I need motivation and some wisdom", model.IntentMotivationRequest, 2.0 / 7},
		{"progress", "How am I doing? show my stats", model.IntentProgressInquiry, 2.0 / 6},
		// book and challenge both score 1/8; the earlier pattern wins the tie.
		{"tie keeps first", "book challenge", model.IntentBookRequest, 1.0 / 8},
		{"case insensitive", "BOOTCAMP TRAINING", model.IntentChallengeRequest, 2.0 / 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := intent.ByKeywords(tt.message)
			assert.Equal(t, tt.intent, got.Intent)
			assert.InDelta(t, tt.conf, got.Confidence, 1e-9)
			assert.Equal(t, intent.SourceKeyword, got.Source)
		})
	}
}

func TestByKeywordsConfidenceCapped(t *testing.T) {
	got := intent.ByKeywords("book read reading recommend suggestion literature author novel")
	assert.Equal(t, model.IntentBookRequest, got.Intent)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestClassifySkipsModelWhenKeywordsDecisive(t *testing.T) {
	fc := &fakeCompleter{reply: `{"intent":"general","confidence":0.9}`}
	c := intent.NewClassifier(fc, "", discard)

	got := c.Classify(context.Background(), "book read reading recommend suggestion literature author")
	assert.Equal(t, model.IntentBookRequest, got.Intent)
	assert.Equal(t, 0, fc.calls)
}

func TestClassifyUsesModel(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"intent\": \"plan_request\", \"confidence\": 0.92}\n```"}
	c := intent.NewClassifier(fc, "gpt-3.5-turbo", discard)

	got := c.Classify(context.Background(), "where do I even begin with data science")
	assert.Equal(t, intent.Result{Intent: model.IntentPlanRequest, Confidence: 0.92, Source: intent.SourceLLM}, got)

	require.Equal(t, 1, fc.calls)
	assert.Equal(t, "gpt-3.5-turbo", fc.last.Model)
	assert.Equal(t, 50, fc.last.MaxTokens)
	assert.InDelta(t, 0.1, fc.last.Temperature, 1e-9)
	require.Len(t, fc.last.Messages, 2)
	assert.Equal(t, llm.RoleSystem, fc.last.Messages[0].Role)
	assert.Equal(t, "where do I even begin with data science", fc.last.Messages[1].Content)
}

func TestClassifyModelReplyNormalization(t *testing.T) {
	tests := []struct {
		reply  string
		intent model.Intent
		conf   float64
	}{
		{`{"intent":"book_request"}`, model.IntentBookRequest, 0.5},
		{`{"intent":"weather","confidence":0.8}`, model.IntentGeneral, 0.8},
		{`{"intent":"motivation_request","confidence":7}`, model.IntentMotivationRequest, 1},
		{`Sure! {"intent":"general","confidence":0}`, model.IntentGeneral, 0},
		{`{"intent":"plan_request","confidence":-0.4}`, model.IntentPlanRequest, 0},
	}
	for _, tt := range tests {
		c := intent.NewClassifier(&fakeCompleter{reply: tt.reply}, "", discard)
		got := c.Classify(context.Background(), "hmm")
		assert.Equal(t, tt.intent, got.Intent, tt.reply)
		assert.InDelta(t, tt.conf, got.Confidence, 1e-9, tt.reply)
	}
}

func TestClassifyFallsBackOnModelFailure(t *testing.T) {
	t.Run("weak keyword match is discarded", func(t *testing.T) {
		c := intent.NewClassifier(&fakeCompleter{err: errors.New("timeout")}, "", discard)
		got := c.Classify(context.Background(), "can you recommend a book")
		assert.Equal(t, intent.Result{Intent: model.IntentGeneral, Confidence: 0.3, Source: intent.SourceFallback}, got)
	})

	t.Run("general when nothing matched", func(t *testing.T) {
		c := intent.NewClassifier(&fakeCompleter{err: errors.New("timeout")}, "", discard)
		got := c.Classify(context.Background(), "hello")
		assert.Equal(t, intent.Result{Intent: model.IntentGeneral, Confidence: 0.3, Source: intent.SourceFallback}, got)
	})

	t.Run("unparseable reply", func(t *testing.T) {
		c := intent.NewClassifier(&fakeCompleter{reply: "I think it's a book request"}, "", discard)
		got := c.Classify(context.Background(), "hello")
		assert.Equal(t, intent.SourceFallback, got.Source)
		assert.Equal(t, model.IntentGeneral, got.Intent)
	})
}

func TestClassifyWithoutModel(t *testing.T) {
	c := intent.NewClassifier(nil, "", discard)
	got := c.Classify(context.Background(), "any challenge to practice?")
	assert.Equal(t, model.IntentChallengeRequest, got.Intent)
	assert.Equal(t, intent.SourceKeyword, got.Source)
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		message string
		want    []string
	}{
		{"", nil},
		{"Can you recommend a good book about Python programming?", []string{"recommend", "book", "about", "python", "programming"}},
		{"I want to learn Go, Go, and more Go!!!", []string{"learn", "more"}},
		{"the and for are but", nil},
		{"snake_case words_stay", []string{"snake_case", "words_stay"}},
		{"ሰላም ለመማር እፈልጋለሁ", []string{"ሰላም", "ለመማር", "እፈልጋለሁ"}},
		{"AI ML and data-science", []string{"datascience"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, intent.ExtractKeywords(tt.message), tt.message)
	}
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "python books beginners", intent.Query("Python books for beginners"))
	assert.Equal(t, "", intent.Query("hi"))
}
