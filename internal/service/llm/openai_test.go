package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)
		assert.Equal(t, 50, req.MaxTokens)
		assert.InDelta(t, 0.1, req.Temperature, 1e-9)
		assert.False(t, req.Stream)
		assert.Len(t, req.Messages, 2)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"intent\":\"general\"}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", srv.URL)
	got, err := c.Complete(context.Background(), Request{
		Model:       "gpt-3.5-turbo",
		Messages:    []Message{System("classify"), User("hi")},
		MaxTokens:   50,
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"general"}`, got)
	assert.Equal(t, "openai", c.Name())
}

func TestOpenAICompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL).Complete(context.Background(), Request{Model: "gpt-4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}

func TestOpenAICompleteEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL).Complete(context.Background(), Request{Model: "gpt-4"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "%s\n\n", e)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStream(t *testing.T) {
	srv := sseServer(t,
		`: keep-alive comment`,
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"delta":{"content":"Slow "}}]}`,
		`data: {"choices":[{"delta":{"content":"and steady."}}]}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	)

	var deltas []string
	full, err := NewOpenAI("k", srv.URL).Stream(context.Background(), Request{Model: "gpt-4"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Slow ", "and steady."}, deltas)
	assert.Equal(t, "Slow and steady.", full)
}

func TestOpenAIStreamCallbackAborts(t *testing.T) {
	srv := sseServer(t,
		`data: {"choices":[{"delta":{"content":"one"}}]}`,
		`data: {"choices":[{"delta":{"content":"two"}}]}`,
		`data: [DONE]`,
	)

	stop := errors.New("client went away")
	full, err := NewOpenAI("k", srv.URL).Stream(context.Background(), Request{}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "one", full)
}

func TestOpenAIStreamErrorEvent(t *testing.T) {
	srv := sseServer(t, `data: {"error":{"message":"overloaded","type":"server_error"}}`)
	_, err := NewOpenAI("k", srv.URL).Stream(context.Background(), Request{}, func(string) error { return nil })
	assert.ErrorContains(t, err, "overloaded")
}

func TestOpenAIStreamEmpty(t *testing.T) {
	srv := sseServer(t, `data: [DONE]`)
	_, err := NewOpenAI("k", srv.URL).Stream(context.Background(), Request{}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestToGenAI(t *testing.T) {
	contents, cfg := toGenAI(Request{
		Messages: []Message{
			System("be wise"),
			User("hello"),
			{Role: RoleAssistant, Content: "hi"},
			User("recommend a book"),
		},
		MaxTokens:   800,
		Temperature: 0.7,
	})

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "recommend a book", contents[2].Parts[0].Text)

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be wise", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(800), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
}

func TestGeminiModelFor(t *testing.T) {
	g := &Gemini{model: "gemini-2.0-flash"}
	assert.Equal(t, "gemini-2.0-flash", g.modelFor(Request{Model: "gpt-4"}))
	assert.Equal(t, "gemini-2.0-flash", g.modelFor(Request{}))
	assert.Equal(t, "gemini-1.5-pro", g.modelFor(Request{Model: "gemini-1.5-pro"}))
}
