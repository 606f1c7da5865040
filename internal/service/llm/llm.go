// Package llm talks to hosted large-language models for the Tortoise chat.
//
// Two backends are provided: OpenAI chat completions over plain HTTP and
// Google Gemini through the genai SDK. Both stream text deltas.
package llm

import (
	"context"
	"errors"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Client generates chat completions.
type Client interface {
	// Complete returns the full completion text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream calls onDelta with each text fragment as it arrives and returns
	// the concatenated text. An error from onDelta aborts the stream.
	Stream(ctx context.Context, req Request, onDelta func(string) error) (string, error)

	// Name identifies the backend in logs and metrics.
	Name() string
}

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }
