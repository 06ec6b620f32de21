// Package llm defines the Provider interface for chat-completion backends.
//
// An LLM provider wraps a remote or local model API (Gemini, OpenAI,
// Anthropic, a local Ollama instance and so on) and exposes one uniform call
// so the text chat can fall back between backends without coupling to any
// SDK.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import (
	"context"
	"errors"
)

// Role is the author of a [Message].
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrEmptyResponse is returned when the backend answers with no choices.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrBlocked is returned when the backend withholds its reply on safety
	// grounds. Chat treats it like any other failure and moves on to the
	// next responder.
	ErrBlocked = errors.New("llm: reply blocked by provider safety filter")
)

// Message is a single turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// Usage holds token accounting reported by the backend. Zero when the
// backend does not report it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request carries everything the model needs to produce one reply.
type Request struct {
	// SystemPrompt is sent ahead of Messages using the backend's dedicated
	// system slot when it has one.
	SystemPrompt string

	// Messages is the ordered history; the last one is normally the user's.
	Messages []Message

	// Temperature in [0, 2]. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// Response is a completed reply.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name identifies the backend in logs and metrics, e.g. "openai".
	Name() string
}
