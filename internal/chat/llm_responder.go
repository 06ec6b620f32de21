package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/dost/pkg/provider/llm"
)

// Persona and placeholder of the LLM responder.
const (
	NeuralProcessorPrompt = "You are the 'Dost Neural Processor', the core consciousness of a spatial mental hygiene sanctuary. Futuristic, empathetic, clinically precise."
	FlickerText           = "Neural link flickering. Please standby."
)

// LLMResponder answers with a chat-completion model.
type LLMResponder struct {
	provider     llm.Provider
	systemPrompt string
}

var _ Responder = (*LLMResponder)(nil)

// NewLLMResponder creates a responder using p with the Dost persona. A
// non-empty systemPrompt replaces the persona.
func NewLLMResponder(p llm.Provider, systemPrompt string) *LLMResponder {
	if systemPrompt == "" {
		systemPrompt = NeuralProcessorPrompt
	}
	return &LLMResponder{provider: p, systemPrompt: systemPrompt}
}

// Name implements Responder.
func (r *LLMResponder) Name() string { return "llm/" + r.provider.Name() }

// Respond implements Responder. An empty completion yields [FlickerText].
func (r *LLMResponder) Respond(ctx context.Context, message string) (string, error) {
	resp, err := r.provider.Complete(ctx, llm.Request{
		SystemPrompt: r.systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: message}},
	})
	if err != nil {
		return "", fmt.Errorf("chat: llm respond: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return FlickerText, nil
	}
	return resp.Content, nil
}
