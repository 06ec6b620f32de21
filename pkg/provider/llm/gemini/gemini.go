// Package gemini provides an LLM provider backed by the Google Gen AI SDK,
// used as the chat fallback when the workflow endpoint is unavailable.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/dost/pkg/provider/llm"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gemini-3-pro-preview"

// Option configures a [Provider].
type Option func(*Provider)

// WithBaseURL overrides the API endpoint. Used by tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements llm.Provider with genai.
type Provider struct {
	client  *genai.Client
	model   string
	baseURL string
}

var _ llm.Provider = (*Provider)(nil)

// New constructs a Provider for model; an empty model selects DefaultModel.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	p := &Provider{model: model}
	for _, o := range opts {
		o(p)
	}

	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "gemini" }

// Complete implements llm.Provider. An empty text answer is returned as is;
// callers decide on the placeholder.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, toContents(req.Messages), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	if blocked(resp) {
		return nil, fmt.Errorf("gemini: %w", llm.ErrBlocked)
	}

	out := &llm.Response{Content: resp.Text()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// blocked reports whether the prompt or the first candidate was stopped by
// a safety filter.
func blocked(resp *genai.GenerateContentResponse) bool {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return true
	}
	if len(resp.Candidates) == 0 {
		return false
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return true
	}
	return false
}

// toContents maps history onto genai roles. System messages inside the
// history are sent as user turns since genai only has one system slot.
func toContents(msgs []llm.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}
