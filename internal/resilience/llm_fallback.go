package resilience

import (
	"context"

	"github.com/MrWong99/dost/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across several LLM
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] preferring primary.
func NewLLMFallback(primary llm.Provider, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primary.Name(), cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(p llm.Provider) {
	f.group.AddFallback(p.Name(), p)
}

// Name implements llm.Provider. It reports the primary's name.
func (f *LLMFallback) Name() string { return f.group.entries[0].name }

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, _, err := ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.Response, error) {
		return p.Complete(ctx, req)
	})
	return resp, err
}
