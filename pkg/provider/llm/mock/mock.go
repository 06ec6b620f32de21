// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.Response{Content: "Hello!"}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dost/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider. With Response unset,
// Complete returns an empty response.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Response is returned by Complete when Err is nil.
	Response *llm.Response

	// Err, if non-nil, is returned by Complete.
	Err error

	// Calls records every request passed to Complete.
	Calls []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// Complete records req and returns Response, Err.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Response == nil {
		return &llm.Response{}, nil
	}
	cp := *p.Response
	return &cp, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// CallCount returns how many times Complete was called.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// SetErr changes the error returned by Complete.
func (p *Provider) SetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err = err
}
