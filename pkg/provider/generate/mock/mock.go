// Package mock provides a test double for [generate.Provider].
//
// Responses are served from a queue; once the queue is exhausted the last
// entry is repeated. Every request is recorded for assertions.
//
//	p := &mock.Provider{}
//	p.Reply(`{"safe":false,"reason":"self-harm"}`)
//	res, _ := wellness.New(p).Moderate(ctx, "...")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/dost/pkg/provider/generate"
)

// Result is one queued outcome of Generate.
type Result struct {
	Response *generate.Response
	Err      error
}

// Provider is a mock implementation of generate.Provider.
type Provider struct {
	mu       sync.Mutex
	results  []Result
	requests []generate.Request
}

var _ generate.Provider = (*Provider)(nil)

// Reply queues a successful response with the given text.
func (p *Provider) Reply(text string, sources ...generate.Source) *Provider {
	return p.Queue(Result{Response: &generate.Response{Text: text, Sources: sources}})
}

// Fail queues an error.
func (p *Provider) Fail(err error) *Provider {
	return p.Queue(Result{Err: err})
}

// Queue appends r to the outcome queue.
func (p *Provider) Queue(r Result) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
	return p
}

// Generate records req and returns the next queued outcome. With nothing
// queued it returns an empty response.
func (p *Provider) Generate(ctx context.Context, req generate.Request) (*generate.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	if len(p.results) == 0 {
		return &generate.Response{}, nil
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	cp := *r.Response
	return &cp, nil
}

// Requests returns a copy of every request received.
func (p *Provider) Requests() []generate.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]generate.Request(nil), p.requests...)
}

// LastRequest returns the most recent request, or the zero value.
func (p *Provider) LastRequest() generate.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return generate.Request{}
	}
	return p.requests[len(p.requests)-1]
}
