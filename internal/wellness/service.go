// Package wellness implements Dost's single-shot AI operations: analysis of
// screening questionnaire scores, moderation of community messages,
// verification of specialist credentials and the nearby counselor search.
//
// Every operation degrades to a safe default when the model misbehaves, so
// user-facing flows keep working with a provider outage.
package wellness

import (
	"sync"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/pkg/provider/generate"
)

// Models names the model used by each operation. Empty fields fall back to
// the provider default.
type Models struct {
	Screening  string
	Moderation string
	Credential string
	Search     string
}

// DefaultModels mirrors the models Dost ships with.
var DefaultModels = Models{
	Screening:  "gemini-3-flash-preview",
	Moderation: "gemini-3-flash-preview",
	Credential: "gemini-3-flash-preview",
	Search:     "gemini-2.5-flash",
}

// Option configures a [Service].
type Option func(*Service)

// WithModels overrides the per-operation models.
func WithModels(m Models) Option {
	return func(s *Service) { s.models = m }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service runs wellness operations against a generation provider.
type Service struct {
	gen     generate.Provider
	metrics *observe.Metrics

	mu     sync.RWMutex
	models Models
}

// New creates a Service backed by gen.
func New(gen generate.Provider, opts ...Option) *Service {
	s := &Service{gen: gen, models: DefaultModels}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetModels swaps the per-operation models. Calls already in flight keep the
// models they started with.
func (s *Service) SetModels(m Models) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = m
}

// Models returns the models currently in use.
func (s *Service) Models() Models {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models
}
