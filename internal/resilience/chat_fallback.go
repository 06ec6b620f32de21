package resilience

import (
	"context"

	"github.com/MrWong99/dost/internal/chat"
	"github.com/MrWong99/dost/internal/observe"
)

// ChatFallback is a [chat.Responder] that fails over across several
// responders, for example the hosted workflow first and a direct LLM second.
type ChatFallback struct {
	group   *FallbackGroup[chat.Responder]
	metrics *observe.Metrics
}

var _ chat.Responder = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] preferring primary. A nil m uses
// the default metrics.
func NewChatFallback(primary chat.Responder, cfg FallbackConfig, m *observe.Metrics) *ChatFallback {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &ChatFallback{
		group:   NewFallbackGroup(primary, primary.Name(), cfg),
		metrics: m,
	}
}

// AddFallback registers another responder.
func (f *ChatFallback) AddFallback(r chat.Responder) {
	f.group.AddFallback(r.Name(), r)
}

// Name implements chat.Responder. It reports the primary's name.
func (f *ChatFallback) Name() string { return f.group.entries[0].name }

// Respond implements chat.Responder. A reply served by anything but the
// primary is counted as a fallback.
func (f *ChatFallback) Respond(ctx context.Context, message string) (string, error) {
	reply, served, err := ExecuteWithResult(ctx, f.group, func(r chat.Responder) (string, error) {
		return r.Respond(ctx, message)
	})
	if err != nil {
		return "", err
	}
	if served != f.Name() {
		f.metrics.RecordChatFallback(ctx, served)
	}
	return reply, nil
}
