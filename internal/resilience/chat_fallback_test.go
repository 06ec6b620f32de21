package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/dost/internal/observe"
)

type stubResponder struct {
	name  string
	reply string
	err   error
	calls []string
}

func (r *stubResponder) Name() string { return r.name }

func (r *stubResponder) Respond(_ context.Context, msg string) (string, error) {
	r.calls = append(r.calls, msg)
	return r.reply, r.err
}

func TestChatFallback_Respond(t *testing.T) {
	tests := []struct {
		name       string
		primaryErr error
		want       string
	}{
		{"primary serves", nil, "from workflow"},
		{"fallback serves", errTest, "from llm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &stubResponder{name: "workflow", reply: "from workflow", err: tt.primaryErr}
			backup := &stubResponder{name: "llm/openai", reply: "from llm"}

			fb := NewChatFallback(primary, FallbackConfig{}, observe.DefaultMetrics())
			fb.AddFallback(backup)

			got, err := fb.Respond(context.Background(), "I feel tired")
			if err != nil {
				t.Fatalf("Respond: %v", err)
			}
			if got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if len(primary.calls) != 1 || primary.calls[0] != "I feel tired" {
				t.Errorf("primary calls = %v", primary.calls)
			}
		})
	}
}

func TestChatFallback_AllFail(t *testing.T) {
	fb := NewChatFallback(&stubResponder{name: "workflow", err: errTest}, FallbackConfig{}, nil)
	fb.AddFallback(&stubResponder{name: "llm/gemini", err: errTest})

	if fb.Name() != "workflow" {
		t.Errorf("Name = %q", fb.Name())
	}
	if _, err := fb.Respond(context.Background(), "hi"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
