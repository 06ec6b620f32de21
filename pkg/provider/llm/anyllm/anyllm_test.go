package anyllm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dost/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage(t *testing.T) {
	for _, role := range []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got := convertMessage(llm.Message{Role: role, Content: "hello"})
		if got.Role != string(role) {
			t.Errorf("role = %q, want %q", got.Role, role)
		}
		if got.ContentString() != "hello" {
			t.Errorf("content = %q, want hello", got.ContentString())
		}
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "claude-sonnet-4-5"}
	params := p.buildParams(llm.Request{
		SystemPrompt: "Be kind.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Temperature:  0.4,
		MaxTokens:    256,
	})

	if params.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("Messages = %+v, want system first", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}

	bare := p.buildParams(llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if bare.Temperature != nil || bare.MaxTokens != nil || len(bare.Messages) != 1 {
		t.Errorf("zero-value fields must be left unset: %+v", bare)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name string
		opts []anyllmlib.Option
	}{
		{"openai", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", nil},
		{"llamacpp", nil},
		{"llamafile", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name, "some-model", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if want := "anyllm/" + strings.ToLower(tt.name); p.Name() != want {
				t.Errorf("Name = %q, want %q", p.Name(), want)
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// ── Complete ─────────────────────────────────────────────────────────────────

func TestComplete_OpenAICompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "Dost Neural Processor") {
			t.Errorf("request body missing system prompt: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama3",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Breathe with me."}}],
			"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`)
	}))
	defer srv.Close()

	p, err := New("openai", "llama3", anyllmlib.WithAPIKey("sk-test"), anyllmlib.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.Request{
		SystemPrompt: "You are the 'Dost Neural Processor'.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "I can't focus"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Breathe with me." {
		t.Errorf("Content = %q", resp.Content)
	}
}
