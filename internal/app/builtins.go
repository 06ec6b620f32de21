package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/dost/internal/config"
	"github.com/MrWong99/dost/pkg/kv"
	kvpostgres "github.com/MrWong99/dost/pkg/kv/postgres"
	kvredis "github.com/MrWong99/dost/pkg/kv/redis"
	kvsqlite "github.com/MrWong99/dost/pkg/kv/sqlite"
	"github.com/MrWong99/dost/pkg/provider/generate"
	gengemini "github.com/MrWong99/dost/pkg/provider/generate/gemini"
	"github.com/MrWong99/dost/pkg/provider/live"
	livegemini "github.com/MrWong99/dost/pkg/provider/live/gemini"
	liveopenai "github.com/MrWong99/dost/pkg/provider/live/openai"
	"github.com/MrWong99/dost/pkg/provider/llm"
	"github.com/MrWong99/dost/pkg/provider/llm/anyllm"
	llmgemini "github.com/MrWong99/dost/pkg/provider/llm/gemini"
	llmopenai "github.com/MrWong99/dost/pkg/provider/llm/openai"
)

// RegisterBuiltins wires every provider and store that ships with Dost into
// reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})
	reg.RegisterLive("openai-realtime", func(entry config.ProviderEntry) (live.Provider, error) {
		if entry.APIKey == "" {
			return nil, fmt.Errorf("app: openai-realtime: api_key is required")
		}
		var opts []liveopenai.Option
		if entry.Model != "" {
			opts = append(opts, liveopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, liveopenai.WithBaseURL(entry.BaseURL))
		}
		return liveopenai.New(entry.APIKey, opts...), nil
	})

	// ── Generate ──────────────────────────────────────────────────────────────
	reg.RegisterGenerate("gemini", func(entry config.ProviderEntry) (generate.Provider, error) {
		var opts []gengemini.Option
		if entry.Model != "" {
			opts = append(opts, gengemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gengemini.WithBaseURL(entry.BaseURL))
		}
		return gengemini.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// gemini and openai use their native SDKs; every other backend goes
	// through any-llm-go.
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmgemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmgemini.WithBaseURL(entry.BaseURL))
		}
		return llmgemini.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		if d, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, llmopenai.WithTimeout(d))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, name := range anyllm.Backends {
		if name == "gemini" || name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL only.
			if entry.APIKey != "" && name != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Stores ────────────────────────────────────────────────────────────────
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (kv.Store, error) {
		return kv.NewMemory(), nil
	})
	reg.RegisterStore(config.StoreSQLite, func(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
		return kvsqlite.Open(ctx, cfg.DSN)
	})
	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
		return kvpostgres.Open(ctx, cfg.DSN)
	})
	reg.RegisterStore(config.StoreRedis, func(ctx context.Context, cfg config.StoreConfig) (kv.Store, error) {
		return kvredis.Open(ctx, cfg.DSN)
	})

	for kind, names := range config.ValidProviderNames {
		slog.Debug("registered providers", "kind", kind, "names", slices.Clone(names))
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a Go duration string from a provider Options map.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("app: option %q: %w", key, err)
	}
	return d, nil
}
