package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// GeminiAPIKeyEnv fills empty API keys of every Gemini-backed provider.
const GeminiAPIKeyEnv = "DOST_GEMINI_API_KEY"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":     {"gemini-live", "openai-realtime"},
	"generate": {"gemini"},
	"llm":      {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// geminiProviders are the provider names that authenticate with a Gemini
// API key.
var geminiProviders = []string{"gemini", "gemini-live"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv copies the Gemini API key from the environment into every
// Gemini-backed provider entry that has none.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	key, ok := lookup(GeminiAPIKeyEnv)
	if !ok || key == "" {
		return
	}
	fill := func(e *ProviderEntry) {
		if e.APIKey == "" && slices.Contains(geminiProviders, e.Name) {
			e.APIKey = key
		}
	}
	fill(&cfg.Providers.Live)
	fill(&cfg.Providers.Generate)
	fill(&cfg.Providers.LLM)
	for i := range cfg.Providers.LLMFallbacks {
		fill(&cfg.Providers.LLMFallbacks[i])
	}
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit.burst %d must not be negative", cfg.Server.RateLimit.Burst))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("generate", cfg.Providers.Generate.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.Generate.Name == "" {
		slog.Warn("providers.generate is not configured; only voice mode is available")
	}

	// Workflow
	if cfg.Workflow.URL != "" {
		if u, err := url.Parse(cfg.Workflow.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("workflow.url %q must be an absolute http(s) URL", cfg.Workflow.URL))
		}
	}
	if cfg.Workflow.Timeout < 0 {
		errs = append(errs, fmt.Errorf("workflow.timeout %s must not be negative", cfg.Workflow.Timeout))
	}
	if cfg.Workflow.URL == "" && cfg.Providers.LLM.Name == "" {
		slog.Warn("neither workflow.url nor providers.llm is configured; every chat reply will be the apology")
	}

	// Chat
	if cfg.Chat.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("chat.session_ttl %s must not be negative", cfg.Chat.SessionTTL))
	}

	// Store
	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, sqlite, postgres, redis", cfg.Store.Backend))
	}
	if cfg.Store.Backend != StoreMemory && cfg.Store.Backend != "" && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required for backend %q", cfg.Store.Backend))
	}

	// Voice
	if bs := cfg.Voice.BlockSize; bs != 0 && (bs < 256 || bs > 16384 || bs&(bs-1) != 0) {
		errs = append(errs, fmt.Errorf("voice.block_size %d must be a power of two between 256 and 16384", bs))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
