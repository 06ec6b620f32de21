// Package config provides the configuration schema, loader, and provider
// registry for the Dost server and console voice mode.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects the persistence backend.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StoreSQLite   StoreBackend = "sqlite"
	StorePostgres StoreBackend = "postgres"
	StoreRedis    StoreBackend = "redis"
)

// IsValid reports whether b is a recognised backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreMemory, StoreSQLite, StorePostgres, StoreRedis:
		return true
	}
	return false
}

// Config is the root configuration structure for Dost.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Chat      ChatConfig      `yaml:"chat"`
	Store     StoreConfig     `yaml:"store"`
	Voice     VoiceConfig     `yaml:"voice"`
	Models    ModelsConfig    `yaml:"models"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It can be changed without a restart.
	LogLevel LogLevel `yaml:"log_level"`

	// RateLimit bounds requests per client IP on the /v1 routes.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// RateLimitConfig is a token bucket per client. RPS 0 selects the default;
// a negative RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation backs each AI capability.
// Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// Live is the realtime audio agent used by the voice session.
	Live ProviderEntry `yaml:"live"`

	// Generate is the structured generation service behind screening,
	// moderation, credential checks and counselor search.
	Generate ProviderEntry `yaml:"generate"`

	// LLM answers chat messages when the workflow endpoint is not configured
	// or fails.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order after LLM.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// WorkflowConfig points at the hosted chat workflow. An empty URL disables
// it and chat is answered by the LLM provider alone.
type WorkflowConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig tunes text chat sessions.
type ChatConfig struct {
	// SessionTTL drops sessions idle for longer. 0 keeps them forever.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// SystemPrompt replaces the default persona of the LLM responder.
	SystemPrompt string `yaml:"system_prompt"`
}

// StoreConfig selects where journal entries and rooms are persisted.
type StoreConfig struct {
	// Backend is one of memory, sqlite, postgres, redis. Default: memory.
	Backend StoreBackend `yaml:"backend"`

	// DSN is a file path for sqlite, a connection string for postgres and a
	// redis:// URL for redis.
	DSN string `yaml:"dsn"`
}

// VoiceConfig configures the realtime voice session.
type VoiceConfig struct {
	// Persona is the system instruction of the live agent.
	Persona string `yaml:"persona"`

	// VoiceName is the prebuilt voice the agent speaks with (e.g., "Kore").
	VoiceName string `yaml:"voice_name"`

	// BlockSize is the number of samples per captured block. Must be a power
	// of two between 256 and 16384.
	BlockSize int `yaml:"block_size"`
}

// ModelsConfig overrides the model used per structured operation. Empty
// fields keep the built-in defaults.
type ModelsConfig struct {
	Screening  string `yaml:"screening"`
	Moderation string `yaml:"moderation"`
	Credential string `yaml:"credential"`
	Search     string `yaml:"search"`
}
