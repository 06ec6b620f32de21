package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/dost/pkg/kv"
	"github.com/MrWong99/dost/pkg/provider/generate"
	"github.com/MrWong99/dost/pkg/provider/live"
	"github.com/MrWong99/dost/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// StoreFactory opens a store from its configuration.
type StoreFactory func(ctx context.Context, cfg StoreConfig) (kv.Store, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	live     map[string]func(ProviderEntry) (live.Provider, error)
	generate map[string]func(ProviderEntry) (generate.Provider, error)
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	store    map[StoreBackend]StoreFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[string]func(ProviderEntry) (live.Provider, error)),
		generate: make(map[string]func(ProviderEntry) (generate.Provider, error)),
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		store:    make(map[StoreBackend]StoreFactory),
	}
}

// RegisterLive registers a live agent factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterGenerate registers a structured generation factory under name.
func (r *Registry) RegisterGenerate(name string, factory func(ProviderEntry) (generate.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generate[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterStore registers a store factory for backend.
func (r *Registry) RegisterStore(backend StoreBackend, factory StoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[backend] = factory
}

// CreateLive instantiates a live agent using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateGenerate instantiates a structured generation provider.
func (r *Registry) CreateGenerate(entry ProviderEntry) (generate.Provider, error) {
	r.mu.RLock()
	factory, ok := r.generate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: generate/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateStore opens the store selected by cfg.Backend.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (kv.Store, error) {
	r.mu.RLock()
	factory, ok := r.store[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: store/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}
