// Package kv defines the local persistence contract of Dost: a flat
// key-value store of opaque JSON blobs. Journal entries and community rooms
// are stored through it.
//
// [Memory] is an in-process implementation. Durable backends live in the
// sqlite, postgres and redis sub-packages.
package kv

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key has never been set.
	ErrNotFound = errors.New("kv: key not found")

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("kv: empty key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv: store closed")
)

// Store persists values under string keys. Set replaces any previous value.
// Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Memory is a [Store] held in a map. Values are copied on the way in and
// out.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty [Memory] store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Close implements Store. Later calls fail with [ErrClosed].
func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.data = nil
	m.mu.Unlock()
	return nil
}
