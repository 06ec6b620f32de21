// Package redis is a kv.Store backed by Redis string values.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/dost/pkg/kv"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "dost:"

// Option configures a [Store].
type Option func(*Store)

// WithPrefix replaces [DefaultPrefix].
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// Store is a [kv.Store] on Redis.
type Store struct {
	client *goredis.Client
	prefix string
}

var _ kv.Store = (*Store)(nil)

// New wraps client. Close closes it.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kv/redis: parse url: %w", err)
	}
	client := goredis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("kv/redis: ping: %w", err)
	}
	return New(client, opts...), nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, kv.ErrEmptyKey
	}
	v, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv/redis: get %q: %w", key, err)
	}
	return v, nil
}

// Set implements kv.Store. Values never expire.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return kv.ErrEmptyKey
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv/redis: set %q: %w", key, err)
	}
	return nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	return s.client.Close()
}
