// Package journal keeps the user's private journal: free-text entries stored
// newest first as one JSON array under [Key].
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/pkg/kv"
)

// Key is the store key holding all entries.
const Key = "dost_entries"

var (
	// ErrEmptyEntry is returned by Add for blank text.
	ErrEmptyEntry = errors.New("journal: empty entry")

	// ErrEntryNotFound is returned by Delete for an unknown ID.
	ErrEntryNotFound = errors.New("journal: entry not found")
)

// Entry is one journal entry.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Option configures a [Journal].
type Option func(*Journal)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// Journal reads and writes entries through a [kv.Store]. Writes are
// serialised so concurrent adds never lose entries.
type Journal struct {
	store kv.Store
	now   func() time.Time

	mu sync.Mutex
}

// New creates a Journal on store.
func New(store kv.Store, opts ...Option) *Journal {
	j := &Journal{store: store, now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// List returns all entries, newest first. Unreadable stored data is logged
// and reported as an empty journal.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.load(ctx)
}

// Add prepends a new entry. The text is stored as given.
func (j *Journal) Add(ctx context.Context, text string) (Entry, error) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, ErrEmptyEntry
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: uuid.NewString(), Text: text, Timestamp: j.now().UTC()}
	if err := j.save(ctx, append([]Entry{e}, entries...)); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Delete removes the entry with id.
func (j *Journal) Delete(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(entries, func(e Entry) bool { return e.ID == id })
	if i < 0 {
		return ErrEntryNotFound
	}
	return j.save(ctx, slices.Delete(entries, i, i+1))
}

func (j *Journal) load(ctx context.Context) ([]Entry, error) {
	raw, err := j.store.Get(ctx, Key)
	if errors.Is(err, kv.ErrNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: load: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		observe.Logger(ctx).Error("journal: failed to load entries", "err", err)
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (j *Journal) save(ctx context.Context, entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	if err := j.store.Set(ctx, Key, raw); err != nil {
		return fmt.Errorf("journal: save: %w", err)
	}
	return nil
}
