// Package kvtest holds the behaviour every kv.Store backend must share, run
// from each backend's tests.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/dost/pkg/kv"
)

// Run exercises s against the kv.Store contract. s must be empty and is not
// closed by Run.
func Run(t *testing.T, s kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "kvtest_missing"); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get missing: err = %v, want kv.ErrNotFound", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		want := []byte(`[{"id":"1","text":"grateful for tea"}]`)
		if err := s.Set(ctx, "kvtest_entries", want); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Get(ctx, "kvtest_entries")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Get = %s, want %s", got, want)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		for _, v := range []string{`"first"`, `"second"`} {
			if err := s.Set(ctx, "kvtest_over", []byte(v)); err != nil {
				t.Fatalf("Set(%s): %v", v, err)
			}
		}
		got, err := s.Get(ctx, "kvtest_over")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != `"second"` {
			t.Errorf("Get = %s, want \"second\"", got)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if err := s.Set(ctx, "", []byte("x")); !errors.Is(err, kv.ErrEmptyKey) {
			t.Errorf("Set empty key: err = %v", err)
		}
		if _, err := s.Get(ctx, ""); !errors.Is(err, kv.ErrEmptyKey) {
			t.Errorf("Get empty key: err = %v", err)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("kvtest_conc_%d", i)
				if err := s.Set(ctx, key, []byte(fmt.Sprint(i))); err != nil {
					t.Errorf("Set(%s): %v", key, err)
				}
			}()
		}
		wg.Wait()
		for i := range 8 {
			got, err := s.Get(ctx, fmt.Sprintf("kvtest_conc_%d", i))
			if err != nil || string(got) != fmt.Sprint(i) {
				t.Errorf("Get(kvtest_conc_%d) = %s, %v", i, got, err)
			}
		}
	})
}
