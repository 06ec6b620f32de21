package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// get runs one request through a mux with h registered and decodes the report.
func get(t *testing.T, h *Handler, ctx context.Context, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: failWith("down")})

	code, rep := get(t, h, context.Background(), "/healthz")
	if code != http.StatusOK || rep.Status != "ok" || rep.Checks != nil {
		t.Errorf("healthz = %d %+v, want 200 ok without checks", code, rep)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "store healthy",
			checkers:   []Checker{{Name: "store", Check: pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "one of two failing",
			checkers: []Checker{
				{Name: "store", Check: failWith("connection refused")},
				{Name: "generate", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantFailed: []string{"store"},
		},
		{
			name: "all failing",
			checkers: []Checker{
				{Name: "store", Check: failWith("a")},
				{Name: "generate", Check: failWith("b")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantFailed: []string{"store", "generate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, New(tt.checkers...), context.Background(), "/readyz")
			if code != tt.wantCode || rep.Status != tt.wantStatus {
				t.Fatalf("readyz = %d %q, want %d %q", code, rep.Status, tt.wantCode, tt.wantStatus)
			}
			if len(rep.Checks) != len(tt.checkers) {
				t.Errorf("checks = %v, want %d entries", rep.Checks, len(tt.checkers))
			}
			for _, name := range tt.wantFailed {
				if res := rep.Checks[name]; res.Status != "fail" || res.Error == "" {
					t.Errorf("check %q = %+v, want a failure with a message", name, res)
				}
			}
		})
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()
	called := false
	h := New(Checker{Name: "store", Check: func(context.Context) error {
		called = true
		return nil
	}})

	h.SetDraining(true)
	code, rep := get(t, h, context.Background(), "/readyz")
	if code != http.StatusServiceUnavailable || rep.Checks["shutdown"].Error != "draining" {
		t.Errorf("draining readyz = %d %+v", code, rep)
	}
	if called {
		t.Error("checkers ran while draining")
	}

	h.SetDraining(false)
	if code, _ := get(t, h, context.Background(), "/readyz"); code != http.StatusOK {
		t.Errorf("readyz after draining = %d, want 200", code)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code, rep := get(t, h, ctx, "/readyz")
	if code != http.StatusServiceUnavailable || rep.Checks["slow"].Error != context.Canceled.Error() {
		t.Errorf("readyz = %d %+v, want the cancellation reported", code, rep)
	}
}
