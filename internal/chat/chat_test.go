package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/dost/internal/observe"
)

type fakeResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	gate  chan struct{}
	calls []string
}

func (r *fakeResponder) Name() string { return "fake" }

func (r *fakeResponder) Respond(ctx context.Context, msg string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, msg)
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.reply, r.err
}

func TestNew_SeedsGreeting(t *testing.T) {
	s := New(&fakeResponder{}, WithID("abc"))
	if s.ID() != "abc" {
		t.Errorf("ID = %q, want abc", s.ID())
	}
	turns := s.Turns()
	if len(turns) != 1 || turns[0].Role != RoleModel || turns[0].Text != Greeting {
		t.Fatalf("turns = %+v, want greeting only", turns)
	}
}

func TestNew_RandomID(t *testing.T) {
	a, b := New(&fakeResponder{}), New(&fakeResponder{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("IDs %q and %q should be distinct and non-empty", a.ID(), b.ID())
	}
}

func TestSend(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"reply appended", "Let's take a deep breath together.", nil, "Let's take a deep breath together."},
		{"responder error apologises", "", errors.New("boom"), Apology},
		{"blank reply apologises", "   ", nil, Apology},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeResponder{reply: tt.reply, err: tt.err}
			s := New(r)

			turn, err := s.Send(context.Background(), "I can't sleep")
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if turn.Role != RoleModel || turn.Text != tt.want {
				t.Errorf("turn = %+v, want model %q", turn, tt.want)
			}

			turns := s.Turns()
			if len(turns) != 3 {
				t.Fatalf("len(turns) = %d, want 3", len(turns))
			}
			if turns[1].Role != RoleUser || turns[1].Text != "I can't sleep" {
				t.Errorf("user turn = %+v", turns[1])
			}
			if turns[2] != turn {
				t.Errorf("last turn = %+v, want %+v", turns[2], turn)
			}
		})
	}
}

func TestSend_OnlyLatestMessageForwarded(t *testing.T) {
	r := &fakeResponder{reply: "ok"}
	s := New(r)
	for _, msg := range []string{"first", "second"} {
		if _, err := s.Send(context.Background(), msg); err != nil {
			t.Fatalf("Send(%q): %v", msg, err)
		}
	}
	if len(r.calls) != 2 || r.calls[0] != "first" || r.calls[1] != "second" {
		t.Errorf("responder calls = %v", r.calls)
	}
	if n := len(s.Turns()); n != 5 {
		t.Errorf("len(turns) = %d, want 5", n)
	}
}

func TestSend_RejectsBlank(t *testing.T) {
	r := &fakeResponder{reply: "ok"}
	s := New(r)
	for _, msg := range []string{"", "  \n\t"} {
		if _, err := s.Send(context.Background(), msg); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) err = %v, want ErrEmptyMessage", msg, err)
		}
	}
	if len(r.calls) != 0 {
		t.Errorf("responder called %d times", len(r.calls))
	}
	if n := len(s.Turns()); n != 1 {
		t.Errorf("len(turns) = %d, want 1", n)
	}
}

func TestSend_BusyWhileAnswering(t *testing.T) {
	r := &fakeResponder{reply: "done", gate: make(chan struct{})}
	s := New(r)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		r.mu.Lock()
		n := len(r.calls)
		r.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("responder never called")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send err = %v, want ErrBusy", err)
	}
	close(r.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if _, err := s.Send(context.Background(), "third"); err != nil {
		t.Errorf("Send after reply: %v", err)
	}
}

type panickyResponder struct{ panics bool }

func (r *panickyResponder) Name() string { return "panicky" }

func (r *panickyResponder) Respond(context.Context, string) (string, error) {
	if r.panics {
		r.panics = false
		panic("responder blew up")
	}
	return "recovered", nil
}

func TestSend_PanicReleasesSession(t *testing.T) {
	s := New(&panickyResponder{panics: true})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("Send did not propagate the responder panic")
			}
		}()
		_, _ = s.Send(context.Background(), "first")
	}()

	turn, err := s.Send(context.Background(), "second")
	if err != nil {
		t.Fatalf("Send after panic: %v", err)
	}
	if turn.Text != "recovered" {
		t.Errorf("reply = %q, want %q", turn.Text, "recovered")
	}
}

func TestSend_UpdatesLastUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := New(&fakeResponder{reply: "ok"}, withClock(func() time.Time { return now }))
	if !s.LastUsed().Equal(now) {
		t.Fatalf("LastUsed = %v, want %v", s.LastUsed(), now)
	}
	now = now.Add(time.Hour)
	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if !s.LastUsed().Equal(now) {
		t.Errorf("LastUsed = %v, want %v", s.LastUsed(), now)
	}
}

func TestSend_RecordsDurationPerResponder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	s := New(&fakeResponder{reply: "ok"}, WithMetrics(m))
	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "dost.chat.duration" {
				continue
			}
			dps := met.Data.(metricdata.Histogram[float64]).DataPoints
			if len(dps) != 1 {
				t.Fatalf("got %d data points, want 1", len(dps))
			}
			if v, ok := dps[0].Attributes.Value("responder"); !ok || v.AsString() != "fake" {
				t.Errorf("responder attribute = %v, want fake", v.AsString())
			}
			return
		}
	}
	t.Error("dost.chat.duration not exported")
}
