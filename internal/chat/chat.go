// Package chat implements the text conversation with Dost: an ordered list of
// user and model turns where every user message is answered by a
// [Responder]. When the responder fails, a fixed apology turn is appended so
// the conversation never stalls.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/dost/internal/observe"
)

// Role is the author of a [Turn].
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Fixed texts of the conversation.
const (
	Greeting = "Welcome to your private Neural Sanctuary. I am Dost. Your thoughts are safe here. How can I support you today?"
	Apology  = "My neural link is weak. Please try again."
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrBusy is returned by Send while a previous message is still being
	// answered.
	ErrBusy = errors.New("chat: reply in progress")
)

// Turn is one message in the conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Responder produces the model's reply to a single user message.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)

	// Name identifies the responder in logs and metrics.
	Name() string
}

// Option configures a [Session].
type Option func(*Session)

// WithID sets the session ID. The default is a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// withClock replaces time.Now in tests.
func withClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one text conversation. It is safe for concurrent use; sends are
// serialised and a second concurrent Send is rejected with [ErrBusy].
type Session struct {
	id        string
	responder Responder
	metrics   *observe.Metrics
	now       func() time.Time

	mu       sync.Mutex
	turns    []Turn
	busy     bool
	lastUsed time.Time
}

// New starts a conversation seeded with the greeting turn.
func New(responder Responder, opts ...Option) *Session {
	s := &Session{responder: responder, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	now := s.now()
	s.turns = []Turn{{Role: RoleModel, Text: Greeting, At: now}}
	s.lastUsed = now
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// LastUsed returns when the session was created or last sent to.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Send appends text as a user turn, asks the responder for a reply and
// appends that as a model turn, which is returned. Only the latest message is
// passed to the responder. A responder failure is not returned: the apology
// turn is appended and returned instead.
func (s *Session) Send(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Turn{}, ErrBusy
	}
	s.busy = true
	s.turns = append(s.turns, Turn{Role: RoleUser, Text: text, At: s.now()})
	s.lastUsed = s.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	ctx, span := observe.StartSpan(ctx, "chat.send")
	start := time.Now()
	reply, err := s.responder.Respond(ctx, text)
	s.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("responder", s.responder.Name())))
	observe.EndSpan(span, err)

	if err != nil || strings.TrimSpace(reply) == "" {
		observe.Logger(ctx).Warn("chat: responder failed, apologising", "session", s.id, "err", err)
		s.metrics.RecordChatFallback(ctx, "apology")
		reply = Apology
	}

	turn := Turn{Role: RoleModel, Text: reply, At: s.now()}
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()
	return turn, nil
}
