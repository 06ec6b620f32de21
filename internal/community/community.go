// Package community runs the anonymous peer-support rooms. Every post is
// screened by a [Moderator] before it is appended to a room; rejected posts
// never reach the room history.
package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/internal/wellness"
	"github.com/MrWong99/dost/pkg/kv"
)

// Sender is who wrote a [Message].
type Sender string

const (
	SenderUser      Sender = "user"
	SenderCommunity Sender = "community"
	SenderBot       Sender = "bot"
)

// BotName and BotNotice form the moderation notice seeded into every room.
const (
	BotName   = "Dost AI"
	BotNotice = "I'm monitoring this room to keep it safe. Speak freely but kindly."
)

// DefaultUsername is used for posts without a username.
const DefaultUsername = "Anonymous"

// MaxMessages is the number of most recent messages kept per room.
const MaxMessages = 200

var (
	// ErrUnknownRoom is returned for a room ID outside the catalogue.
	ErrUnknownRoom = errors.New("community: unknown room")

	// ErrEmptyMessage is returned for a blank post.
	ErrEmptyMessage = errors.New("community: empty message")

	// ErrRejected is matched by every [*RejectedError].
	ErrRejected = errors.New("community: message rejected")
)

// RejectedError reports a post blocked by moderation.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "Safe Guard: " + e.Reason }

// Is reports whether target is [ErrRejected].
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Room is one peer-support circle.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Rooms is the fixed room catalogue.
var Rooms = []Room{
	{ID: "general", Name: "General Support", Description: "Open talk about everything wellness."},
	{ID: "anxiety", Name: "Anxiety Circle", Description: "Coping strategies and peer support."},
	{ID: "sleep", Name: "Sleep Sanctuary", Description: "Resting together and sharing tips."},
	{ID: "vent", Name: "Safe Vent", Description: "Release what's heavy without judgment."},
}

// Message is one post in a room.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Moderator decides whether a post may be published.
type Moderator interface {
	Moderate(ctx context.Context, message string) wellness.Verdict
}

// Option configures a [Community].
type Option func(*Community)

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Community) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Community) { c.now = now }
}

// Community stores room histories in a [kv.Store], one key per room.
type Community struct {
	store     kv.Store
	moderator Moderator
	metrics   *observe.Metrics
	now       func() time.Time

	mu sync.Mutex
}

// New creates a Community.
func New(store kv.Store, moderator Moderator, opts ...Option) *Community {
	c := &Community{store: store, moderator: moderator, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Room returns the catalogue entry for id.
func (c *Community) Room(id string) (Room, error) {
	for _, r := range Rooms {
		if r.ID == id {
			return r, nil
		}
	}
	return Room{}, fmt.Errorf("%w: %q", ErrUnknownRoom, id)
}

// Messages returns the history of room id, oldest first. A room never
// posted to holds only the bot notice.
func (c *Community) Messages(ctx context.Context, id string) ([]Message, error) {
	if _, err := c.Room(id); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx, id)
}

// Post moderates text and appends it to room id. A blocked post returns a
// [*RejectedError] carrying the moderation reason.
func (c *Community) Post(ctx context.Context, id, username, text string) (Message, error) {
	if _, err := c.Room(id); err != nil {
		return Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}

	verdict := c.moderator.Moderate(ctx, text)
	if !verdict.Safe {
		reason := verdict.Reason
		if reason == "" {
			reason = wellness.DefaultRejectionReason
		}
		c.metrics.ModerationRejections.Add(ctx, 1)
		observe.Logger(ctx).Info("community: post rejected", "room", id, "reason", reason)
		return Message{}, &RejectedError{Reason: reason}
	}

	if username = strings.TrimSpace(username); username == "" {
		username = DefaultUsername
	}
	msg := Message{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Username:  username,
		Text:      text,
		Timestamp: c.now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, err := c.load(ctx, id)
	if err != nil {
		return Message{}, err
	}
	msgs = append(msgs, msg)
	if len(msgs) > MaxMessages {
		msgs = msgs[len(msgs)-MaxMessages:]
	}
	if err := c.save(ctx, id, msgs); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func roomKey(id string) string { return "dost_room_" + id }

func (c *Community) seed() []Message {
	return []Message{{
		ID:        "notice",
		Sender:    SenderBot,
		Username:  BotName,
		Text:      BotNotice,
		Timestamp: c.now().UTC(),
	}}
}

func (c *Community) load(ctx context.Context, id string) ([]Message, error) {
	raw, err := c.store.Get(ctx, roomKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return c.seed(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("community: load %s: %w", id, err)
	}
	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil || len(msgs) == 0 {
		observe.Logger(ctx).Error("community: failed to load room", "room", id, "err", err)
		return c.seed(), nil
	}
	return msgs, nil
}

func (c *Community) save(ctx context.Context, id string, msgs []Message) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("community: encode: %w", err)
	}
	if err := c.store.Set(ctx, roomKey(id), raw); err != nil {
		return fmt.Errorf("community: save %s: %w", id, err)
	}
	return nil
}
