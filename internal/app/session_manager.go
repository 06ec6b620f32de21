package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/dost/internal/config"
	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/internal/voice"
	"github.com/MrWong99/dost/pkg/audio"
	"github.com/MrWong99/dost/pkg/provider/live"
)

// ErrSessionActive is returned by Start while a voice session is running.
var ErrSessionActive = errors.New("app: a voice session is already active")

// SessionInfo holds metadata about the active voice session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session became active.
	StartedAt time.Time

	// Voice is the prebuilt voice the agent speaks with.
	Voice string
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Agent      live.Provider
	Microphone audio.Microphone
	Speaker    audio.Speaker

	// Voice returns the voice settings; it is read on every Start so a
	// reloaded config applies to the next session.
	Voice func() config.VoiceConfig

	Metrics *observe.Metrics

	// Listeners are passed to every session, e.g. volume and transcript
	// listeners.
	Listeners []voice.Option
}

// SessionManager manages the lifecycle of voice sessions on one set of
// audio devices. Only one session can be active at a time.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu     sync.Mutex
	active *voice.Session
	info   SessionInfo
	done   chan struct{}
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Voice == nil {
		cfg.Voice = func() config.VoiceConfig { return config.VoiceConfig{} }
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &SessionManager{cfg: cfg}
}

// Start opens a new voice session and returns once it is active. The
// session runs until Stop is called or the agent ends the connection; Done
// reports either.
//
// Returns [ErrSessionActive] if a session is already active.
func (sm *SessionManager) Start(ctx context.Context) error {
	vc := sm.cfg.Voice()
	done := make(chan struct{})
	var once sync.Once

	var sess *voice.Session
	opts := append(slices.Clone(sm.cfg.Listeners),
		voice.WithMetrics(sm.cfg.Metrics),
		voice.WithStateListener(func(st voice.State) {
			if st == voice.StateClosed {
				once.Do(func() { close(done) })
				sm.release(sess)
			}
		}),
	)
	sess = voice.New(sm.cfg.Agent, sm.cfg.Microphone, sm.cfg.Speaker, voice.Config{
		Persona:    vc.Persona,
		Voice:      vc.VoiceName,
		BlockSize:  vc.BlockSize,
		Transcribe: true,
	}, opts...)

	sm.mu.Lock()
	if sm.active != nil {
		id := sm.info.SessionID
		sm.mu.Unlock()
		return fmt.Errorf("%w (id=%s)", ErrSessionActive, id)
	}
	sm.active = sess
	sm.info = SessionInfo{SessionID: uuid.NewString(), Voice: vc.VoiceName}
	sm.done = done
	sm.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		once.Do(func() { close(done) })
		sm.release(sess)
		return fmt.Errorf("app: start voice session: %w", err)
	}

	sm.mu.Lock()
	if sm.active == sess {
		sm.info.StartedAt = time.Now().UTC()
	}
	sm.mu.Unlock()
	return nil
}

// Stop ends the active session. It is a no-op when none is active.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	sess := sm.active
	sm.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Stop()
}

// IsActive reports whether a session is running or starting.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active != nil
}

// Info returns metadata of the active session. The zero value is returned
// when no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Done returns a channel closed when the most recently started session
// ends, or nil if no session was ever started.
func (sm *SessionManager) Done() <-chan struct{} {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.done
}

// release forgets sess if it is still the active session.
func (sm *SessionManager) release(sess *voice.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == sess {
		sm.active = nil
		sm.info = SessionInfo{}
	}
}
