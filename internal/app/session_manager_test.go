package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/dost/internal/app"
	"github.com/MrWong99/dost/internal/config"
	audiomock "github.com/MrWong99/dost/pkg/audio/mock"
	livemock "github.com/MrWong99/dost/pkg/provider/live/mock"
)

type voiceRig struct {
	sm      *app.SessionManager
	agent   *livemock.Provider
	mic     *audiomock.Microphone
	speaker *audiomock.Speaker

	mu    sync.Mutex
	voice config.VoiceConfig
}

func newVoiceRig(t *testing.T) *voiceRig {
	t.Helper()
	r := &voiceRig{
		agent:   &livemock.Provider{},
		mic:     &audiomock.Microphone{},
		speaker: &audiomock.Speaker{},
		voice:   config.VoiceConfig{VoiceName: "Kore", Persona: "Be kind."},
	}
	r.sm = app.NewSessionManager(app.SessionManagerConfig{
		Agent:      r.agent,
		Microphone: r.mic,
		Speaker:    r.speaker,
		Voice: func() config.VoiceConfig {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.voice
		},
	})
	t.Cleanup(func() { _ = r.sm.Stop() })
	return r
}

func (r *voiceRig) setVoice(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voice.VoiceName = name
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)

	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !r.sm.IsActive() {
		t.Fatal("expected session to be active after Start")
	}

	info := r.sm.Info()
	if info.SessionID == "" {
		t.Error("SessionID should not be empty")
	}
	if info.Voice != "Kore" {
		t.Errorf("Voice = %q, want Kore", info.Voice)
	}
	if info.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}

	cfg := r.agent.ConnectCalls[0].Cfg
	if cfg.Instructions != "Be kind." || cfg.Voice != "Kore" || !cfg.Transcribe {
		t.Errorf("connect config = %+v", cfg)
	}

	done := r.sm.Done()
	if err := r.sm.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	waitClosed(t, done)

	if r.sm.IsActive() {
		t.Fatal("expected session to be inactive after Stop")
	}
	if got := r.sm.Info(); got.SessionID != "" {
		t.Errorf("Info after Stop = %+v, want zero", got)
	}
	if n := r.mic.OpenStreams(); n != 0 {
		t.Errorf("open capture streams = %d, want 0", n)
	}
	if n := r.agent.OpenHandles(); n != 0 {
		t.Errorf("open agent handles = %d, want 0", n)
	}
}

func TestSessionManager_DoubleStart(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)

	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	err := r.sm.Start(context.Background())
	if !errors.Is(err, app.ErrSessionActive) {
		t.Fatalf("second Start() = %v, want ErrSessionActive", err)
	}
	if n := len(r.agent.ConnectCalls); n != 1 {
		t.Errorf("Connect calls = %d, want 1", n)
	}
}

func TestSessionManager_StopWhenIdle(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)
	if err := r.sm.Stop(); err != nil {
		t.Fatalf("Stop() on idle manager: %v", err)
	}
	if r.sm.Done() != nil {
		t.Error("Done() should be nil before any Start")
	}
}

func TestSessionManager_RemoteClose(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)

	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	done := r.sm.Done()
	r.agent.Handle().RemoteClose(errors.New("server going away"))
	waitClosed(t, done)

	if r.sm.IsActive() {
		t.Fatal("expected session to be inactive after remote close")
	}
	// A new session can start right away.
	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestSessionManager_ConnectFailure(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)
	r.agent.ConnectErr = errors.New("denied")

	if err := r.sm.Start(context.Background()); err == nil {
		t.Fatal("expected error when the agent refuses")
	}
	if r.sm.IsActive() {
		t.Error("expected no active session after failed Start")
	}
	waitClosed(t, r.sm.Done())
}

func TestSessionManager_ReadsVoiceOnEachStart(t *testing.T) {
	t.Parallel()
	r := newVoiceRig(t)

	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	done := r.sm.Done()
	_ = r.sm.Stop()
	waitClosed(t, done)

	r.setVoice("Puck")
	if err := r.sm.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error: %v", err)
	}
	if got := r.agent.ConnectCalls[1].Cfg.Voice; got != "Puck" {
		t.Errorf("second session voice = %q, want Puck", got)
	}
}
