// Package voice implements the realtime voice session: microphone audio is
// captured in fixed blocks and streamed to a remote live agent, and the
// agent's audio replies are scheduled gaplessly on a playback clock.
//
// A [Session] moves through Idle → Connecting → Active → Closed. Stop is
// idempotent and safe from every state; a remote close is handled exactly
// like Stop. A Session can be started again after it has stopped.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/dost/internal/observe"
	"github.com/MrWong99/dost/pkg/audio"
	"github.com/MrWong99/dost/pkg/provider/live"
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyActive is returned by Start while a session is connecting or
	// active.
	ErrAlreadyActive = errors.New("voice: session already active")

	// ErrAcquisition wraps any failure to obtain the microphone, the playback
	// context or the agent connection.
	ErrAcquisition = errors.New("voice: acquisition failed")

	// ErrTransport wraps a failure while streaming captured audio.
	ErrTransport = errors.New("voice: transport failed")

	// ErrStopped is returned by Start when Stop was called while connecting.
	ErrStopped = errors.New("voice: stopped while connecting")
)

// Default persona of the companion.
const (
	DefaultPersona   = "You are Dost, a sympathetic and kind mental health companion. Your goal is to listen and validate feelings."
	DefaultVoice     = "Kore"
	DefaultBlockSize = 4096
)

// Config holds the persona and audio parameters of a session.
type Config struct {
	// Persona is the system instruction sent to the agent.
	Persona string

	// Voice is the prebuilt voice name for replies.
	Voice string

	// BlockSize is the number of capture frames per outbound frame.
	BlockSize int

	// Capture and Playback are the microphone and speaker formats.
	Capture  audio.Format
	Playback audio.Format

	// Transcribe requests text transcriptions from the agent.
	Transcribe bool
}

func (c Config) withDefaults() Config {
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	if !c.Capture.Valid() {
		c.Capture = audio.CaptureFormat
	}
	if !c.Playback.Valid() {
		c.Playback = audio.PlaybackFormat
	}
	return c
}

// Transcript is a piece of text produced during a session.
type Transcript struct {
	// Speaker is "user" for the user's recognised speech and "model" for the
	// agent.
	Speaker string
	Text    string
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option configures a [Session].
type Option func(*Session)

// WithVolumeListener registers fn to receive the 0..100 input level of every
// capture block, and 0 when the session stops.
func WithVolumeListener(fn func(float64)) Option {
	return func(s *Session) { s.onVolume = fn }
}

// WithTranscriptListener registers fn to receive agent text and
// transcriptions.
func WithTranscriptListener(fn func(Transcript)) Option {
	return func(s *Session) { s.onTranscript = fn }
}

// WithStateListener registers fn to be called after every state change.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is a realtime voice conversation with a live agent.
type Session struct {
	cfg     Config
	agent   live.Provider
	mic     audio.Microphone
	speaker audio.Speaker
	metrics *observe.Metrics

	onVolume     func(float64)
	onTranscript func(Transcript)
	onState      func(State)

	mu    sync.Mutex
	state State
	// gen identifies the current run; callbacks from an earlier run are
	// ignored.
	gen          uint64
	remoteClosed error
	capture      audio.CaptureStream
	playback     audio.PlaybackContext
	handle       live.Handle
	cancel       context.CancelFunc
	captureDone  chan struct{}
	cursor       time.Duration
	live         map[uint64]audio.Source
	nextSource   uint64
	volume       float64
}

// New creates an idle session that talks to agent through mic and speaker.
func New(agent live.Provider, mic audio.Microphone, speaker audio.Speaker, cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg.withDefaults(),
		agent:   agent,
		mic:     mic,
		speaker: speaker,
		live:    make(map[uint64]audio.Source),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Volume returns the level of the most recent capture block (0..100).
func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Cursor returns the playback time at which the next inbound buffer starts
// at the earliest.
func (s *Session) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// LiveSources returns how many scheduled buffers have not yet finished.
func (s *Session) LiveSources() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Start acquires the microphone, the playback context and the agent
// connection concurrently, then begins streaming. On any acquisition failure
// everything already acquired is released, the session returns to Idle, and
// the error wraps [ErrAcquisition].
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateActive {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.gen++
	gen := s.gen
	s.remoteClosed = nil
	s.state = StateConnecting
	s.mu.Unlock()
	s.notifyState(StateConnecting)

	started := time.Now()
	ctx, span := observe.StartSpan(ctx, "voice.start")
	defer func() { observe.EndSpan(span, err) }()

	var (
		capture  audio.CaptureStream
		playback audio.PlaybackContext
		handle   live.Handle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.mic.OpenCapture(gctx, s.cfg.Capture, s.cfg.BlockSize)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		capture = c
		return nil
	})
	g.Go(func() error {
		p, err := s.speaker.OpenPlayback(gctx, s.cfg.Playback)
		if err != nil {
			return fmt.Errorf("open playback: %w", err)
		}
		playback = p
		return nil
	})
	g.Go(func() error {
		h, err := s.agent.Connect(gctx, live.Config{
			Instructions: s.cfg.Persona,
			Voice:        s.cfg.Voice,
			Modalities:   []live.Modality{live.ModalityAudio},
			Transcribe:   s.cfg.Transcribe,
		}, s.callbacks(gen))
		if err != nil {
			return fmt.Errorf("connect agent: %w", err)
		}
		handle = h
		return nil
	})
	err = g.Wait()

	s.mu.Lock()
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrAcquisition, err)
	case s.state != StateConnecting || s.gen != gen:
		err = fmt.Errorf("%w: %w", ErrAcquisition, ErrStopped)
	case s.remoteClosed != nil:
		err = fmt.Errorf("%w: agent closed during setup: %w", ErrAcquisition, s.remoteClosed)
	}
	if err != nil {
		toIdle := s.state == StateConnecting && s.gen == gen
		if toIdle {
			s.state = StateIdle
		}
		s.mu.Unlock()

		release(handle, capture, playback, nil)
		slog.Warn("voice: session start failed", "err", err)
		if toIdle {
			s.notifyState(StateIdle)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.capture = capture
	s.playback = playback
	s.handle = handle
	s.cancel = cancel
	s.captureDone = done
	s.cursor = 0
	s.volume = 0
	clear(s.live)
	s.state = StateActive
	s.mu.Unlock()

	go s.captureLoop(runCtx, gen, capture, handle, done)

	s.metrics.ActiveVoiceSessions.Add(ctx, 1)
	s.metrics.VoiceConnectDuration.Record(ctx, time.Since(started).Seconds())
	slog.Info("voice: session active",
		"voice", s.cfg.Voice,
		"capture", s.cfg.Capture.String(),
		"playback", s.cfg.Playback.String(),
	)
	s.notifyState(StateActive)
	return nil
}

// Stop ends the session: the agent connection is closed, capture stops, both
// audio contexts are released and every scheduled buffer is stopped. It is
// safe to call from any state and more than once.
func (s *Session) Stop() error {
	s.teardown(0, true, nil)
	return nil
}

// callbacks binds the agent events of run gen to the session.
func (s *Session) callbacks(gen uint64) live.Callbacks {
	return live.Callbacks{
		OnOpen: func() {
			slog.Debug("voice: agent connection open")
		},
		OnMessage: func(msg live.Message) {
			s.handleMessage(gen, msg)
		},
		OnClose: func(err error) {
			s.handleRemoteClose(gen, err)
		},
	}
}

// teardown releases the resources of run gen (any run when gen is 0). wait
// makes it block until the capture loop has exited; the capture loop itself
// passes false.
func (s *Session) teardown(gen uint64, wait bool, cause error) {
	s.mu.Lock()
	if gen != 0 && gen != s.gen {
		s.mu.Unlock()
		return
	}
	prev := s.state
	handle, capture, playback := s.handle, s.capture, s.playback
	cancel, done := s.cancel, s.captureDone
	sources := make([]audio.Source, 0, len(s.live))
	for _, src := range s.live {
		sources = append(sources, src)
	}
	clear(s.live)
	s.handle, s.capture, s.playback = nil, nil, nil
	s.cancel, s.captureDone = nil, nil
	s.volume = 0
	s.state = StateClosed
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	release(handle, capture, playback, sources)
	if wait && done != nil {
		<-done
	}

	if prev == StateActive {
		s.metrics.ActiveVoiceSessions.Add(context.Background(), -1)
		if cause != nil {
			slog.Warn("voice: session ended", "err", cause)
		} else {
			slog.Info("voice: session stopped")
		}
	}
	if s.onVolume != nil && prev == StateActive {
		s.onVolume(0)
	}
	if prev != StateClosed {
		s.notifyState(StateClosed)
	}
}

// release closes whatever was acquired, in order: connection, microphone,
// scheduled sources, playback context.
func release(handle live.Handle, capture audio.CaptureStream, playback audio.PlaybackContext, sources []audio.Source) {
	if handle != nil {
		if err := handle.Close(); err != nil {
			slog.Debug("voice: close agent connection", "err", err)
		}
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			slog.Debug("voice: close microphone", "err", err)
		}
	}
	for _, src := range sources {
		src.Stop()
	}
	if playback != nil {
		if err := playback.Close(); err != nil {
			slog.Debug("voice: close playback", "err", err)
		}
	}
}

func (s *Session) handleRemoteClose(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateConnecting:
		if err == nil {
			err = errors.New("connection closed")
		}
		s.remoteClosed = err
		s.mu.Unlock()
		return
	case StateActive:
		s.mu.Unlock()
		s.teardown(gen, true, err)
	default:
		s.mu.Unlock()
	}
}

func (s *Session) notifyState(st State) {
	if s.onState != nil {
		s.onState(st)
	}
}
