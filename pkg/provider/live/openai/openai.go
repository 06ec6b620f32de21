// Package openai implements the live.Provider interface for OpenAI's Realtime
// API.
//
// It establishes a bidirectional WebSocket connection to the Realtime endpoint
// and exchanges JSON events according to the Realtime protocol. The API
// expects PCM16 at 24 kHz in both directions, so captured audio at any other
// rate is resampled before it is appended to the input buffer.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/dost/pkg/audio"
	"github.com/MrWong99/dost/pkg/provider/live"
)

var _ live.Provider = (*Provider)(nil)
var _ live.Handle = (*session)(nil)

// ErrSessionClosed is returned by Send after the session has ended.
var ErrSessionClosed = errors.New("openai: session closed")

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultVoice   = "coral"

	// apiRate is the only PCM16 rate the Realtime API accepts.
	apiRate = 24000
)

// Voices lists the prebuilt voices of the Realtime API. Any other voice in
// live.Config is replaced by the default.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials the Realtime endpoint, sends session.update and waits for
// session.updated. OnOpen runs before Connect returns.
func (p *Provider) Connect(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Handle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, url.QueryEscape(p.model))

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		cb:     cb,
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.writeJSON(ctx, buildSessionUpdate(cfg)); err != nil {
		sess.abort("session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}
	if err := sess.awaitSessionUpdated(ctx); err != nil {
		sess.abort("session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	go sess.receiveLoop()
	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string           `json:"modalities"`
	Voice                   string             `json:"voice"`
	Instructions            string             `json:"instructions,omitempty"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription *transcriptionSpec `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetection      `json:"turn_detection"`
}

type transcriptionSpec struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16 at 24 kHz
}

func buildSessionUpdate(cfg live.Config) sessionUpdateMessage {
	voice := cfg.Voice
	if !slices.Contains(Voices, voice) {
		if voice != "" {
			slog.Debug("openai: unsupported voice, using default", "voice", voice, "default", defaultVoice)
		}
		voice = defaultVoice
	}
	modalities := []string{"audio", "text"}
	if len(cfg.Modalities) == 1 && cfg.Modalities[0] == live.ModalityText {
		modalities = []string{"text"}
	}
	params := sessionParams{
		Modalities:        modalities,
		Voice:             voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     turnDetection{Type: "server_vad"},
	}
	if cfg.Transcribe {
		params.InputAudioTranscription = &transcriptionSpec{Model: "whisper-1"}
	}
	return sessionUpdateMessage{Type: "session.update", Session: params}
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta, response.audio_transcript.delta and
	// response.text.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	Error *serverError `json:"error,omitempty"`
}

// serverError is the nested error object of an error event.
type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *serverError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai: server error %s: %s", e.Code, e.Message)
	}
	return "openai: server error: " + e.Message
}

// toMessage maps a server event to a live.Message. ok is false for events
// that carry nothing for the caller.
func toMessage(evt *serverEvent) (msg live.Message, ok bool) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return msg, false
		}
		msg.Audio = []audio.Blob{{Data: evt.Delta, MIMEType: audio.PCMMIMEType(apiRate)}}
	case "response.text.delta":
		msg.Text = evt.Delta
	case "response.audio_transcript.delta":
		msg.OutputTranscript = evt.Delta
	case "conversation.item.input_audio_transcription.completed":
		msg.InputTranscript = evt.Transcript
	case "input_audio_buffer.speech_started":
		msg.Interrupted = true
		return msg, true
	case "response.done":
		msg.TurnComplete = true
		return msg, true
	default:
		return msg, false
	}
	return msg, len(msg.Audio) > 0 || msg.Text != "" || msg.InputTranscript != "" || msg.OutputTranscript != ""
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn
	cb   live.Callbacks

	mu        sync.Mutex
	serverErr error
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// awaitSessionUpdated reads until the server confirms the session update.
func (s *session) awaitSessionUpdated(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		switch evt.Type {
		case "error":
			if evt.Error == nil {
				return &serverError{Message: "unknown error"}
			}
			return evt.Error
		case "session.updated":
			return nil
		}
	}
}

// abort tears down a connection that never reached the open state.
func (s *session) abort(reason string) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.conn.Close(websocket.StatusInternalError, reason)
}

// receiveLoop reads events from the WebSocket and dispatches them. It calls
// OnClose exactly once when it exits.
func (s *session) receiveLoop() {
	var closeErr error
	defer func() {
		if s.cb.OnClose != nil {
			s.cb.OnClose(closeErr)
		}
	}()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			closeErr = s.serverErr
			s.mu.Unlock()
			if closeErr == nil {
				closeErr = fmt.Errorf("openai: connection closed: %w", err)
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("openai: skipping malformed event", "err", err)
			continue
		}
		s.handleServerEvent(&evt)
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	if evt.Type == "error" {
		e := evt.Error
		if e == nil {
			e = &serverError{Message: "unknown error"}
		}
		slog.Warn("openai: server reported error", "code", e.Code, "message", e.Message)
		s.mu.Lock()
		if s.serverErr == nil {
			s.serverErr = e
		}
		s.mu.Unlock()
		return
	}
	if s.cb.OnMessage == nil {
		return
	}
	if m, ok := toMessage(evt); ok {
		s.cb.OnMessage(m)
	}
}

// ── Handle methods ─────────────────────────────────────────────────────────────

// Send appends one captured audio frame to the input buffer, resampled to
// 24 kHz when the frame was captured at another rate.
func (s *session) Send(blob audio.Blob) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	data := blob.Data
	if rate, ok := audio.ParseRate(blob.MIMEType); ok && rate != apiRate {
		pcm, err := base64.StdEncoding.DecodeString(blob.Data)
		if err != nil {
			return fmt.Errorf("openai: decode frame: %w", err)
		}
		data = base64.StdEncoding.EncodeToString(audio.ResampleMono16(pcm, rate, apiRate))
	}
	return s.writeJSON(s.ctx, appendAudioMessage{Type: "input_audio_buffer.append", Audio: data})
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
