// Package live defines the contract for a remote conversational agent that
// holds a bidirectional realtime audio connection.
//
// A [Provider] opens a connection with [Provider.Connect]. Events flow back to
// the caller through the three [Callbacks]; the caller streams microphone
// audio through [Handle.Send]. Sends are fire-and-forget: there is no
// acknowledgement or flow control at this layer.
//
// Implementations must deliver OnMessage and OnClose sequentially from a
// single goroutine, and OnClose at most once per connection.
package live

import (
	"context"

	"github.com/MrWong99/dost/pkg/audio"
)

// Modality names a kind of content the agent answers with.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Config describes the persona and output of a live connection.
type Config struct {
	// Instructions is the system instruction establishing the persona.
	Instructions string

	// Voice selects a prebuilt voice for synthesised replies (e.g. "Kore").
	Voice string

	// Modalities lists the response modalities. Empty means audio only.
	Modalities []Modality

	// Transcribe asks the agent to also send text transcriptions of the
	// user's speech and of its own audio replies.
	Transcribe bool
}

// Message is one inbound event from the agent.
type Message struct {
	// Audio holds inline audio parts in arrival order, each base64 PCM16 with
	// its MIME type (e.g. "audio/pcm;rate=24000").
	Audio []audio.Blob

	// Text holds any text parts of the model turn, concatenated.
	Text string

	// InputTranscript and OutputTranscript carry speech transcriptions when
	// requested with [Config.Transcribe].
	InputTranscript  string
	OutputTranscript string

	// TurnComplete marks the end of the agent's turn.
	TurnComplete bool

	// Interrupted reports that the user barged in and the agent stopped.
	Interrupted bool
}

// Callbacks receive connection events.
type Callbacks struct {
	// OnOpen is called once when the connection is ready for audio, before
	// Connect returns.
	OnOpen func()

	// OnMessage is called for every inbound message.
	OnMessage func(Message)

	// OnClose is called once when the connection ends, locally or remotely.
	// err is nil for a local Close.
	OnClose func(err error)
}

// Handle is an open connection.
type Handle interface {
	// Send streams one encoded audio frame to the agent.
	Send(blob audio.Blob) error

	// Close ends the connection. It is idempotent.
	Close() error
}

// Provider opens live connections.
type Provider interface {
	// Connect dials the agent and completes the setup handshake. ctx bounds the
	// handshake only; the connection lives until Close or a remote close.
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Handle, error)
}
