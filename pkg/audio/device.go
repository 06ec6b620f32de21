// Package audio defines the audio primitives and device contracts used by the
// realtime voice path.
//
// The device abstractions are:
//
//   - [Microphone] opens a [CaptureStream] that yields fixed-size blocks of
//     float samples.
//   - [Speaker] opens a [PlaybackContext], a sample clock onto which decoded
//     [Buffer] values are scheduled at absolute start times.
//
// Real implementations live in audio/device; in-memory fakes for tests live in
// audio/mock. The PCM helpers in this package convert between the float
// samples devices produce and the little-endian PCM16 the remote agent speaks.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned when the user or OS refuses access to a
	// capture device.
	ErrPermissionDenied = errors.New("audio: permission denied")

	// ErrClosed is returned by operations on a closed stream or context.
	ErrClosed = errors.New("audio: closed")

	// ErrFormatMismatch is returned when a buffer does not match the format of
	// the context it is scheduled on.
	ErrFormatMismatch = errors.New("audio: format mismatch")
)

// Microphone opens capture streams on an input device.
type Microphone interface {
	// OpenCapture starts capturing in format f, delivering blocks of exactly
	// blockSize frames. ctx bounds acquisition only; the returned stream lives
	// until Close.
	OpenCapture(ctx context.Context, f Format, blockSize int) (CaptureStream, error)
}

// CaptureStream is an open microphone.
type CaptureStream interface {
	// ReadBlock blocks until the next block is available, ctx is cancelled, or
	// the stream is closed (returning [ErrClosed]).
	ReadBlock(ctx context.Context) ([]float32, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Speaker opens playback contexts on an output device.
type Speaker interface {
	// OpenPlayback creates a playback context running at format f. ctx bounds
	// acquisition only.
	OpenPlayback(ctx context.Context, f Format) (PlaybackContext, error)
}

// PlaybackContext is a running output clock onto which buffers are scheduled.
type PlaybackContext interface {
	// Now returns the current position of the output clock, starting at zero
	// when the context is opened.
	Now() time.Duration

	// Schedule queues buf to start playing at the absolute clock time at.
	// onEnded, if non-nil, is called once when the buffer finishes playing
	// naturally. It is never invoked from within Schedule itself and is not
	// invoked for sources stopped with [Source.Stop].
	Schedule(buf Buffer, at time.Duration, onEnded func()) (Source, error)

	// Close stops all output and releases the device. Safe to call more than
	// once.
	Close() error
}

// Source is a buffer scheduled on a [PlaybackContext].
type Source interface {
	// Stop removes the source from playback immediately. Safe to call more
	// than once and after the source has ended.
	Stop()

	// EndsAt returns the clock time at which the source finishes. It can be
	// later than the requested start plus the buffer duration when the
	// context rounds or delays the start.
	EndsAt() time.Duration
}
