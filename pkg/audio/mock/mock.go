// Package mock provides in-memory implementations of the [audio.Microphone],
// [audio.CaptureStream], [audio.Speaker] and [audio.PlaybackContext]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record calls so that tests can
// assert on them, and expose fields that control return values.
//
// Typical usage:
//
//	mic := &mock.Microphone{}
//	spk := &mock.Speaker{}
//	// ... start a voice session with mic and spk ...
//	mic.Stream().Push(block)    // deliver one capture block
//	spk.Playback().Advance(d)   // move the output clock, ending sources
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/dost/pkg/audio"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is returned by OpenCapture.
	OpenErr error

	// OpenDelay makes OpenCapture wait before returning, honouring ctx.
	OpenDelay time.Duration

	// Opens counts OpenCapture calls, including failed ones.
	Opens int

	// LastFormat and LastBlockSize record the most recent OpenCapture arguments.
	LastFormat    audio.Format
	LastBlockSize int

	streams []*CaptureStream
}

var _ audio.Microphone = (*Microphone)(nil)

// OpenCapture implements [audio.Microphone].
func (m *Microphone) OpenCapture(ctx context.Context, f audio.Format, blockSize int) (audio.CaptureStream, error) {
	m.mu.Lock()
	m.Opens++
	m.LastFormat = f
	m.LastBlockSize = blockSize
	err, delay := m.OpenErr, m.OpenDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := NewCaptureStream()
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Stream returns the most recently opened stream, or nil.
func (m *Microphone) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// OpenStreams returns how many opened streams have not been closed.
func (m *Microphone) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.streams {
		if !s.IsClosed() {
			n++
		}
	}
	return n
}

// ─── CaptureStream ────────────────────────────────────────────────────────────

// CaptureStream is a mock [audio.CaptureStream] fed by [CaptureStream.Push].
type CaptureStream struct {
	blocks chan []float32
	errs   chan error
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	closes int
	reads  int
}

var _ audio.CaptureStream = (*CaptureStream)(nil)

// NewCaptureStream returns an open stream with room for 64 pending blocks.
func NewCaptureStream() *CaptureStream {
	return &CaptureStream{
		blocks: make(chan []float32, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Push queues a block for the next ReadBlock call.
func (s *CaptureStream) Push(block []float32) {
	select {
	case s.blocks <- block:
	case <-s.done:
	}
}

// Fail makes the next ReadBlock return err.
func (s *CaptureStream) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// ReadBlock implements [audio.CaptureStream].
func (s *CaptureStream) ReadBlock(ctx context.Context) ([]float32, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil, audio.ErrClosed
	default:
	}
	select {
	case b := <-s.blocks:
		return b, nil
	case err := <-s.errs:
		return nil, err
	case <-s.done:
		return nil, audio.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements [audio.CaptureStream].
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// IsClosed reports whether Close has been called.
func (s *CaptureStream) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reads returns how many times ReadBlock has been called.
func (s *CaptureStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker is a mock [audio.Speaker] returning [Playback] contexts.
type Speaker struct {
	mu sync.Mutex

	// OpenErr, when non-nil, is returned by OpenPlayback.
	OpenErr error

	// Opens counts OpenPlayback calls, including failed ones.
	Opens int

	// LastFormat records the most recent OpenPlayback format.
	LastFormat audio.Format

	contexts []*Playback
}

var _ audio.Speaker = (*Speaker)(nil)

// OpenPlayback implements [audio.Speaker].
func (s *Speaker) OpenPlayback(_ context.Context, f audio.Format) (audio.PlaybackContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opens++
	s.LastFormat = f
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	p := &Playback{format: f}
	s.contexts = append(s.contexts, p)
	return p, nil
}

// Playback returns the most recently opened context, or nil.
func (s *Speaker) Playback() *Playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.contexts) == 0 {
		return nil
	}
	return s.contexts[len(s.contexts)-1]
}

// OpenContexts returns how many opened contexts have not been closed.
func (s *Speaker) OpenContexts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.contexts {
		if !p.IsClosed() {
			n++
		}
	}
	return n
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// ScheduleCall records one call to [Playback.Schedule].
type ScheduleCall struct {
	Buffer audio.Buffer
	At     time.Duration
	Now    time.Duration
}

// Playback is a mock [audio.PlaybackContext] with a manually driven clock.
type Playback struct {
	format audio.Format

	mu      sync.Mutex
	now     time.Duration
	closed  bool
	calls   []ScheduleCall
	sources []*Source

	// ScheduleErr, when non-nil, is returned by Schedule.
	ScheduleErr error

	// StartDelay pushes every scheduled source this much later than
	// requested, as a device clock rounding to whole frames might.
	StartDelay time.Duration
}

var _ audio.PlaybackContext = (*Playback)(nil)

// Now implements [audio.PlaybackContext].
func (p *Playback) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Schedule implements [audio.PlaybackContext].
func (p *Playback) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, audio.ErrClosed
	}
	if p.ScheduleErr != nil {
		return nil, p.ScheduleErr
	}
	p.calls = append(p.calls, ScheduleCall{Buffer: buf, At: at, Now: p.now})
	start := at + p.StartDelay
	src := &Source{Start: start, End: start + buf.Duration(), onEnded: onEnded}
	p.sources = append(p.sources, src)
	return src, nil
}

// Advance moves the clock forward by d and fires the end callback of every
// source that has finished by the new time, in start order.
func (p *Playback) Advance(d time.Duration) {
	p.mu.Lock()
	p.now += d
	now := p.now
	var fire []func()
	keep := p.sources[:0]
	for _, s := range p.sources {
		if s.stopped() {
			continue
		}
		if s.End <= now {
			if s.onEnded != nil {
				fire = append(fire, s.onEnded)
			}
			continue
		}
		keep = append(keep, s)
	}
	p.sources = keep
	p.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// SetNow moves the clock to t without firing callbacks.
func (p *Playback) SetNow(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = t
}

// Calls returns a copy of all Schedule calls so far.
func (p *Playback) Calls() []ScheduleCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ScheduleCall(nil), p.calls...)
}

// Playing returns how many scheduled sources have neither ended nor been
// stopped.
func (p *Playback) Playing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.sources {
		if !s.stopped() {
			n++
		}
	}
	return n
}

// Close implements [audio.PlaybackContext].
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (p *Playback) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Format returns the format the context was opened with.
func (p *Playback) Format() audio.Format { return p.format }

// Source is a mock [audio.Source].
type Source struct {
	Start, End time.Duration
	onEnded    func()

	mu   sync.Mutex
	stop bool
}

// Stop implements [audio.Source].
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop = true
}

// EndsAt implements [audio.Source].
func (s *Source) EndsAt() time.Duration { return s.End }

func (s *Source) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}
