package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

// Timeline is a pull-driven [PlaybackContext]. An output device reads
// rendered float32 little-endian samples from it through [Timeline.Read]; the
// clock advances by exactly the number of frames read, so Now reflects how
// much audio has been handed to the device.
//
// Scheduled buffers never overlap: a buffer whose start falls before the end
// of the previous one (frame rounding) or before the clock is moved forward.
type Timeline struct {
	format Format

	mu      sync.Mutex
	pos     int64 // frames rendered
	lastEnd int64
	queue   []*timelineSource // ordered by start
	closed  bool
}

var _ PlaybackContext = (*Timeline)(nil)
var _ io.Reader = (*Timeline)(nil)

// NewTimeline creates a timeline rendering in format f.
func NewTimeline(f Format) *Timeline {
	return &Timeline{format: f}
}

// Format returns the format the timeline renders in.
func (t *Timeline) Format() Format { return t.format }

// Now implements [PlaybackContext].
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return FramesToDuration(t.pos, t.format.SampleRate)
}

// Schedule implements [PlaybackContext].
func (t *Timeline) Schedule(buf Buffer, at time.Duration, onEnded func()) (Source, error) {
	if buf.Format() != t.format {
		return nil, ErrFormatMismatch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	start := max(DurationToFrames(at, t.format.SampleRate), t.pos, t.lastEnd)
	src := &timelineSource{
		tl:      t,
		start:   start,
		end:     start + int64(buf.Frames()),
		samples: buf.Samples,
		onEnded: onEnded,
	}
	t.lastEnd = src.end

	i := sort.Search(len(t.queue), func(i int) bool { return t.queue[i].start > start })
	t.queue = append(t.queue, nil)
	copy(t.queue[i+1:], t.queue[i:])
	t.queue[i] = src
	return src, nil
}

// Read renders the next len(p)/(4*channels) frames into p. Frames not covered
// by any scheduled buffer are silence. It returns [io.EOF] once the timeline
// is closed.
func (t *Timeline) Read(p []byte) (int, error) {
	ch := t.format.Channels
	frameBytes := 4 * ch
	frames := len(p) / frameBytes

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}

	var ended []func()
	for f := range frames {
		at := t.pos + int64(f)
		for len(t.queue) > 0 && t.queue[0].end <= at {
			ended = appendEnded(ended, t.queue[0])
			t.queue = t.queue[1:]
		}
		var src *timelineSource
		if len(t.queue) > 0 && t.queue[0].start <= at {
			src = t.queue[0]
		}
		for c := range ch {
			var v float32
			if src != nil {
				v = src.samples[int(at-src.start)*ch+c]
			}
			binary.LittleEndian.PutUint32(p[f*frameBytes+c*4:], math.Float32bits(v))
		}
	}
	t.pos += int64(frames)
	for len(t.queue) > 0 && t.queue[0].end <= t.pos {
		ended = appendEnded(ended, t.queue[0])
		t.queue = t.queue[1:]
	}
	t.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return frames * frameBytes, nil
}

// Pending returns the number of scheduled buffers that have not finished.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close implements [PlaybackContext]. Pending sources are dropped without
// their end callbacks.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.queue = nil
	return nil
}

func appendEnded(fns []func(), s *timelineSource) []func() {
	if s.onEnded != nil {
		fns = append(fns, s.onEnded)
	}
	return fns
}

type timelineSource struct {
	tl         *Timeline
	start, end int64
	samples    []float32
	onEnded    func()
}

func (s *timelineSource) EndsAt() time.Duration {
	return FramesToDuration(s.end, s.tl.format.SampleRate)
}

func (s *timelineSource) Stop() {
	t := s.tl
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.queue {
		if q == s {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return
		}
	}
}
