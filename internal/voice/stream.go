package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/dost/pkg/audio"
	"github.com/MrWong99/dost/pkg/provider/live"
)

// captureLoop reads microphone blocks, reports their level and streams them
// to the agent until ctx is cancelled or an error occurs. A failure while the
// run is still current ends the session.
func (s *Session) captureLoop(ctx context.Context, gen uint64, capture audio.CaptureStream, handle live.Handle, done chan<- struct{}) {
	defer close(done)
	for {
		block, err := capture.ReadBlock(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.fail(gen, fmt.Errorf("%w: read microphone: %w", ErrTransport, err))
			}
			return
		}

		level := audio.Volume(block)
		if !s.setVolume(gen, level) {
			return
		}
		if s.onVolume != nil {
			s.onVolume(level)
		}

		if err := handle.Send(audio.EncodeBlob(block, s.cfg.Capture.SampleRate)); err != nil {
			if ctx.Err() == nil {
				s.fail(gen, fmt.Errorf("%w: send audio: %w", ErrTransport, err))
			}
			return
		}
		s.metrics.AudioFramesSent.Add(ctx, 1)
	}
}

// setVolume stores the latest input level. It reports false when run gen is
// no longer active.
func (s *Session) setVolume(gen uint64, level float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateActive {
		return false
	}
	s.volume = level
	return true
}

// fail ends run gen because of err. It runs on the capture goroutine, so it
// must not wait for that goroutine to exit.
func (s *Session) fail(gen uint64, err error) {
	s.teardown(gen, false, err)
}

// handleMessage decodes every inline audio part of msg and schedules it
// back-to-back on the playback clock. Text and transcriptions are forwarded
// to the transcript listener.
func (s *Session) handleMessage(gen uint64, msg live.Message) {
	for _, blob := range msg.Audio {
		s.metrics.AudioFramesReceived.Add(context.Background(), 1)
		s.playBlob(gen, blob)
	}

	if s.onTranscript == nil {
		return
	}
	if msg.InputTranscript != "" {
		s.onTranscript(Transcript{Speaker: "user", Text: msg.InputTranscript})
	}
	if msg.OutputTranscript != "" {
		s.onTranscript(Transcript{Speaker: "model", Text: msg.OutputTranscript})
	}
	if msg.Text != "" {
		s.onTranscript(Transcript{Speaker: "model", Text: msg.Text})
	}
}

func (s *Session) playBlob(gen uint64, blob audio.Blob) {
	buf, err := audio.DecodeBlob(blob, s.cfg.Playback)
	if err != nil {
		slog.Warn("voice: dropping undecodable audio", "mime", blob.MIMEType, "err", err)
		return
	}
	if buf.Frames() == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != StateActive || s.playback == nil {
		return
	}

	start := max(s.cursor, s.playback.Now())
	id := s.nextSource
	s.nextSource++
	src, err := s.playback.Schedule(buf, start, func() { s.sourceEnded(gen, id) })
	if err != nil {
		if !errors.Is(err, audio.ErrClosed) {
			slog.Warn("voice: schedule playback", "err", err)
		}
		return
	}
	s.cursor = src.EndsAt()
	s.live[id] = src
	s.metrics.BuffersScheduled.Add(context.Background(), 1)
}

func (s *Session) sourceEnded(gen uint64, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	delete(s.live, id)
}
