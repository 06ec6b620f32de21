package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/dost/pkg/audio"
)

// oto allows a single context per process; it is created on first use and
// suspended while no playback is open.
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoUsers  int
)

// Speaker plays through the system default output device.
type Speaker struct {
	// BufferSize is the device buffer length. Zero uses 100ms.
	BufferSize time.Duration
}

var _ audio.Speaker = Speaker{}

// OpenPlayback implements [audio.Speaker]. Every playback context opened in
// one process must use the same format.
func (s Speaker) OpenPlayback(ctx context.Context, f audio.Format) (audio.PlaybackContext, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("device: open playback: invalid format %s", f)
	}
	octx, err := acquireOto(ctx, f, s.bufferSize())
	if err != nil {
		return nil, err
	}

	tl := audio.NewTimeline(f)
	player := octx.NewPlayer(tl)
	player.Play()
	slog.Debug("device: playback started", "format", f.String())
	return &playback{Timeline: tl, player: player}, nil
}

func (s Speaker) bufferSize() time.Duration {
	if s.BufferSize > 0 {
		return s.BufferSize
	}
	return 100 * time.Millisecond
}

func acquireOto(ctx context.Context, f audio.Format, bufSize time.Duration) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx == nil {
		octx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufSize,
		})
		if err != nil {
			return nil, fmt.Errorf("device: init playback context: %w", err)
		}
		select {
		case <-ready:
		case <-ctx.Done():
			// The context finishes initialising in the background and is
			// reused by the next caller.
			otoCtx, otoFormat = octx, f
			return nil, ctx.Err()
		}
		otoCtx, otoFormat = octx, f
	} else if otoFormat != f {
		return nil, fmt.Errorf("%w: playback already running at %s, requested %s", audio.ErrFormatMismatch, otoFormat, f)
	}

	if otoUsers == 0 {
		if err := otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("device: resume playback: %w", err)
		}
	}
	otoUsers++
	return otoCtx, nil
}

func releaseOto() {
	otoMu.Lock()
	defer otoMu.Unlock()
	otoUsers--
	if otoUsers <= 0 {
		otoUsers = 0
		if err := otoCtx.Suspend(); err != nil {
			slog.Warn("device: suspend playback", "err", err)
		}
	}
}

// playback couples a Timeline with the oto player draining it.
type playback struct {
	*audio.Timeline
	player *oto.Player

	closeOnce sync.Once
}

func (p *playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if n := p.Timeline.Pending(); n > 0 {
			slog.Debug("device: dropping scheduled playback", "buffers", n)
		}
		_ = p.Timeline.Close()
		p.player.Pause()
		if cerr := p.player.Close(); cerr != nil {
			err = fmt.Errorf("device: close player: %w", cerr)
		}
		releaseOto()
	})
	return err
}
