// Package device implements the audio device contracts on top of the host's
// sound system: malgo (miniaudio) for microphone capture and oto for speaker
// output. Both libraries use cgo on most platforms.
package device

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/dost/pkg/audio"
)

// blockBacklog is how many complete capture blocks may queue before the
// oldest is dropped.
const blockBacklog = 16

// Microphone captures from the system default input device.
type Microphone struct{}

var _ audio.Microphone = Microphone{}

// OpenCapture implements [audio.Microphone]. Samples are captured as 32-bit
// float at f's rate and channel count; miniaudio converts from the device's
// native format.
func (Microphone) OpenCapture(ctx context.Context, f audio.Format, blockSize int) (audio.CaptureStream, error) {
	if !f.Valid() || blockSize <= 0 {
		return nil, fmt.Errorf("device: open capture: invalid format %s or block size %d", f, blockSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, captureErr("init audio context", err)
	}

	s := &captureStream{
		mctx:      mctx,
		blockSize: blockSize * f.Channels,
		blocks:    make(chan []float32, blockBacklog),
		done:      make(chan struct{}),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.SampleRate = uint32(f.SampleRate)

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		s.releaseContext()
		return nil, captureErr("init capture device", err)
	}
	s.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		s.releaseContext()
		return nil, captureErr("start capture", err)
	}
	slog.Debug("device: capture started", "format", f.String(), "block_size", blockSize)
	return s, nil
}

// captureErr wraps a malgo acquisition failure. An access refusal from the
// OS also matches [audio.ErrPermissionDenied].
func captureErr(op string, err error) error {
	if errors.Is(err, malgo.ErrAccessDenied) {
		return fmt.Errorf("device: %s: %w: %w", op, audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("device: %s: %w", op, err)
}

type captureStream struct {
	mctx      *malgo.AllocatedContext
	dev       *malgo.Device
	blockSize int

	// pending is only touched from the malgo data callback.
	pending []float32
	dropped atomic.Int64

	blocks    chan []float32
	done      chan struct{}
	closeOnce sync.Once
}

func (s *captureStream) onData(_, in []byte, _ uint32) {
	for i := 0; i+4 <= len(in); i += 4 {
		s.pending = append(s.pending, math.Float32frombits(binary.LittleEndian.Uint32(in[i:])))
	}
	for len(s.pending) >= s.blockSize {
		block := make([]float32, s.blockSize)
		copy(block, s.pending)
		s.pending = append(s.pending[:0], s.pending[s.blockSize:]...)
		s.deliver(block)
	}
}

func (s *captureStream) deliver(block []float32) {
	select {
	case s.blocks <- block:
		return
	default:
	}
	// Reader fell behind: drop the oldest block and keep the newest.
	select {
	case <-s.blocks:
		s.dropped.Add(1)
	default:
	}
	select {
	case s.blocks <- block:
	default:
	}
}

// ReadBlock implements [audio.CaptureStream].
func (s *captureStream) ReadBlock(ctx context.Context) ([]float32, error) {
	select {
	case <-s.done:
		return nil, audio.ErrClosed
	case b := <-s.blocks:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements [audio.CaptureStream].
func (s *captureStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.dev != nil {
			if stopErr := s.dev.Stop(); stopErr != nil {
				err = fmt.Errorf("device: stop capture: %w", stopErr)
			}
			s.dev.Uninit()
		}
		s.releaseContext()
		if n := s.dropped.Load(); n > 0 {
			slog.Warn("device: capture blocks dropped", "count", n)
		}
	})
	return err
}

func (s *captureStream) releaseContext() {
	if s.mctx == nil {
		return
	}
	_ = s.mctx.Uninit()
	s.mctx.Free()
	s.mctx = nil
}
