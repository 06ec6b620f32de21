package device

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/dost/pkg/audio"
)

func TestCaptureErr(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantDenied bool
	}{
		{"access denied", malgo.ErrAccessDenied, true},
		{"wrapped access denied", errors.Join(errors.New("backend"), malgo.ErrAccessDenied), true},
		{"no device", malgo.ErrDoesNotExist, false},
		{"generic", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := captureErr("start capture", tt.err)
			if got := errors.Is(err, audio.ErrPermissionDenied); got != tt.wantDenied {
				t.Errorf("errors.Is(%v, ErrPermissionDenied) = %v, want %v", err, got, tt.wantDenied)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("%v does not wrap the malgo error", err)
			}
		})
	}
}

func f32le(vals ...float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func TestCaptureStream_KeepsNewestBlock(t *testing.T) {
	s := &captureStream{
		blockSize: 2,
		blocks:    make(chan []float32, 1),
		done:      make(chan struct{}),
	}

	s.onData(nil, f32le(0.1, 0.2, 0.3), 3)
	s.onData(nil, f32le(0.4, 0.5), 2)

	got, err := s.ReadBlock(context.Background())
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if len(got) != 2 || got[0] != 0.3 || got[1] != 0.4 {
		t.Errorf("block = %v, want [0.3 0.4]", got)
	}
	if n := s.dropped.Load(); n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
	if len(s.pending) != 1 || s.pending[0] != 0.5 {
		t.Errorf("pending = %v, want [0.5]", s.pending)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ReadBlock(context.Background()); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("ReadBlock after Close = %v, want ErrClosed", err)
	}
}
