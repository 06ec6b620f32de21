package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/dost/pkg/audio"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func equalSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConform_MonoToStereo(t *testing.T) {
	stereo := audio.Format{SampleRate: 24000, Channels: 2}
	out, err := audio.Conform(samplesToBytes([]int16{100, -200}), audio.PlaybackFormat, stereo)
	if err != nil {
		t.Fatalf("Conform: %v", err)
	}
	equalSamples(t, bytesToSamples(out), []int16{100, 100, -200, -200})
}

func TestConform_StereoToMonoAveragesAndClamps(t *testing.T) {
	stereo := audio.Format{SampleRate: 24000, Channels: 2}
	out, err := audio.Conform(samplesToBytes([]int16{100, 200, 32767, 32767}), stereo, audio.PlaybackFormat)
	if err != nil {
		t.Fatalf("Conform: %v", err)
	}
	equalSamples(t, bytesToSamples(out), []int16{150, 32767})
}

func TestResampleMono16_Upsample(t *testing.T) {
	// 16 kHz to 24 kHz: 2 samples become 3.
	got := bytesToSamples(audio.ResampleMono16(samplesToBytes([]int16{1000, 2000}), 16000, 24000))
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
}

func TestResampleMono16_InvalidRateUnchanged(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	for _, rates := range [][2]int{{0, 24000}, {24000, 0}, {-1, 24000}, {24000, 24000}} {
		if out := audio.ResampleMono16(pcm, rates[0], rates[1]); len(out) != len(pcm) {
			t.Errorf("rates %v: expected unchanged output, got len %d", rates, len(out))
		}
	}
}

func TestConform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        []int16
		from, to  audio.Format
		wantLen   int
		wantFirst int16
	}{
		{
			name:      "same format passes through",
			in:        []int16{1, 2, 3},
			from:      audio.PlaybackFormat,
			to:        audio.PlaybackFormat,
			wantLen:   3,
			wantFirst: 1,
		},
		{
			name:      "16k mono to 24k mono",
			in:        []int16{500, 500, 500, 500},
			from:      audio.CaptureFormat,
			to:        audio.PlaybackFormat,
			wantLen:   6,
			wantFirst: 500,
		},
		{
			name:      "24k stereo to 24k mono",
			in:        []int16{100, 300, 100, 300},
			from:      audio.Format{SampleRate: 24000, Channels: 2},
			to:        audio.PlaybackFormat,
			wantLen:   2,
			wantFirst: 200,
		},
		{
			name:      "48k 6ch to 24k mono",
			in:        []int16{60, 60, 60, 60, 60, 60, 0, 0, 0, 0, 0, 0},
			from:      audio.Format{SampleRate: 48000, Channels: 6},
			to:        audio.PlaybackFormat,
			wantLen:   1,
			wantFirst: 60,
		},
		{
			name:      "16k mono to 24k stereo",
			in:        []int16{-400, -400},
			from:      audio.CaptureFormat,
			to:        audio.Format{SampleRate: 24000, Channels: 2},
			wantLen:   6,
			wantFirst: -400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := audio.Conform(samplesToBytes(tt.in), tt.from, tt.to)
			if err != nil {
				t.Fatalf("Conform: %v", err)
			}
			got := bytesToSamples(out)
			if len(got) != tt.wantLen {
				t.Fatalf("got %d samples, want %d", len(got), tt.wantLen)
			}
			if got[0] != tt.wantFirst {
				t.Errorf("first sample: got %d, want %d", got[0], tt.wantFirst)
			}
		})
	}
}

func TestConform_Errors(t *testing.T) {
	t.Parallel()

	if _, err := audio.Conform([]byte{1, 2, 3}, audio.PlaybackFormat, audio.PlaybackFormat); !errors.Is(err, audio.ErrOddPCM) {
		t.Errorf("odd bytes: got %v, want ErrOddPCM", err)
	}
	if _, err := audio.Conform([]byte{0, 0}, audio.Format{}, audio.PlaybackFormat); err == nil {
		t.Error("invalid source format: expected error")
	}
	stereo := audio.Format{SampleRate: 24000, Channels: 2}
	surround := audio.Format{SampleRate: 24000, Channels: 6}
	if _, err := audio.Conform(make([]byte, 24), stereo, surround); err == nil {
		t.Error("stereo to 6 channels: expected error")
	}
	if _, err := audio.Conform(make([]byte, 6), stereo, audio.PlaybackFormat); !errors.Is(err, audio.ErrOddPCM) {
		t.Errorf("partial stereo frame: got %v, want ErrOddPCM", err)
	}
}
