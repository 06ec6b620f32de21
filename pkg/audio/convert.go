package audio

import (
	"encoding/binary"
	"fmt"
)

// Conform converts interleaved little-endian PCM16 from one format to
// another. Channels are mixed before resampling when the target has fewer of
// them and after it otherwise, so the resampler always works on the smaller
// layout. Any layout can be mixed down to mono and mono can be spread to any
// layout; other channel changes are rejected.
func Conform(pcm []byte, from, to Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCM, len(pcm))
	}
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("audio: conform %s -> %s: invalid format", from, to)
	}
	if from == to {
		return pcm, nil
	}
	if from.Channels != to.Channels && from.Channels != 1 && to.Channels != 1 {
		return nil, fmt.Errorf("audio: conform %s -> %s: cannot remap channels", from, to)
	}
	if frame := 2 * from.Channels; len(pcm)%frame != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole %d-channel frame", ErrOddPCM, len(pcm), from.Channels)
	}

	if to.Channels < from.Channels {
		pcm = downmix(pcm, from.Channels)
		return resample(pcm, 1, from.SampleRate, to.SampleRate), nil
	}
	pcm = resample(pcm, from.Channels, from.SampleRate, to.SampleRate)
	if to.Channels > from.Channels {
		pcm = spread(pcm, to.Channels)
	}
	return pcm, nil
}

// ResampleMono16 changes the rate of mono PCM16 by linear interpolation. The
// input is returned as is when either rate is not positive or both match.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

func sample(pcm []byte, i int) int32 {
	return int32(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
}

func putSample(pcm []byte, i int, v int32) {
	binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(min(max(v, -32768), 32767))))
}

// downmix averages each frame of an n-channel stream into one sample.
func downmix(pcm []byte, n int) []byte {
	frames := len(pcm) / (2 * n)
	out := make([]byte, frames*2)
	for f := range frames {
		var sum int32
		for c := range n {
			sum += sample(pcm, f*n+c)
		}
		putSample(out, f, sum/int32(n))
	}
	return out
}

// spread writes each mono sample to n channels.
func spread(pcm []byte, n int) []byte {
	frames := len(pcm) / 2
	out := make([]byte, frames*2*n)
	for f := range frames {
		v := sample(pcm, f)
		for c := range n {
			putSample(out, f*n+c, v)
		}
	}
	return out
}

// resample converts interleaved n-channel PCM16 between rates. The output
// holds floor(frames*dst/src) frames; the last source frame is held when
// interpolation runs past the end.
func resample(pcm []byte, n, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcFrames := len(pcm) / (2 * n)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*2*n)
	step := float64(srcRate) / float64(dstRate)
	for f := range dstFrames {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		next := min(i+1, srcFrames-1)
		for c := range n {
			a, b := float64(sample(pcm, i*n+c)), float64(sample(pcm, next*n+c))
			putSample(out, f*n+c, int32(a+(b-a)*frac))
		}
	}
	return out
}

// formatString renders a rate and channel count, e.g. "24000Hz mono".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
