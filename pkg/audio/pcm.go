package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"
)

// ErrOddPCM is returned when a PCM16 payload does not contain a whole number
// of samples.
var ErrOddPCM = errors.New("audio: pcm16 payload has odd byte count")

// PCMMIMEType returns the MIME type for raw little-endian PCM16 at rate Hz.
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParseRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000". ok is false when the parameter is absent or invalid.
func ParseRate(mimeType string) (rate int, ok bool) {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, false
	}
	v, found := params["rate"]
	if !found {
		return 0, false
	}
	rate, err = strconv.Atoi(strings.TrimSpace(v))
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// FloatToPCM16 converts float samples to little-endian int16 PCM by scaling
// with 32768 and clamping to the int16 range, so +1.0 maps to 32767 and -1.0
// to -32768. NaN is treated as silence.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	v := float64(s) * 32768
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}

// PCM16ToFloat decodes little-endian int16 PCM into floats normalised by
// 32768. It returns [ErrOddPCM] when pcm has an odd length.
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCM, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out, nil
}

// RMS returns the root-mean-square level of block. An empty block is 0.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}

// Volume maps a capture block to the 0..100 level shown to users:
// min(100, RMS*500).
func Volume(block []float32) float64 {
	return math.Min(100, RMS(block)*500)
}

// EncodeBlob clamps and converts samples to PCM16, base64-encodes them and
// labels the result with the PCM MIME type for rate.
func EncodeBlob(samples []float32, rate int) Blob {
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(FloatToPCM16(samples)),
		MIMEType: PCMMIMEType(rate),
	}
}

// DecodeBlob turns an inbound blob into a playable [Buffer]. The sample rate
// comes from the blob's MIME type, falling back to def.SampleRate; audio at a
// different rate or channel count than def is converted to def.
func DecodeBlob(b Blob, def Format) (Buffer, error) {
	pcm, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode base64: %w", err)
	}
	src := Format{SampleRate: def.SampleRate, Channels: 1}
	if rate, ok := ParseRate(b.MIMEType); ok {
		src.SampleRate = rate
	}
	pcm, err = Conform(pcm, src, def)
	if err != nil {
		return Buffer{}, err
	}
	samples, err := PCM16ToFloat(pcm)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{Samples: samples, SampleRate: def.SampleRate, Channels: def.Channels}, nil
}
