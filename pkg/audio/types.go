package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Valid reports whether f has a positive sample rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Well-known formats of the realtime voice path.
var (
	// CaptureFormat is the microphone format sent to the remote agent.
	CaptureFormat = Format{SampleRate: 16000, Channels: 1}

	// PlaybackFormat is the format the remote agent answers in.
	PlaybackFormat = Format{SampleRate: 24000, Channels: 1}
)

// Blob is an encoded audio payload as it travels over the wire: base64 PCM
// plus a MIME type such as "audio/pcm;rate=16000".
type Blob struct {
	Data     string
	MIMEType string
}

// Buffer holds decoded float samples ready for playback. Samples are
// interleaved when Channels > 1 and normalised to [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns how long the buffer plays at its sample rate.
func (b Buffer) Duration() time.Duration {
	return FramesToDuration(int64(b.Frames()), b.SampleRate)
}

// Format returns the sample rate and channel count of b.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// FramesToDuration converts a frame count at rate Hz into a duration.
func FramesToDuration(frames int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(frames * int64(time.Second) / int64(rate))
}

// DurationToFrames converts d into a frame count at rate Hz, rounding to the
// nearest frame.
func DurationToFrames(d time.Duration, rate int) int64 {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}
