package audio

import "time"

// Clip is a finished block of 16-bit PCM audio, typically the output of a
// speech synthesiser.
type Clip struct {
	// PCM holds interleaved signed 16-bit samples.
	PCM []int16

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// Duration returns the playback length of the clip. Returns 0 for a clip
// without a valid format.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// SamplesFor returns the number of samples that cover d at sampleRate.
func SamplesFor(d time.Duration, sampleRate int) int {
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// SamplesForMs is [SamplesFor] for millisecond durations, the unit used by the
// VAD configuration.
func SamplesForMs(ms, sampleRate int) int {
	return int(int64(ms) * int64(sampleRate) / 1000)
}
