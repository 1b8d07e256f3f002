package stt

import (
	"strings"
	"time"
)

// Transcript is the result of transcribing one segment.
type Transcript struct {
	// Text is the transcribed speech content, trimmed of surrounding space.
	Text string

	// Confidence is the overall confidence score (0.0-1.0). Zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when the provider reports it.
	Words []WordDetail

	// Language is the language the engine transcribed in, if known.
	Language string

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Empty reports whether the transcript carries no text.
func (t Transcript) Empty() bool { return strings.TrimSpace(t.Text) == "" }

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a term the engine should favour during recognition, such as
// the assistant's wake or exit words.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// SegmentDuration returns the play time of n samples at sampleRate.
func SegmentDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
