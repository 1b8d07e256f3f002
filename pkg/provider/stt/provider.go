// Package stt defines the Provider interface for speech-to-text backends.
//
// The capture core hands off one bounded utterance at a time, so providers
// work in batch mode: a finished segment of normalised mono samples goes in,
// a single [Transcript] comes out. Providers that are streaming engines under
// the hood (Deepgram) open a stream per call and close it once the segment has
// been sent.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Provider transcribes a complete speech segment.
type Provider interface {
	// Transcribe converts samples (mono, normalised to [-1, 1]) recorded at
	// sampleRate into text. An empty Transcript with a nil error means the
	// engine heard nothing it could transcribe.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Transcript, error)
}
