package resilience

import (
	"context"

	"github.com/MrWong99/hark/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across STT backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns a fallback provider with primary tried first.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *STTFallback) Group() *FallbackGroup[stt.Provider] { return f.group }

// Transcribe transcribes the segment with the first backend that succeeds.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, samples, sampleRate)
	})
}
