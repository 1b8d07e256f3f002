package resilience

import (
	"context"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

// TTSFallback is a [tts.Synthesizer] that fails over across synthesis
// engines. Engines that only speak directly cannot take part; wrap the
// result with [tts.NewSpeaker] for playback.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback returns a fallback synthesizer with primary tried first.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another engine.
func (f *TTSFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Group exposes the underlying group for health reporting.
func (f *TTSFallback) Group() *FallbackGroup[tts.Synthesizer] { return f.group }

// Synthesize renders text with the first engine that succeeds.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	return ExecuteWithResult(ctx, f.group, func(s tts.Synthesizer) (audio.Clip, error) {
		return s.Synthesize(ctx, text)
	})
}
