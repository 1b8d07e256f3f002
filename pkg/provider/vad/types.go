package vad

import (
	"errors"
	"fmt"
	"time"
)

// Params is the tunable parameter set shared by the classifier and the
// segmenter. Durations are in milliseconds.
//
// Params are not clamped anywhere in the capture core. Callers that accept
// user input should run [Params.Validate] first.
type Params struct {
	// EnergyThreshold is the mean-square energy above which a window counts as
	// loud enough for speech. Half of it is the per-sample activity level.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// FreqThreshold is the lower bound (Hz) of the zero-crossing frequency
	// estimate for speech.
	FreqThreshold float64 `yaml:"freq_threshold"`

	// MinSpeechMs is the consecutive speech needed before an utterance starts.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSilenceMs is the consecutive silence that ends an utterance.
	MaxSilenceMs int `yaml:"max_silence_ms"`

	// PaddingMs is the audio kept before the detected onset and after the end
	// of speech.
	PaddingMs int `yaml:"padding_ms"`

	// BufferHistoryMs is the capacity of the pre-roll history ring.
	BufferHistoryMs int `yaml:"buffer_history_ms"`

	// WindowMs is the length of the suffix of recent audio that is classified
	// on every frame.
	WindowMs int `yaml:"window_ms"`

	// EarlyExit shortens the silence timeout after long utterances.
	EarlyExit EarlyExit `yaml:"early_exit"`
}

// EarlyExit ends an utterance after MaxSilenceMs/SilenceDivisor of silence
// once more than SpeechMs of speech has accumulated.
type EarlyExit struct {
	// SpeechMs is the accumulated speech required to arm the early exit.
	// Zero disables it.
	SpeechMs int `yaml:"speech_ms"`

	// SilenceDivisor divides MaxSilenceMs to obtain the shortened timeout.
	SilenceDivisor int `yaml:"silence_divisor"`
}

// Enabled reports whether the early exit can ever trigger.
func (e EarlyExit) Enabled() bool {
	return e.SpeechMs > 0 && e.SilenceDivisor > 0
}

// DefaultParams returns the parameter set used when no configuration is given.
func DefaultParams() Params {
	return Params{
		EnergyThreshold: 0.6,
		FreqThreshold:   100,
		MinSpeechMs:     300,
		MaxSilenceMs:    1000,
		PaddingMs:       500,
		BufferHistoryMs: 30000,
		WindowMs:        100,
		EarlyExit: EarlyExit{
			SpeechMs:       1000,
			SilenceDivisor: 3,
		},
	}
}

// Validate reports every field that a caller must not pass to the capture
// core: negative thresholds or durations and an empty history or window.
func (p Params) Validate() error {
	var errs []error
	if p.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("energy_threshold must be >= 0, got %g", p.EnergyThreshold))
	}
	if p.FreqThreshold < 0 {
		errs = append(errs, fmt.Errorf("freq_threshold must be >= 0, got %g", p.FreqThreshold))
	}
	for _, d := range []struct {
		name string
		v    int
	}{
		{"min_speech_ms", p.MinSpeechMs},
		{"max_silence_ms", p.MaxSilenceMs},
		{"padding_ms", p.PaddingMs},
		{"early_exit.speech_ms", p.EarlyExit.SpeechMs},
		{"early_exit.silence_divisor", p.EarlyExit.SilenceDivisor},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", d.name, d.v))
		}
	}
	if p.BufferHistoryMs <= 0 {
		errs = append(errs, fmt.Errorf("buffer_history_ms must be > 0, got %d", p.BufferHistoryMs))
	}
	if p.WindowMs <= 0 {
		errs = append(errs, fmt.Errorf("window_ms must be > 0, got %d", p.WindowMs))
	}
	if len(errs) > 0 {
		return fmt.Errorf("vad: invalid params: %w", errors.Join(errs...))
	}
	return nil
}

// MinSpeech returns MinSpeechMs as a duration.
func (p Params) MinSpeech() time.Duration { return ms(p.MinSpeechMs) }

// MaxSilence returns MaxSilenceMs as a duration.
func (p Params) MaxSilence() time.Duration { return ms(p.MaxSilenceMs) }

// Padding returns PaddingMs as a duration.
func (p Params) Padding() time.Duration { return ms(p.PaddingMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
