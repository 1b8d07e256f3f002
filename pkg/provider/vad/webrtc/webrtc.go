// Package webrtc implements a [vad.Classifier] backed by libfvad, the
// standalone build of the WebRTC voice activity detector
// (github.com/josharian/fvad).
//
// libfvad only accepts 10, 20 or 30 ms frames at 8, 16, 32 or 48 kHz. The
// window is split into the largest frames that fit and the window counts as
// speech when at least half of its analysed duration is voiced.
package webrtc

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/josharian/fvad"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// DefaultMode is the libfvad aggressiveness used when none is configured.
const DefaultMode = 2

// Option is a functional option for [Classifier].
type Option func(*Classifier)

// WithMode sets the libfvad aggressiveness, from 0 (least aggressive about
// filtering out non-speech) to 3 (most aggressive).
func WithMode(mode int) Option {
	return func(c *Classifier) { c.mode = mode }
}

// Classifier wraps a libfvad detector. The detector is (re)created whenever
// the sample rate changes.
type Classifier struct {
	mode int

	mu       sync.Mutex
	detector *fvad.Detector
	rate     int
}

var _ vad.Classifier = (*Classifier)(nil)

// New returns a Classifier. The mode is validated eagerly.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{mode: DefaultMode}
	for _, o := range opts {
		o(c)
	}
	if c.mode < 0 || c.mode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode must be in [0, 3], got %d", c.mode)
	}
	return c, nil
}

// Classify implements [vad.Classifier]. Energy and frequency thresholds in p
// are ignored; libfvad has its own model.
func (c *Classifier) Classify(window []float32, sampleRate int, _ vad.Params) bool {
	if len(window) == 0 {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureDetector(sampleRate); err != nil {
		slog.Warn("webrtc vad: detector unavailable", "sample_rate", sampleRate, "err", err)
		return false
	}

	frame10 := sampleRate / 100
	var voiced, total int
	for rest := audio.Float32ToS16(window); len(rest) >= frame10; {
		var n int
		switch {
		case len(rest) >= 3*frame10:
			n = 3 * frame10
		case len(rest) >= 2*frame10:
			n = 2 * frame10
		default:
			n = frame10
		}
		active, err := c.detector.Process(rest[:n])
		if err != nil {
			slog.Warn("webrtc vad: process frame", "err", err)
			return false
		}
		if active {
			voiced += n
		}
		total += n
		rest = rest[n:]
	}
	return total > 0 && voiced*2 >= total
}

// Close releases the libfvad detector.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detector != nil {
		c.detector.Close()
		c.detector = nil
	}
	return nil
}

func (c *Classifier) ensureDetector(sampleRate int) error {
	if c.detector != nil && c.rate == sampleRate {
		return nil
	}
	if c.detector != nil {
		c.detector.Close()
		c.detector = nil
	}

	d := fvad.NewDetector()
	if err := d.SetSampleRate(sampleRate); err != nil {
		d.Close()
		return fmt.Errorf("set sample rate: %w", err)
	}
	if err := d.SetMode(c.mode); err != nil {
		d.Close()
		return fmt.Errorf("set mode: %w", err)
	}
	c.detector = d
	c.rate = sampleRate
	return nil
}
