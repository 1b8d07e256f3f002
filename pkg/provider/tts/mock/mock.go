// Package mock provides test doubles for the tts package interfaces.
//
// Synthesizer returns scripted clips; Speaker records what it was asked to
// say. Both are safe for concurrent use.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

// ─── Synthesizer ─────────────────────────────────────────────────────────────

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Clip is returned for every non-empty text.
	Clip audio.Clip

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Texts records every text passed to Synthesize.
	Texts []string
}

// Synthesize records text and returns Clip or Err.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = append(s.Texts, text)
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	if s.Err != nil {
		return audio.Clip{}, s.Err
	}
	if strings.TrimSpace(text) == "" {
		return audio.Clip{}, nil
	}
	return s.Clip, nil
}

// CallCount returns the number of Synthesize calls.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}

// ─── Speaker ─────────────────────────────────────────────────────────────────

// Speaker is a mock implementation of tts.Speaker.
type Speaker struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Speak call.
	Err error

	// Spoken records every non-empty text passed to Speak.
	Spoken []string
}

// Speak records text and returns Err.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, text)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Err
}

// Said returns a copy of everything spoken so far.
func (s *Speaker) Said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Spoken...)
}

var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.Speaker     = (*Speaker)(nil)
)
