// Package tts defines the speech synthesis interfaces.
//
// Every engine is a [Synthesizer]: text in, an [audio.Clip] out. Engines that
// can drive the sound card themselves (espeak) are also a [Speaker].
// [NewSpeaker] turns any engine into a Speaker, playing synthesized clips
// through an [audio.Player] when the engine cannot speak on its own.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/hark/pkg/audio"
)

// Engine names a speech synthesis backend.
type Engine string

// Supported engines.
const (
	EngineEspeak     Engine = "espeak"
	EnginePiper      Engine = "piper"
	EngineCoqui      Engine = "coqui"
	EngineElevenLabs Engine = "elevenlabs"
)

// Engines lists every supported engine.
var Engines = []Engine{EngineEspeak, EnginePiper, EngineCoqui, EngineElevenLabs}

// ParseEngine maps a configuration string onto an Engine.
func ParseEngine(s string) (Engine, error) {
	e := Engine(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Engines {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("tts: unknown engine %q", s)
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	// Synthesize returns the spoken rendition of text. Empty text yields an
	// empty clip and no error.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Speaker says text out loud and returns once playback has finished.
type Speaker interface {
	// Speak is a no-op for empty text.
	Speak(ctx context.Context, text string) error
}

// NewSpeaker returns engine itself when it can speak on its own, otherwise a
// Speaker that synthesizes through engine and plays through player.
func NewSpeaker(engine Synthesizer, player audio.Player) Speaker {
	if s, ok := engine.(Speaker); ok {
		return s
	}
	return &playbackSpeaker{engine: engine, player: player}
}

// NewPlaybackSpeaker always synthesizes through engine and plays through
// player, even when engine could speak on its own. It is used when the output
// device is chosen explicitly.
func NewPlaybackSpeaker(engine Synthesizer, player audio.Player) Speaker {
	return &playbackSpeaker{engine: engine, player: player}
}

// playbackSpeaker pairs a Synthesizer with an audio.Player.
type playbackSpeaker struct {
	engine Synthesizer
	player audio.Player
}

func (s *playbackSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	clip, err := s.engine.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if len(clip.PCM) == 0 {
		return nil
	}
	if err := s.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("tts: play: %w", err)
	}
	return nil
}
