// Package espeak drives the espeak / espeak-ng command line synthesizer.
//
// Speak lets espeak play on the default output device itself. Synthesize
// asks it for a WAV on stdout instead, for callers that route audio through
// their own player.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

const (
	defaultBinary = "espeak"
	defaultVoice  = "en"
	defaultSpeed  = 150
)

var (
	_ tts.Synthesizer = (*Engine)(nil)
	_ tts.Speaker     = (*Engine)(nil)
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithBinary sets the executable to run, e.g. "espeak-ng". Defaults to
// "espeak".
func WithBinary(path string) Option {
	return func(e *Engine) { e.binary = path }
}

// WithVoice sets the espeak voice (-v), e.g. "en-us" or "de". Defaults to
// "en".
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithSpeed sets the speaking rate in words per minute (-s). Defaults to 150.
func WithSpeed(wpm int) Option {
	return func(e *Engine) { e.speed = wpm }
}

// WithPitch sets the pitch adjustment (-p, 0-99). Zero keeps espeak's
// default.
func WithPitch(pitch int) Option {
	return func(e *Engine) { e.pitch = pitch }
}

// Engine is an espeak process wrapper. Each call runs a fresh process, so an
// Engine is safe for concurrent use.
type Engine struct {
	binary string
	voice  string
	speed  int
	pitch  int
}

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{
		binary: defaultBinary,
		voice:  defaultVoice,
		speed:  defaultSpeed,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Speak plays text on the default output device and waits for espeak to exit.
func (e *Engine) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if _, err := e.run(ctx, text, false); err != nil {
		return err
	}
	return nil
}

// Synthesize renders text to a clip via espeak's --stdout WAV output.
func (e *Engine) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}
	wav, err := e.run(ctx, text, true)
	if err != nil {
		return audio.Clip{}, err
	}
	clip, err := audio.DecodeWAVBytes(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("espeak: %w", err)
	}
	return clip, nil
}

// args builds the command line for text.
func (e *Engine) args(text string, stdout bool) []string {
	args := []string{"-v", e.voice, "-s", strconv.Itoa(e.speed)}
	if e.pitch > 0 {
		args = append(args, "-p", strconv.Itoa(e.pitch))
	}
	if stdout {
		args = append(args, "--stdout")
	}
	// "--" keeps text starting with a dash from being read as a flag.
	return append(args, "--", text)
}

func (e *Engine) run(ctx context.Context, text string, stdout bool) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.binary, e.args(text, stdout)...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("espeak: %s not found, install espeak or espeak-ng: %w", e.binary, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("espeak: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("espeak: %w", err)
	}
	return out.Bytes(), nil
}
