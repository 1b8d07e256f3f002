// Package piper drives the piper neural TTS command line tool.
//
// piper reads text on stdin and writes a WAV file; the voice model is looked
// up as <model dir>/<voice>/model.onnx.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/tts"
)

const (
	defaultBinary   = "piper"
	defaultModelDir = "piper-voices"
	defaultVoice    = "en_US-amy-medium"
)

var _ tts.Synthesizer = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithBinary sets the piper executable. Defaults to "piper".
func WithBinary(path string) Option {
	return func(e *Engine) { e.binary = path }
}

// WithModelDir sets the directory holding one sub-directory per voice.
func WithModelDir(dir string) Option {
	return func(e *Engine) { e.modelDir = dir }
}

// WithVoice selects the voice sub-directory. Defaults to "en_US-amy-medium".
func WithVoice(voice string) Option {
	return func(e *Engine) { e.voice = voice }
}

// WithSpeaker selects a speaker of a multi-speaker model.
func WithSpeaker(id int) Option {
	return func(e *Engine) { e.speaker = &id }
}

// Engine is a piper process wrapper. Each call runs a fresh process and uses
// its own temporary output file.
type Engine struct {
	binary   string
	modelDir string
	voice    string
	speaker  *int
}

// New returns an Engine with the given options applied.
func New(opts ...Option) *Engine {
	e := &Engine{
		binary:   defaultBinary,
		modelDir: defaultModelDir,
		voice:    defaultVoice,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ModelPath returns the path of the onnx model for the configured voice.
func (e *Engine) ModelPath() string {
	return filepath.Join(e.modelDir, e.voice, "model.onnx")
}

// Synthesize renders text to a clip.
func (e *Engine) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}

	out, err := os.CreateTemp("", "hark-piper-*.wav")
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: create output file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()
	defer func() { _ = os.Remove(outPath) }()

	args := []string{"--model", e.ModelPath(), "--output_file", outPath}
	if e.speaker != nil {
		args = append(args, "--speaker", strconv.Itoa(*e.speaker))
	}
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = strings.NewReader(text + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return audio.Clip{}, fmt.Errorf("piper: %s not found, install with pip install piper-tts: %w", e.binary, err)
		}
		return audio.Clip{}, fmt.Errorf("piper: %w: %s", err, lastLine(stderr.String()))
	}

	f, err := os.Open(outPath)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	clip, err := audio.DecodeWAV(f)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("piper: %w", err)
	}
	return clip, nil
}

// lastLine returns the last non-empty line of piper's log output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
