package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// defaultOllamaURL is where any-llm looks for Ollama without a base_url.
const defaultOllamaURL = "http://localhost:11434"

// quietPeak is the peak level below which the input is reported as silent.
const quietPeak = 0.01

// ── Diagnostics ───────────────────────────────────────────────────────────────

// runDiagnostics lists devices, checks the configured components and records
// listen worth of input to report its level. It returns an error when any
// part failed.
func runDiagnostics(ctx context.Context, w io.Writer, cfg *config.Config, reg *config.Registry, listen time.Duration) error {
	var problems []string

	fmt.Fprintln(w, "── Audio devices ──")
	if err := printDevices(w); err != nil {
		problems = append(problems, err.Error())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "── Components ──")
	checks, _ := health.New(diagnosticChecks(cfg)...).Run(ctx)
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, checks[name])
		if checks[name] != "ok" {
			problems = append(problems, name)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "  (only hosted providers configured, nothing to check locally)")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "── Input level (%s from %s) ──\n", listen, inputName(cfg))
	rep, err := measureInput(ctx, cfg, reg, listen)
	if err != nil {
		fmt.Fprintf(w, "  capture failed: %v\n", err)
		problems = append(problems, "capture")
	} else {
		rep.print(w)
		if rep.Peak < quietPeak {
			fmt.Fprintln(w, "  The input is nearly silent. Check that the microphone is connected")
			fmt.Fprintln(w, "  and unmuted, or pick another input with --device.")
			problems = append(problems, "silent input")
		} else if rep.SpeechFrames == 0 {
			fmt.Fprintln(w, "  No frame was classified as speech. Speak during the test, or lower")
			fmt.Fprintln(w, "  vad.energy_threshold.")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("diagnostics found problems: %s", strings.Join(problems, ", "))
	}
	fmt.Fprintln(w, "\nAll checks passed.")
	return nil
}

func inputName(cfg *config.Config) string {
	switch {
	case cfg.Audio.Backend == "wavfile":
		return cfg.Audio.File
	case cfg.Audio.Device != "":
		return cfg.Audio.Backend + " device " + cfg.Audio.Device
	default:
		return cfg.Audio.Backend + " default device"
	}
}

// diagnosticChecks returns a check for every local server, binary or file
// the configuration depends on. Hosted APIs are not contacted.
func diagnosticChecks(cfg *config.Config) []health.Checker {
	client := &http.Client{Timeout: 3 * time.Second}
	orDefault := func(v, def string) string {
		if v != "" {
			return v
		}
		return def
	}

	var checks []health.Checker
	for _, e := range append([]config.ProviderEntry{cfg.STT.ProviderEntry}, cfg.STT.Fallbacks...) {
		switch e.Name {
		case "whisper":
			checks = append(checks, health.HTTPChecker("stt/"+e.Name, orDefault(e.BaseURL, defaultWhisperURL), client))
		case "whisper-native":
			checks = append(checks, health.FileChecker("stt/"+e.Name, orDefault(e.Model, optString(e.Options, "model_path"))))
		}
	}
	for _, e := range append([]config.ProviderEntry{cfg.LLM.ProviderEntry}, cfg.LLM.Fallbacks...) {
		switch {
		case e.Name == "ollama":
			checks = append(checks, health.HTTPChecker("llm/"+e.Name, orDefault(e.BaseURL, defaultOllamaURL), client))
		case e.BaseURL != "":
			checks = append(checks, health.HTTPChecker("llm/"+e.Name, e.BaseURL, client))
		}
	}
	for _, e := range append([]config.ProviderEntry{cfg.TTS.ProviderEntry}, cfg.TTS.Fallbacks...) {
		switch e.Name {
		case "espeak", "piper":
			checks = append(checks, health.BinaryChecker("tts/"+e.Name, orDefault(optString(e.Options, "binary"), e.Name)))
		case "coqui":
			checks = append(checks, health.HTTPChecker("tts/"+e.Name, orDefault(e.BaseURL, defaultCoquiURL), client))
		}
	}
	if cfg.Audio.Backend == "wavfile" {
		checks = append(checks, health.FileChecker("audio/wavfile", cfg.Audio.File))
	}
	return checks
}

// levelReport summarises a short recording.
type levelReport struct {
	Frames       int
	SpeechFrames int
	Overruns     int
	Samples      int
	Peak         float64
	RMS          float64
}

func (r levelReport) print(w io.Writer) {
	fmt.Fprintf(w, "  frames        %d (%d classified as speech)\n", r.Frames, r.SpeechFrames)
	fmt.Fprintf(w, "  peak          %.3f (%.1f dBFS)\n", r.Peak, dbfs(r.Peak))
	fmt.Fprintf(w, "  rms           %.4f (%.1f dBFS)\n", r.RMS, dbfs(r.RMS))
	if r.Overruns > 0 {
		fmt.Fprintf(w, "  overruns      %d\n", r.Overruns)
	}
}

func dbfs(v float64) float64 {
	if v <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(v)
}

// measureInput opens the configured source and classifier and records listen
// worth of samples.
func measureInput(ctx context.Context, cfg *config.Config, reg *config.Registry, listen time.Duration) (levelReport, error) {
	src, err := reg.CreateSource(cfg.Audio)
	if err != nil {
		return levelReport{}, err
	}
	cls, err := reg.CreateClassifier(cfg.VAD)
	if err != nil {
		return levelReport{}, err
	}
	format := audio.Format{
		DeviceID:     cfg.Audio.Device,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     1,
		FrameSamples: audio.SamplesForMs(cfg.Audio.FrameMs, cfg.Audio.SampleRate),
	}
	return measureLevel(ctx, src, cls, format, cfg.VAD.Params, listen)
}

// measureLevel reads from src until listen worth of samples arrived, the
// source ends or ctx is done, classifying every frame. Overruns are recovered
// and counted.
func measureLevel(ctx context.Context, src audio.Source, cls vad.Classifier, format audio.Format, p vad.Params, listen time.Duration) (levelReport, error) {
	if format.FrameSamples <= 0 {
		return levelReport{}, fmt.Errorf("invalid frame size %d", format.FrameSamples)
	}
	if err := src.Open(ctx, format); err != nil {
		return levelReport{}, fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	var (
		rep     levelReport
		sumSq   float64
		raw     = make([]int16, format.FrameSamples)
		frame   []float32
		want    = audio.SamplesFor(listen, format.SampleRate)
		timeout = time.Now().Add(listen + 2*time.Second)
	)
	for rep.Samples < want && ctx.Err() == nil && time.Now().Before(timeout) {
		n, err := src.Read(raw)
		switch {
		case errors.Is(err, audio.ErrOverrun):
			rep.Overruns++
			if rerr := src.Recover(); rerr != nil {
				return rep, fmt.Errorf("recover input: %w", rerr)
			}
			continue
		case err != nil && !errors.Is(err, io.EOF):
			return rep, fmt.Errorf("read input: %w", err)
		}

		if n > 0 {
			frame = audio.S16ToFloat32(frame, raw[:n])
			for _, s := range frame {
				v := float64(s)
				rep.Peak = max(rep.Peak, math.Abs(v))
				sumSq += v * v
			}
			rep.Samples += n
			rep.Frames++
			if cls.Classify(frame, format.SampleRate, p) {
				rep.SpeechFrames++
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if rep.Samples > 0 {
		rep.RMS = math.Sqrt(sumSq / float64(rep.Samples))
	}
	return rep, nil
}
