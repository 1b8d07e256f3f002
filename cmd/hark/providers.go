package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/hark/internal/app"
	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/internal/health"
	"github.com/MrWong99/hark/internal/resilience"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/audio/malgo"
	"github.com/MrWong99/hark/pkg/audio/portaudio"
	"github.com/MrWong99/hark/pkg/audio/wavfile"
	"github.com/MrWong99/hark/pkg/provider/llm"
	"github.com/MrWong99/hark/pkg/provider/llm/anyllm"
	"github.com/MrWong99/hark/pkg/provider/llm/openai"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/MrWong99/hark/pkg/provider/stt/deepgram"
	"github.com/MrWong99/hark/pkg/provider/stt/whisper"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/tts/coqui"
	"github.com/MrWong99/hark/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/hark/pkg/provider/tts/espeak"
	"github.com/MrWong99/hark/pkg/provider/tts/piper"
	"github.com/MrWong99/hark/pkg/provider/vad"
	"github.com/MrWong99/hark/pkg/provider/vad/energy"
	"github.com/MrWong99/hark/pkg/provider/vad/webrtc"
)

// Defaults for local servers, used when an entry leaves base_url or model
// empty.
const (
	defaultWhisperURL  = "http://127.0.0.1:8080"
	defaultCoquiURL    = "http://127.0.0.1:5002"
	defaultOllamaModel = "llama3.2"
	defaultOpenAIModel = "gpt-4o-mini"
)

// wavTrailingSilence is appended to replayed files so the last utterance
// reaches its silence run and ends as a segment.
const wavTrailingSilence = 3 * time.Second

// registerBuiltinProviders wires every implementation that ships with hark
// into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		url := entry.BaseURL
		if url == "" {
			url = defaultWhisperURL
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, whisper.WithLanguage(entry.Language))
		}
		if t, ok := optFloat(entry.Options, "temperature"); ok {
			opts = append(opts, whisper.WithTemperature(t))
		}
		return whisper.New(url, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if entry.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(entry.Language))
		}
		if n, ok := optInt(entry.Options, "threads"); ok && n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		model := entry.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, ok := optDuration(entry.Options, "timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, model, opts...)
	})

	// Everything else goes through any-llm. ollama, llamacpp and llamafile are
	// local servers addressed by base_url; the rest need an api_key.
	for _, name := range []string{
		"ollama", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			model := entry.Model
			if model == "" && name == "ollama" {
				model = defaultOllamaModel
			}
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("espeak", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []espeak.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if entry.Voice != "" {
			opts = append(opts, espeak.WithVoice(entry.Voice))
		}
		if wpm, ok := optInt(entry.Options, "speed"); ok {
			opts = append(opts, espeak.WithSpeed(wpm))
		}
		if pitch, ok := optInt(entry.Options, "pitch"); ok {
			opts = append(opts, espeak.WithPitch(pitch))
		}
		return espeak.New(opts...), nil
	})

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []piper.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, piper.WithBinary(bin))
		}
		if dir := optString(entry.Options, "model_dir"); dir != "" {
			opts = append(opts, piper.WithModelDir(dir))
		}
		if entry.Voice != "" {
			opts = append(opts, piper.WithVoice(entry.Voice))
		}
		if id, ok := optInt(entry.Options, "speaker"); ok {
			opts = append(opts, piper.WithSpeaker(id))
		}
		return piper.New(opts...), nil
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		url := entry.BaseURL
		if url == "" {
			url = defaultCoquiURL
		}
		var opts []coqui.Option
		if entry.Language != "" {
			opts = append(opts, coqui.WithLanguage(entry.Language))
		}
		if entry.Voice != "" {
			opts = append(opts, coqui.WithSpeaker(entry.Voice))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate, ok := optInt(entry.Options, "sample_rate"); ok {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d, ok := optDuration(entry.Options, "timeout"); ok {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(url, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		stability, okS := optFloat(entry.Options, "stability")
		similarity, okM := optFloat(entry.Options, "similarity")
		if okS || okM {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, entry.Voice, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterClassifier("energy", func(config.VADConfig) (vad.Classifier, error) {
		return energy.Classifier{}, nil
	})

	reg.RegisterClassifier("webrtc", func(cfg config.VADConfig) (vad.Classifier, error) {
		return webrtc.New(webrtc.WithMode(cfg.WebRTCMode))
	})

	// ── Audio input ───────────────────────────────────────────────────────────

	reg.RegisterSource("portaudio", func(config.AudioConfig) (audio.Source, error) {
		return portaudio.NewSource(), nil
	})

	reg.RegisterSource("malgo", func(cfg config.AudioConfig) (audio.Source, error) {
		return malgo.New(malgo.WithQueueChunks(cfg.QueueChunks)), nil
	})

	reg.RegisterSource("wavfile", func(cfg config.AudioConfig) (audio.Source, error) {
		opts := []wavfile.Option{wavfile.WithTrailingSilence(wavTrailingSilence)}
		if cfg.Realtime {
			opts = append(opts, wavfile.WithRealtime())
		}
		return wavfile.New(cfg.File, opts...), nil
	})

	for _, kind := range []string{"stt", "llm", "tts", "vad", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates every provider named in cfg. Slots with
// fallbacks are wrapped in a [resilience] group, and a readiness check is
// returned for each such group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []health.Checker, error) {
	ps := &app.Providers{}
	var checks []health.Checker
	fcfg := resilience.FallbackConfig{}

	// ── STT ───────────────────────────────────────────────────────────────────
	primarySTT, err := reg.CreateSTT(cfg.STT.ProviderEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.STT.Name, err)
	}
	ps.STT = primarySTT
	if len(cfg.STT.Fallbacks) > 0 {
		f := resilience.NewSTTFallback(primarySTT, cfg.STT.Name, fcfg)
		for _, entry := range cfg.STT.Fallbacks {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				if skipFallback("stt", entry.Name, err) {
					continue
				}
				return nil, nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			f.AddFallback(entry.Name, p)
		}
		ps.STT = f
		checks = append(checks, health.BreakerChecker("stt", f.Group().States))
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.STT.Name, "fallbacks", len(cfg.STT.Fallbacks))

	// ── LLM ───────────────────────────────────────────────────────────────────
	primaryLLM, err := reg.CreateLLM(cfg.LLM.ProviderEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.LLM.Name, err)
	}
	ps.LLM = primaryLLM
	if len(cfg.LLM.Fallbacks) > 0 {
		f := resilience.NewLLMFallback(primaryLLM, cfg.LLM.Name, fcfg)
		for _, entry := range cfg.LLM.Fallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				if skipFallback("llm", entry.Name, err) {
					continue
				}
				return nil, nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			f.AddFallback(entry.Name, p)
		}
		ps.LLM = f
		checks = append(checks, health.BreakerChecker("llm", f.Group().States))
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Name, "model", cfg.LLM.Model, "fallbacks", len(cfg.LLM.Fallbacks))

	// ── TTS ───────────────────────────────────────────────────────────────────
	// Without fallbacks the engine is used as is, so one that speaks on its
	// own (espeak) keeps doing so.
	primaryTTS, err := reg.CreateTTS(cfg.TTS.ProviderEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create tts engine %q: %w", cfg.TTS.Name, err)
	}
	ps.TTS = primaryTTS
	if len(cfg.TTS.Fallbacks) > 0 {
		f := resilience.NewTTSFallback(primaryTTS, cfg.TTS.Name, fcfg)
		for _, entry := range cfg.TTS.Fallbacks {
			s, err := reg.CreateTTS(entry)
			if err != nil {
				if skipFallback("tts", entry.Name, err) {
					continue
				}
				return nil, nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			f.AddFallback(entry.Name, s)
		}
		ps.TTS = f
		checks = append(checks, health.BreakerChecker("tts", f.Group().States))
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.TTS.Name, "fallbacks", len(cfg.TTS.Fallbacks))

	// ── Capture ───────────────────────────────────────────────────────────────
	if ps.Classifier, err = reg.CreateClassifier(cfg.VAD); err != nil {
		return nil, nil, fmt.Errorf("create vad classifier %q: %w", cfg.VAD.Classifier, err)
	}
	if ps.Source, err = reg.CreateSource(cfg.Audio); err != nil {
		return nil, nil, fmt.Errorf("create audio source %q: %w", cfg.Audio.Backend, err)
	}
	slog.Info("capture configured", "backend", cfg.Audio.Backend, "classifier", cfg.VAD.Classifier)

	return ps, checks, nil
}

// skipFallback reports whether a fallback that failed to build may be left
// out. Only unknown names are skipped; a known provider with bad settings is
// a config error.
func skipFallback(kind, name string, err error) bool {
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		return false
	}
	slog.Warn("fallback provider not available, skipping", "kind", kind, "name", name)
	return true
}

// ── Options helpers ───────────────────────────────────────────────────────────

// optString extracts a string from a provider Options map. Returns "" when
// the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer. YAML integers decode as int; whole floats are
// accepted too.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// optFloat extracts a number as float64.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// optDuration extracts a duration written either as a Go duration string
// ("30s") or as a number of seconds.
func optDuration(opts map[string]any, key string) (time.Duration, bool) {
	if s := optString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		return d, err == nil
	}
	if secs, ok := optFloat(opts, key); ok {
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}
