package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/MrWong99/hark/internal/conversation"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/vad"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "whisper-native", "deepgram"},
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":   engineNames(),
	"vad":   {"energy", "webrtc"},
	"audio": {"portaudio", "malgo", "wavfile"},
}

func engineNames() []string {
	names := make([]string, len(tts.Engines))
	for i, e := range tts.Engines {
		names[i] = string(e)
	}
	return names
}

// Default returns the configuration used for every field a YAML file leaves
// out. Provider endpoints and models are left to the provider factories so a
// file that only switches the provider name does not inherit another
// provider's settings.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			Backend:      "portaudio",
			SampleRate:   16000,
			FrameMs:      100,
			PollInterval: time.Millisecond,
		},
		VAD: VADConfig{
			Classifier: "energy",
			WebRTCMode: 2,
			Params:     vad.DefaultParams(),
		},
		STT: ProviderSet{ProviderEntry: ProviderEntry{Name: "whisper"}},
		LLM: LLMConfig{
			ProviderSet:  ProviderSet{ProviderEntry: ProviderEntry{Name: "ollama"}},
			HistoryTurns: conversation.DefaultHistoryTurns,
			Temperature:  0.7,
		},
		TTS: ProviderSet{ProviderEntry: ProviderEntry{Name: "espeak"}},
		App: AppConfig{
			ListenTimeout:  10 * time.Second,
			MaxSilentTurns: 3,
			TurnKeyword:    "over",
		},
	}
	return cfg
}

// ApplyDefaults fills the fields of cfg whose zero value is never meaningful.
// VAD durations are left alone since zero is a valid setting for them.
func ApplyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = def.Audio.Backend
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.FrameMs == 0 {
		cfg.Audio.FrameMs = def.Audio.FrameMs
	}
	if cfg.Audio.PollInterval == 0 {
		cfg.Audio.PollInterval = def.Audio.PollInterval
	}
	if cfg.VAD.Classifier == "" {
		cfg.VAD.Classifier = def.VAD.Classifier
	}
	if cfg.VAD.WindowMs == 0 {
		cfg.VAD.WindowMs = def.VAD.WindowMs
	}
	if cfg.VAD.BufferHistoryMs == 0 {
		cfg.VAD.BufferHistoryMs = def.VAD.BufferHistoryMs
	}
	if cfg.STT.Name == "" {
		cfg.STT.ProviderEntry = def.STT.ProviderEntry
	}
	if cfg.LLM.Name == "" {
		cfg.LLM.ProviderEntry = def.LLM.ProviderEntry
	}
	if cfg.LLM.HistoryTurns == 0 {
		cfg.LLM.HistoryTurns = def.LLM.HistoryTurns
	}
	if cfg.TTS.Name == "" {
		cfg.TTS.ProviderEntry = def.TTS.ProviderEntry
	}
	if cfg.App.ListenTimeout == 0 {
		cfg.App.ListenTimeout = def.App.ListenTimeout
	}
	if cfg.App.MaxSilentTurns == 0 {
		cfg.App.MaxSilentTurns = def.App.MaxSilentTurns
	}
	if cfg.App.TurnKeyword == "" {
		cfg.App.TurnKeyword = def.App.TurnKeyword
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], fills any
// zeroed required fields and validates the result. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be > 0, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be > 0, got %d", cfg.Audio.FrameMs))
	}
	if cfg.Audio.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval must be >= 0, got %s", cfg.Audio.PollInterval))
	}
	if cfg.Audio.QueueChunks < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_chunks must be >= 0, got %d", cfg.Audio.QueueChunks))
	}
	if cfg.Audio.Backend == "wavfile" && cfg.Audio.File == "" {
		errs = append(errs, errors.New("audio.file is required when backend is wavfile"))
	}
	validateProviderName("audio", cfg.Audio.Backend)

	// VAD
	validateProviderName("vad", cfg.VAD.Classifier)
	if cfg.VAD.WebRTCMode < 0 || cfg.VAD.WebRTCMode > 3 {
		errs = append(errs, fmt.Errorf("vad.webrtc_mode %d is out of range [0, 3]", cfg.VAD.WebRTCMode))
	}
	if err := cfg.VAD.Params.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Providers
	errs = append(errs, validateProviderSet("stt", cfg.STT)...)
	errs = append(errs, validateProviderSet("llm", cfg.LLM.ProviderSet)...)
	errs = append(errs, validateProviderSet("tts", cfg.TTS)...)

	// Conversation
	if cfg.LLM.HistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("llm.history_turns must be >= 0, got %d", cfg.LLM.HistoryTurns))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be >= 0, got %d", cfg.LLM.MaxTokens))
	}
	if cfg.LLM.Persona != "" {
		if _, err := conversation.LookupPersona(cfg.LLM.Persona); err != nil {
			errs = append(errs, fmt.Errorf("llm.persona: %w", err))
		}
		if cfg.LLM.SystemPrompt != "" {
			slog.Warn("llm.system_prompt overrides llm.persona", "persona", cfg.LLM.Persona)
		}
	}

	// App
	if cfg.App.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("app.listen_timeout must be >= 0, got %s", cfg.App.ListenTimeout))
	}
	if cfg.App.MaxSilentTurns < 0 {
		errs = append(errs, fmt.Errorf("app.max_silent_turns must be >= 0, got %d", cfg.App.MaxSilentTurns))
	}

	return errors.Join(errs...)
}

func validateProviderSet(kind string, set ProviderSet) []error {
	var errs []error
	if set.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", kind))
	}
	validateProviderName(kind, set.Name)
	for i, fb := range set.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
