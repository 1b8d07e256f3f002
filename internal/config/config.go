// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for hark.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/hark/pkg/provider/vad"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto a [slog.Level]. Unknown and empty levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for hark.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	VAD    VADConfig    `yaml:"vad"`
	STT    ProviderSet  `yaml:"stt"`
	LLM    LLMConfig    `yaml:"llm"`
	TTS    ProviderSet  `yaml:"tts"`
	App    AppConfig    `yaml:"app"`
}

// ServerConfig holds the health/metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics.
	// Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Reloaded live by the watcher.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the capture backend and the playback device.
type AudioConfig struct {
	// Backend names the registered capture source: "portaudio", "malgo" or
	// "wavfile".
	Backend string `yaml:"backend"`

	// Device is the input device index or name. Empty selects the default.
	Device string `yaml:"device"`

	// OutputDevice is the playback device for synthesized speech.
	OutputDevice string `yaml:"output_device"`

	SampleRate int `yaml:"sample_rate"`
	FrameMs    int `yaml:"frame_ms"`

	// PollInterval is how long the capture loop sleeps when the device has
	// no data ready.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FlushOnStop emits a partially collected utterance when capture stops.
	FlushOnStop bool `yaml:"flush_on_stop"`

	// File is the WAV file read by the "wavfile" backend.
	File string `yaml:"file"`

	// Realtime paces the "wavfile" backend at the file's sample rate.
	Realtime bool `yaml:"realtime"`

	// QueueChunks sizes the "malgo" callback queue.
	QueueChunks int `yaml:"queue_chunks"`
}

// VADConfig selects the window classifier and carries the tunable
// segmentation parameters. Params are reloaded live by the watcher.
type VADConfig struct {
	// Classifier is "energy" (default) or "webrtc".
	Classifier string `yaml:"classifier"`

	// WebRTCMode is the aggressiveness (0-3) of the "webrtc" classifier.
	WebRTCMode int `yaml:"webrtc_mode"`

	vad.Params `yaml:",inline"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g. "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Voice selects a speaker for speech synthesis providers.
	Voice string `yaml:"voice"`

	// Language is a BCP-47 hint for transcription and synthesis.
	Language string `yaml:"language"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ProviderSet is a primary provider plus ordered fallbacks.
type ProviderSet struct {
	ProviderEntry `yaml:",inline"`

	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// Entries returns the primary followed by the fallbacks.
func (s ProviderSet) Entries() []ProviderEntry {
	out := make([]ProviderEntry, 0, 1+len(s.Fallbacks))
	out = append(out, s.ProviderEntry)
	return append(out, s.Fallbacks...)
}

// LLMConfig configures the language model and the conversation around it.
type LLMConfig struct {
	ProviderSet `yaml:",inline"`

	// SystemPrompt overrides Persona when set.
	SystemPrompt string `yaml:"system_prompt"`

	// Persona names a built-in persona (tech_coworker, personal_friend,
	// tutor, life_coach).
	Persona string `yaml:"persona"`

	// SystemInfo appends the host's OS, processor and the current time to
	// the system prompt.
	SystemInfo bool `yaml:"system_info"`

	// HistoryTurns is how many previous exchanges are sent as context.
	HistoryTurns int `yaml:"history_turns"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AppConfig tunes the listen/respond loop.
type AppConfig struct {
	// Continuous keeps the loop running regardless of silent turns or a
	// missing turn keyword.
	Continuous bool `yaml:"continuous"`

	// ListenTimeout bounds each wait for speech.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// MaxSilentTurns ends a non-continuous run after this many consecutive
	// turns without usable speech.
	MaxSilentTurns int `yaml:"max_silent_turns"`

	// TurnKeyword is the trailing word that hands the turn back to the
	// listener. Empty uses "over".
	TurnKeyword string `yaml:"turn_keyword"`

	// ExitKeywords end the run when spoken. Empty uses the built-in set.
	ExitKeywords []string `yaml:"exit_keywords"`

	// SegmentDir, when set, receives every captured segment as a WAV file.
	SegmentDir string `yaml:"segment_dir"`
}
