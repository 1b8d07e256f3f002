package config

import (
	"slices"

	"github.com/MrWong99/hark/pkg/provider/vad"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is set when any segmentation parameter changed. NewVAD
	// carries the full replacement set for [capture.Capture.SetVADParams].
	VADChanged bool
	NewVAD     vad.Params

	// RestartRequired lists the top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VADChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD.Params != new.VAD.Params {
		d.VADChanged = true
		d.NewVAD = new.VAD.Params
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.VAD.Classifier != new.VAD.Classifier || old.VAD.WebRTCMode != new.VAD.WebRTCMode {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if !sameSet(old.STT, new.STT) {
		d.RestartRequired = append(d.RestartRequired, "stt")
	}
	if !sameSet(old.LLM.ProviderSet, new.LLM.ProviderSet) ||
		old.LLM.SystemPrompt != new.LLM.SystemPrompt ||
		old.LLM.Persona != new.LLM.Persona ||
		old.LLM.HistoryTurns != new.LLM.HistoryTurns ||
		old.LLM.Temperature != new.LLM.Temperature ||
		old.LLM.MaxTokens != new.LLM.MaxTokens ||
		old.LLM.SystemInfo != new.LLM.SystemInfo {
		d.RestartRequired = append(d.RestartRequired, "llm")
	}
	if !sameSet(old.TTS, new.TTS) {
		d.RestartRequired = append(d.RestartRequired, "tts")
	}
	if !sameApp(old.App, new.App) {
		d.RestartRequired = append(d.RestartRequired, "app")
	}

	return d
}

func sameSet(a, b ProviderSet) bool {
	return slices.EqualFunc(a.Entries(), b.Entries(), sameEntry)
}

// sameEntry compares everything but Options, which holds arbitrary YAML
// values; a change there alone is not detected.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Voice == b.Voice &&
		a.Language == b.Language
}

func sameApp(a, b AppConfig) bool {
	return a.Continuous == b.Continuous &&
		a.ListenTimeout == b.ListenTimeout &&
		a.MaxSilentTurns == b.MaxSilentTurns &&
		a.TurnKeyword == b.TurnKeyword &&
		slices.Equal(a.ExitKeywords, b.ExitKeywords) &&
		a.SegmentDir == b.SegmentDir
}
