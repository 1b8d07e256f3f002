package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/llm"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factories is one named set of constructors. It is guarded by the owning
// Registry's mutex.
type factories[C, T any] map[string]func(C) (T, error)

func create[C, T any](mu *sync.RWMutex, f factories[C, T], kind, name string, cfg C) (T, error) {
	mu.RLock()
	factory, ok := f[name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return factory(cfg)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        factories[ProviderEntry, stt.Provider]
	llm        factories[ProviderEntry, llm.Provider]
	tts        factories[ProviderEntry, tts.Synthesizer]
	classifier factories[VADConfig, vad.Classifier]
	source     factories[AudioConfig, audio.Source]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(factories[ProviderEntry, stt.Provider]),
		llm:        make(factories[ProviderEntry, llm.Provider]),
		tts:        make(factories[ProviderEntry, tts.Synthesizer]),
		classifier: make(factories[VADConfig, vad.Classifier]),
		source:     make(factories[AudioConfig, audio.Source]),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a speech synthesis engine factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterClassifier registers a VAD window classifier factory under name.
func (r *Registry) RegisterClassifier(name string, factory func(VADConfig) (vad.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier[name] = factory
}

// RegisterSource registers a capture backend factory under name.
func (r *Registry) RegisterSource(name string, factory func(AudioConfig) (audio.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, "stt", entry.Name, entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, "llm", entry.Name, entry)
}

// CreateTTS instantiates a synthesis engine using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	return create(&r.mu, r.tts, "tts", entry.Name, entry)
}

// CreateClassifier instantiates the classifier named by cfg.Classifier.
func (r *Registry) CreateClassifier(cfg VADConfig) (vad.Classifier, error) {
	return create(&r.mu, r.classifier, "vad", cfg.Classifier, cfg)
}

// CreateSource instantiates the capture backend named by cfg.Backend.
func (r *Registry) CreateSource(cfg AudioConfig) (audio.Source, error) {
	return create(&r.mu, r.source, "audio", cfg.Backend, cfg)
}

// Names returns the sorted provider names registered for kind ("stt", "llm",
// "tts", "vad" or "audio"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "llm":
		names = keys(r.llm)
	case "tts":
		names = keys(r.tts)
	case "vad":
		names = keys(r.classifier)
	case "audio":
		names = keys(r.source)
	}
	slices.Sort(names)
	return names
}

func keys[C, T any](f factories[C, T]) []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	return out
}
