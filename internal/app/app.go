// Package app wires the capture loop, transcription, the conversation and
// speech synthesis into the running assistant.
//
// New builds every subsystem from the config and the providers created by
// the registry. Run executes the listen/respond loop until the user says an
// exit keyword, the run ends on its own in non-continuous mode, or ctx is
// cancelled. Shutdown releases providers that hold resources.
//
// For testing, inject doubles via functional options (WithListener,
// WithSpeaker). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/hark/internal/capture"
	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/internal/conversation"
	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/internal/transcript"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/llm"
	"github.com/MrWong99/hark/pkg/provider/stt"
	"github.com/MrWong99/hark/pkg/provider/tts"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// GoodbyeMessage is spoken when the user says an exit keyword.
const GoodbyeMessage = "Goodbye. Exiting voice assistant."

// Providers holds one value per pipeline slot, created by main via the
// config registry. Source and Classifier may be nil when a listener is
// injected with [WithListener]; Player may be nil when TTS speaks on its own.
type Providers struct {
	STT        stt.Provider
	LLM        llm.Provider
	TTS        tts.Synthesizer
	Player     audio.Player
	Source     audio.Source
	Classifier vad.Classifier
}

// Listener is the capture side of the loop. [capture.Capture] implements it.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	WaitForSpeechContext(ctx context.Context, timeout time.Duration) []float32
	IsCapturing() bool
	Err() error
	Done() <-chan struct{}
}

var _ Listener = (*capture.Capture)(nil)

// App owns the subsystems of one assistant run.
type App struct {
	cfg *config.Config

	listener  Listener
	stt       stt.Provider
	responder *conversation.Responder
	speaker   tts.Speaker
	keywords  *transcript.KeywordDetector
	metrics   *observe.Metrics
	log       *slog.Logger

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithListener injects the capture loop instead of building one from
// Providers.Source.
func WithListener(l Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithSpeaker injects the speaker instead of wrapping Providers.TTS.
func WithSpeaker(s tts.Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// New creates the assistant from cfg and providers. cfg must have passed
// [config.Validate].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if providers == nil {
		providers = &Providers{}
	}

	if providers.STT == nil {
		return nil, fmt.Errorf("app: no stt provider configured")
	}
	if providers.LLM == nil {
		return nil, fmt.Errorf("app: no llm provider configured")
	}
	a.stt = providers.STT

	if err := a.initListener(providers); err != nil {
		return nil, err
	}
	if err := a.initResponder(providers.LLM); err != nil {
		return nil, err
	}
	if err := a.initSpeaker(providers); err != nil {
		return nil, err
	}
	a.initKeywords()

	if dir := cfg.App.SegmentDir; dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create segment dir: %w", err)
		}
	}

	for _, p := range []any{providers.Classifier, providers.Source, providers.TTS, providers.STT, providers.LLM} {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	a.log.InfoContext(ctx, "assistant ready",
		"stt", cfg.STT.Name,
		"llm", cfg.LLM.Name,
		"tts", cfg.TTS.Name,
		"continuous", cfg.App.Continuous,
	)
	return a, nil
}

func (a *App) initListener(p *Providers) error {
	if a.listener != nil {
		return nil
	}
	if p.Source == nil {
		return fmt.Errorf("app: no audio source configured")
	}
	ccfg := capture.Config{
		DeviceID:     a.cfg.Audio.Device,
		SampleRate:   a.cfg.Audio.SampleRate,
		FrameMs:      a.cfg.Audio.FrameMs,
		PollInterval: a.cfg.Audio.PollInterval,
		FlushOnStop:  a.cfg.Audio.FlushOnStop,
		VAD:          a.cfg.VAD.Params,
	}
	opts := []capture.Option{capture.WithMetrics(a.metrics), capture.WithLogger(a.log)}
	if p.Classifier != nil {
		opts = append(opts, capture.WithClassifier(p.Classifier))
	}
	a.listener = capture.New(p.Source, ccfg, opts...)
	return nil
}

func (a *App) initResponder(provider llm.Provider) error {
	prompt, err := conversation.SystemPrompt(a.cfg.LLM.SystemPrompt, a.cfg.LLM.Persona)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	opts := []conversation.Option{
		conversation.WithSystemPrompt(prompt),
		conversation.WithHistoryTurns(a.cfg.LLM.HistoryTurns),
		conversation.WithTemperature(a.cfg.LLM.Temperature),
		conversation.WithMaxTokens(a.cfg.LLM.MaxTokens),
		conversation.WithProviderName(a.cfg.LLM.Name),
		conversation.WithMetrics(a.metrics),
	}
	if a.cfg.LLM.SystemInfo {
		opts = append(opts, conversation.WithSystemInfo(conversation.GatherSystemInfo(
			a.cfg.STT.Name+" speech-to-text",
			a.cfg.LLM.Name+" language model",
			a.cfg.TTS.Name+" text-to-speech",
		)))
	}
	a.responder = conversation.NewResponder(provider, opts...)
	return nil
}

func (a *App) initSpeaker(p *Providers) error {
	if a.speaker != nil {
		return nil
	}
	if p.TTS == nil {
		return fmt.Errorf("app: no tts engine configured")
	}
	if _, self := p.TTS.(tts.Speaker); !self && p.Player == nil {
		return fmt.Errorf("app: tts engine %q needs an audio player", a.cfg.TTS.Name)
	}
	// An explicit output device only reaches engines played through Player.
	if a.cfg.Audio.OutputDevice != "" && p.Player != nil {
		a.speaker = tts.NewPlaybackSpeaker(p.TTS, p.Player)
		return nil
	}
	a.speaker = tts.NewSpeaker(p.TTS, p.Player)
	return nil
}

func (a *App) initKeywords() {
	opts := []transcript.KeywordOption{transcript.WithTurnKeyword(a.cfg.App.TurnKeyword)}
	if len(a.cfg.App.ExitKeywords) > 0 {
		opts = append(opts, transcript.WithExitKeywords(a.cfg.App.ExitKeywords...))
	}
	a.keywords = transcript.NewKeywordDetector(opts...)
}

// Listener returns the capture loop, for readiness checks and live VAD
// updates.
func (a *App) Listener() Listener { return a.listener }

// Responder returns the conversation state.
func (a *App) Responder() *conversation.Responder { return a.responder }

// SetVADParams retunes segmentation on a running capture loop. It reports
// false when the listener cannot be retuned live.
func (a *App) SetVADParams(p vad.Params) bool {
	t, ok := a.listener.(interface{ SetVADParams(vad.Params) })
	if !ok {
		return false
	}
	t.SetVADParams(p)
	return true
}

// ─── Run loop ────────────────────────────────────────────────────────────────

// Run starts capture and handles turns until the run ends. Segments left in
// the slot when capture ends are still handled. Run returns nil when the user
// exits, when a non-continuous run finishes, when the input ends or when ctx
// is cancelled; it returns an error when capture fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.listener.Start(ctx); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}
	defer a.listener.Stop()

	a.log.InfoContext(ctx, "listening",
		"timeout", a.cfg.App.ListenTimeout,
		"turn_keyword", a.cfg.App.TurnKeyword,
	)

	silent := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		res := a.Turn(ctx)
		switch res.Outcome {
		case OutcomeStopped:
			if err := a.listener.Err(); err != nil {
				return fmt.Errorf("app: %w", err)
			}
			a.log.InfoContext(ctx, "capture ended")
			return nil
		case OutcomeExit:
			return nil
		case OutcomeResponded:
			silent = 0
			if !a.cfg.App.Continuous && !res.Handover {
				a.log.InfoContext(ctx, "no turn keyword, ending conversation", "turn_keyword", a.cfg.App.TurnKeyword)
				return nil
			}
		case OutcomeCanceled:
			return nil
		default:
			silent++
			if !a.cfg.App.Continuous && a.cfg.App.MaxSilentTurns > 0 && silent >= a.cfg.App.MaxSilentTurns {
				a.log.InfoContext(ctx, "no usable speech, ending conversation", "turns", silent)
				return nil
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture and runs the closers in order. It respects the
// context deadline: if ctx expires before all closers finish, the remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.listener.Stop()
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
