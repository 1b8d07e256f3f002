// Package capture implements the real-time speech segmentation core.
//
// A [Capture] reads fixed-size frames from an [audio.Source] on a dedicated
// goroutine, keeps the most recent audio in an [audio.History] ring,
// classifies a short window of it on every frame and drives a [Segmenter].
// Completed utterances are handed to a consumer through a single-segment
// [Slot]: a segment that is not taken before the next one completes is
// replaced, never queued.
//
// Lifecycle:
//
//	c := capture.New(src, cfg)
//	if err := c.Start(ctx); err != nil { ... }
//	defer c.Stop()
//	for {
//	    seg := c.WaitForSpeech(10 * time.Second)
//	    if len(seg) == 0 && !c.IsCapturing() {
//	        break
//	    }
//	    ...
//	}
//
// A Capture is single-use: it cannot be restarted after Stop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
	"github.com/MrWong99/hark/pkg/provider/vad/energy"
)

var (
	// ErrAlreadyStarted is returned by Start on a Capture that was started
	// before.
	ErrAlreadyStarted = errors.New("capture: already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("capture: stopped")
)

// Config configures a [Capture].
type Config struct {
	// DeviceID selects the input device; see [audio.Format.DeviceID].
	DeviceID string

	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// FrameMs is the duration of one device read. Default: 100.
	FrameMs int

	// PollInterval is slept after every iteration to bound CPU usage.
	// Default: 1ms. Negative disables the sleep.
	PollInterval time.Duration

	// FlushOnStop hands an utterance in progress to the slot when capture
	// stops. When false it is dropped.
	FlushOnStop bool

	// VAD is the initial parameter set. Values are used as given.
	VAD vad.Params
}

// DefaultConfig returns a Config with the default device, 16 kHz, 100 ms
// frames and [vad.DefaultParams].
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		FrameMs:      100,
		PollInterval: time.Millisecond,
		VAD:          vad.DefaultParams(),
	}
}

// Option is a functional option for [Capture].
type Option func(*Capture)

// WithClassifier replaces the default energy classifier.
func WithClassifier(cls vad.Classifier) Option {
	return func(c *Capture) { c.classifier = cls }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Capture) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Capture) { c.log = l }
}

// Capture is the capture loop. All exported methods are safe for concurrent
// use.
type Capture struct {
	src        audio.Source
	cfg        Config
	classifier vad.Classifier
	metrics    *observe.Metrics
	log        *slog.Logger
	slot       *Slot

	capturing    atomic.Bool
	speechActive atomic.Bool

	// mu guards everything below.
	mu         sync.Mutex
	params     vad.Params
	nextParams *vad.Params
	hist       *audio.History
	seg        *Segmenter
	window     int
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
}

// New returns an unstarted Capture reading from src. Zero SampleRate and
// FrameMs take their defaults.
func New(src audio.Source, cfg Config, opts ...Option) *Capture {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = def.FrameMs
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}

	c := &Capture{
		src:        src,
		cfg:        cfg,
		classifier: energy.Classifier{},
		params:     cfg.VAD,
		slot:       NewSlot(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Start opens the device and launches the capture goroutine. The loop runs
// until Stop is called, ctx is cancelled, the source reports io.EOF or the
// device fails. A device open
// failure is returned and leaves the Capture stopped.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.started {
		return ErrAlreadyStarted
	}

	frameSamples := audio.SamplesForMs(c.cfg.FrameMs, c.cfg.SampleRate)
	format := audio.Format{
		DeviceID:     c.cfg.DeviceID,
		SampleRate:   c.cfg.SampleRate,
		Channels:     1,
		FrameSamples: frameSamples,
	}
	if err := c.src.Open(ctx, format); err != nil {
		c.stopped = true
		c.err = fmt.Errorf("capture: open device: %w", err)
		c.slot.Close()
		return c.err
	}

	c.applyParamsLocked(c.params)
	c.seg = NewSegmenter(c.hist, c.cfg.SampleRate, c.params)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	c.capturing.Store(true)

	c.log.Info("capture started",
		"device", c.cfg.DeviceID,
		"format", audio.FormatString(c.cfg.SampleRate, 1),
		"frame_ms", c.cfg.FrameMs,
		"energy_threshold", c.params.EnergyThreshold,
		"freq_threshold", c.params.FreqThreshold,
		"min_speech", c.params.MinSpeech(),
		"max_silence", c.params.MaxSilence(),
		"padding", c.params.Padding(),
	)

	go c.run(runCtx, frameSamples)
	return nil
}

// Stop cancels the loop and waits for it to exit. The device is closed by
// the loop itself after its last iteration. Stop is idempotent and may be
// called before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		c.slot.Close()
		return
	}
	cancel()
	if !c.cfg.FlushOnStop {
		// Wake consumers now instead of after the in-flight read.
		c.slot.Close()
	}
	<-done
}

// WaitForSpeech blocks until a segment is available, timeout elapses or
// capture stops, and returns the segment. It returns an empty slice on
// timeout or stop.
func (c *Capture) WaitForSpeech(timeout time.Duration) []float32 {
	seg, ok := c.slot.Wait(context.Background(), timeout)
	if !ok {
		return []float32{}
	}
	return seg
}

// WaitForSpeechContext is [Capture.WaitForSpeech] that also returns early
// when ctx is done.
func (c *Capture) WaitForSpeechContext(ctx context.Context, timeout time.Duration) []float32 {
	seg, ok := c.slot.Wait(ctx, timeout)
	if !ok {
		return []float32{}
	}
	return seg
}

// IsSpeechActive reports whether an utterance is in progress.
func (c *Capture) IsSpeechActive() bool { return c.speechActive.Load() }

// IsCapturing reports whether the capture loop is running.
func (c *Capture) IsCapturing() bool { return c.capturing.Load() }

// SetVADParams schedules p for the next loop iteration. An utterance in
// progress keeps its run counters and continues under the new thresholds.
// A new BufferHistoryMs resizes the history ring and keeps the newest audio.
// Values are not clamped; validate them with [vad.Params.Validate] first.
func (c *Capture) SetVADParams(p vad.Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.params = p
		return
	}
	c.nextParams = &p
}

// VADParams returns the parameter set currently in effect, or the pending
// one if an update has not been applied yet.
func (c *Capture) VADParams() vad.Params {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextParams != nil {
		return *c.nextParams
	}
	return c.params
}

// Err returns the fatal error that ended the loop, or nil.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done returns a channel that is closed when the loop has exited. It is nil
// before Start.
func (c *Capture) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// DroppedSegments returns how many segments were replaced before a consumer
// took them.
func (c *Capture) DroppedSegments() int64 { return c.slot.Dropped() }

// run is the capture goroutine.
func (c *Capture) run(ctx context.Context, frameSamples int) {
	defer close(c.done)
	defer c.shutdown(ctx)

	raw := make([]int16, frameSamples)
	samples := make([]float32, 0, frameSamples)

	var poll *time.Timer
	if c.cfg.PollInterval > 0 {
		poll = time.NewTimer(c.cfg.PollInterval)
		defer poll.Stop()
	}

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := c.src.Read(raw)
		if errors.Is(err, audio.ErrOverrun) {
			c.metrics.RecordOverrun(ctx)
			c.log.Warn("capture: input overrun, recovering")
			if rerr := c.src.Recover(); rerr != nil {
				c.fail(fmt.Errorf("capture: recover from overrun: %w", rerr))
				return
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			// Finite sources such as WAV replays end here without an error.
			if n > 0 {
				samples = audio.S16ToFloat32(samples, raw[:n])
				c.process(ctx, samples)
			}
			c.log.Info("capture: input ended")
			return
		}
		if err != nil {
			c.fail(fmt.Errorf("capture: read: %w", err))
			return
		}

		if n > 0 {
			samples = audio.S16ToFloat32(samples, raw[:n])
			c.process(ctx, samples)
		}

		if poll != nil {
			poll.Reset(c.cfg.PollInterval)
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
			}
		}
	}
}

// process runs one frame through history, classifier and segmenter.
func (c *Capture) process(ctx context.Context, frame []float32) {
	c.mu.Lock()
	if c.nextParams != nil {
		c.applyParamsLocked(*c.nextParams)
		c.seg.SetParams(c.params)
		c.nextParams = nil
		c.log.Info("capture: vad params updated",
			"energy_threshold", c.params.EnergyThreshold,
			"freq_threshold", c.params.FreqThreshold,
			"min_speech_ms", c.params.MinSpeechMs,
			"max_silence_ms", c.params.MaxSilenceMs,
		)
	}

	c.hist.Append(frame)
	window := c.hist.Tail(c.window)
	speech := c.classifier.Classify(window, c.cfg.SampleRate, c.params)
	ev, seg := c.seg.Step(len(frame), speech)
	lead := c.seg.LeadSamples()
	c.speechActive.Store(c.seg.Speaking())
	c.mu.Unlock()

	switch ev {
	case EventOnset:
		c.metrics.RecordSpeechActive(ctx, 1)
		c.log.Debug("capture: speech started", "lead_ms", lead*1000/int64(c.cfg.SampleRate))
	case EventOffset:
		c.metrics.RecordSpeechActive(ctx, -1)
		c.emit(ctx, seg)
	}
}

// emit hands seg to the slot.
func (c *Capture) emit(ctx context.Context, seg []float32) {
	length := time.Duration(len(seg)) * time.Second / time.Duration(c.cfg.SampleRate)
	c.metrics.RecordSegment(ctx, length)
	if c.slot.Put(seg) {
		c.metrics.RecordSegmentDropped(ctx)
		c.log.Warn("capture: previous segment was not consumed and has been replaced")
	}
	c.log.Debug("capture: segment ready", "samples", len(seg), "duration", length)
}

// applyParamsLocked installs p and sizes the history ring and VAD window.
// c.mu must be held.
func (c *Capture) applyParamsLocked(p vad.Params) {
	c.params = p
	capacity := audio.SamplesForMs(p.BufferHistoryMs, c.cfg.SampleRate)
	if c.hist == nil {
		c.hist = audio.NewHistory(capacity)
	} else {
		c.hist.Resize(capacity)
	}
	c.window = audio.SamplesForMs(p.WindowMs, c.cfg.SampleRate)
}

func (c *Capture) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.log.Error("capture loop stopped", "err", err)
}

// shutdown runs on the capture goroutine after the last iteration.
func (c *Capture) shutdown(ctx context.Context) {
	c.mu.Lock()
	var partial []float32
	if c.seg.Speaking() {
		partial = c.seg.Flush()
	}
	c.mu.Unlock()

	if len(partial) > 0 {
		c.metrics.RecordSpeechActive(context.WithoutCancel(ctx), -1)
		if c.cfg.FlushOnStop {
			c.emit(context.WithoutCancel(ctx), partial)
		} else {
			c.log.Debug("capture: dropping partial segment on stop", "samples", len(partial))
		}
	}

	if err := c.src.Close(); err != nil {
		c.log.Warn("capture: close device", "err", err)
	}
	c.speechActive.Store(false)
	c.capturing.Store(false)
	c.slot.Close()
	c.log.Info("capture stopped")
}
