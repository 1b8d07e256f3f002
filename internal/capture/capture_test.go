package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/pkg/audio"
	audiomock "github.com/MrWong99/hark/pkg/audio/mock"
	"github.com/MrWong99/hark/pkg/provider/vad"
	vadmock "github.com/MrWong99/hark/pkg/provider/vad/mock"
)

const (
	rate        = 16000
	frameSample = 1600 // 100 ms
)

// stepSource hands out exactly the frames a test feeds it. When no frame is
// pending Read returns zero samples, which the loop treats as a no-op, so
// the loop never blocks on it for long.
type stepSource struct {
	frames chan []int16

	mu       sync.Mutex
	opened   audio.Format
	closeCnt int
}

func newStepSource() *stepSource {
	return &stepSource{frames: make(chan []int16)}
}

func (s *stepSource) Open(_ context.Context, f audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = f
	return nil
}

func (s *stepSource) Read(buf []int16) (int, error) {
	select {
	case f := <-s.frames:
		return copy(buf, f), nil
	case <-time.After(2 * time.Millisecond):
		return 0, nil
	}
}

func (s *stepSource) Recover() error { return nil }

func (s *stepSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCnt++
	return nil
}

// feed delivers frame and returns once the loop has fully processed it.
func (s *stepSource) feed(t *testing.T, frame []int16) {
	t.Helper()
	for _, f := range [][]int16{frame, {}} {
		select {
		case s.frames <- f:
		case <-time.After(2 * time.Second):
			t.Fatal("capture loop did not read the next frame")
		}
	}
}

func zeros() []int16 { return make([]int16, frameSample) }

// toneFrame returns one frame of a 200 Hz sine at amplitude 0.5, continuing
// the phase of frame index k.
func toneFrame(k int) []int16 {
	out := make([]int16, frameSample)
	for i := range out {
		n := k*frameSample + i
		out[i] = int16(0.5 * 32767 * math.Sin(2*math.Pi*200*float64(n)/rate))
	}
	return out
}

func scenarioParams() vad.Params {
	return vad.Params{
		EnergyThreshold: 0.0001,
		FreqThreshold:   30,
		MinSpeechMs:     100,
		MaxSilenceMs:    1500,
		PaddingMs:       1000,
		BufferHistoryMs: 8000,
		WindowMs:        100,
		EarlyExit:       vad.EarlyExit{SpeechMs: 1000, SilenceDivisor: 3},
	}
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func startCapture(t *testing.T, src audio.Source, cfg Config, opts ...Option) *Capture {
	t.Helper()
	opts = append([]Option{WithMetrics(newTestMetrics(t))}, opts...)
	c := New(src, cfg, opts...)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

func scenarioConfig() Config {
	return Config{
		SampleRate:   rate,
		FrameMs:      100,
		PollInterval: time.Millisecond,
		VAD:          scenarioParams(),
	}
}

func TestCapture_EndToEndScenario(t *testing.T) {
	t.Parallel()

	src := newStepSource()
	c := startCapture(t, src, scenarioConfig())

	if !c.IsCapturing() {
		t.Fatal("IsCapturing = false after Start")
	}
	if f := src.opened; f.SampleRate != rate || f.Channels != 1 || f.FrameSamples != frameSample {
		t.Errorf("device opened with %+v", f)
	}

	// One second of silence.
	for range 10 {
		src.feed(t, zeros())
		if c.IsSpeechActive() {
			t.Fatal("speech active during silence")
		}
	}

	// 200 ms of tone.
	for k := range 2 {
		src.feed(t, toneFrame(k))
		if !c.IsSpeechActive() {
			t.Fatalf("speech not active after %d ms of tone", (k+1)*100)
		}
	}

	// 1.5 s of silence ends the utterance on the last frame.
	for i := range 15 {
		src.feed(t, zeros())
		if i < 14 && !c.IsSpeechActive() {
			t.Fatalf("utterance ended after only %d ms of silence", (i+1)*100)
		}
	}
	if c.IsSpeechActive() {
		t.Fatal("speech still active after max silence")
	}

	seg := c.WaitForSpeech(time.Second)
	if len(seg) < 3200 {
		t.Fatalf("segment has %d samples, want at least the 3200 tone samples", len(seg))
	}
	// 1 s of lead padding, the tone, then the whole 1.5 s silence run. The
	// trailing padding would reach past the newest sample, so it stops there.
	if want := 16000 + 3200 + 24000; len(seg) != want {
		t.Errorf("segment has %d samples, want %d", len(seg), want)
	}
	var peak float32
	for _, s := range seg {
		peak = max(peak, s, -s)
	}
	if peak < 0.45 || peak > 0.5 {
		t.Errorf("segment peak = %v, want the 0.5 tone", peak)
	}

	// The slot was drained.
	if again := c.WaitForSpeech(10 * time.Millisecond); len(again) != 0 {
		t.Errorf("second WaitForSpeech returned %d samples", len(again))
	}
}

func TestCapture_StopWakesBlockedConsumer(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{ReadDelay: time.Millisecond}
	c := startCapture(t, src, scenarioConfig())

	got := make(chan []float32, 1)
	go func() { got <- c.WaitForSpeech(20 * time.Second) }()

	time.Sleep(30 * time.Millisecond)
	start := time.Now()
	c.Stop()

	select {
	case seg := <-got:
		if len(seg) != 0 {
			t.Errorf("WaitForSpeech returned %d samples, want empty", len(seg))
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("consumer woke after %v", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("consumer still blocked after Stop")
	}

	if c.IsCapturing() {
		t.Error("IsCapturing = true after Stop")
	}
	if _, _, _, closed := src.Counts(); closed != 1 {
		t.Errorf("device closed %d times, want 1", closed)
	}
	c.Stop() // idempotent
}

func TestCapture_WaitForSpeechTimeout(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{ReadDelay: time.Millisecond}
	c := startCapture(t, src, scenarioConfig())

	start := time.Now()
	seg := c.WaitForSpeech(50 * time.Millisecond)
	if len(seg) != 0 {
		t.Errorf("got %d samples from silence", len(seg))
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if !c.IsCapturing() {
		t.Error("timeout stopped the capture")
	}
}

func TestCapture_OverrunIsRecoverable(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{
		Script: []audiomock.Read{
			{PCM: zeros()},
			{Err: audio.ErrOverrun},
			{PCM: zeros()},
			{Err: audio.ErrOverrun},
		},
		ReadDelay: time.Millisecond,
	}
	c := startCapture(t, src, scenarioConfig())

	deadline := time.Now().Add(2 * time.Second)
	for src.Remaining() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if !c.IsCapturing() {
		t.Fatalf("capture stopped after overrun: %v", c.Err())
	}
	if c.Err() != nil {
		t.Errorf("Err = %v, want nil", c.Err())
	}
	if _, _, recovered, _ := src.Counts(); recovered != 2 {
		t.Errorf("Recover called %d times, want 2", recovered)
	}
}

func TestCapture_FatalReadError(t *testing.T) {
	t.Parallel()

	unplugged := errors.New("device unplugged")
	src := &audiomock.Source{
		Script:    []audiomock.Read{{PCM: zeros()}, {Err: unplugged}},
		ReadDelay: time.Millisecond,
	}
	c := startCapture(t, src, scenarioConfig())

	start := time.Now()
	seg := c.WaitForSpeech(20 * time.Second)
	if len(seg) != 0 {
		t.Errorf("got %d samples after fatal error", len(seg))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("consumer woke after %v", elapsed)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	if c.IsCapturing() {
		t.Error("IsCapturing = true after fatal error")
	}
	if !errors.Is(c.Err(), unplugged) {
		t.Errorf("Err = %v, want wrapped %v", c.Err(), unplugged)
	}
	if _, _, _, closed := src.Counts(); closed != 1 {
		t.Errorf("device closed %d times, want 1", closed)
	}
}

func TestCapture_EndOfInput(t *testing.T) {
	t.Parallel()

	var script []audiomock.Read
	for range 10 {
		script = append(script, audiomock.Read{PCM: zeros()})
	}
	for k := range 3 {
		script = append(script, audiomock.Read{PCM: toneFrame(k)})
	}
	for range 16 {
		script = append(script, audiomock.Read{PCM: zeros()})
	}
	src := &audiomock.Source{Script: script, EOFAfterScript: true}
	c := startCapture(t, src, scenarioConfig())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit at end of input")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err = %v, want nil for end of input", err)
	}
	if c.IsCapturing() {
		t.Error("IsCapturing = true after end of input")
	}

	// The utterance completed before the input ended and is still handed out.
	if seg := c.WaitForSpeech(time.Second); len(seg) < 3*frameSample {
		t.Errorf("segment has %d samples, want at least the %d tone samples", len(seg), 3*frameSample)
	}
	if _, _, _, closed := src.Counts(); closed != 1 {
		t.Errorf("device closed %d times, want 1", closed)
	}
}

func TestCapture_FailedRecoverIsFatal(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{
		Script:     []audiomock.Read{{Err: audio.ErrOverrun}},
		RecoverErr: errors.New("prepare failed"),
	}
	c := startCapture(t, src, scenarioConfig())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	if c.Err() == nil {
		t.Error("Err = nil after failed recovery")
	}
}

func TestCapture_OpenFailure(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{OpenErr: errors.New("no such device")}
	c := New(src, scenarioConfig(), WithMetrics(newTestMetrics(t)))

	err := c.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with a failing device")
	}
	if !errors.Is(err, src.OpenErr) {
		t.Errorf("Start error = %v, want wrapped open error", err)
	}
	if c.IsCapturing() {
		t.Error("IsCapturing = true after failed Start")
	}

	start := time.Now()
	if seg := c.WaitForSpeech(5 * time.Second); len(seg) != 0 {
		t.Error("WaitForSpeech returned samples")
	}
	if time.Since(start) > time.Second {
		t.Error("WaitForSpeech blocked after failed Start")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("restart error = %v, want ErrStopped", err)
	}
}

func TestCapture_StartTwice(t *testing.T) {
	t.Parallel()

	c := startCapture(t, &audiomock.Source{ReadDelay: time.Millisecond}, scenarioConfig())
	if err := c.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestCapture_ParentContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(&audiomock.Source{ReadDelay: time.Millisecond}, scenarioConfig(), WithMetrics(newTestMetrics(t)))
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop ignored context cancellation")
	}
	if c.IsCapturing() {
		t.Error("IsCapturing = true after cancellation")
	}
}

func TestCapture_StopMidUtterance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		flushOnStop bool
		wantLen     int
	}{
		{"drop by default", false, 0},
		// 1 s of lead padding plus 500 ms of tone.
		{"flush on stop", true, 16000 + 8000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := scenarioConfig()
			cfg.FlushOnStop = tc.flushOnStop
			src := newStepSource()
			c := startCapture(t, src, cfg)

			for range 10 {
				src.feed(t, zeros())
			}
			for k := range 5 {
				src.feed(t, toneFrame(k))
			}
			if !c.IsSpeechActive() {
				t.Fatal("no utterance in progress")
			}

			c.Stop()
			seg := c.WaitForSpeech(100 * time.Millisecond)
			if len(seg) != tc.wantLen {
				t.Errorf("segment after stop has %d samples, want %d", len(seg), tc.wantLen)
			}
			if c.IsSpeechActive() {
				t.Error("IsSpeechActive = true after Stop")
			}
		})
	}
}

func TestCapture_UndrainedSegmentIsReplaced(t *testing.T) {
	t.Parallel()

	src := newStepSource()
	c := startCapture(t, src, scenarioConfig())

	utterance := func(toneFrames int) {
		for k := range toneFrames {
			src.feed(t, toneFrame(k))
		}
		for range 15 {
			src.feed(t, zeros())
		}
	}

	for range 10 {
		src.feed(t, zeros())
	}
	utterance(2)
	utterance(4)

	if got := c.DroppedSegments(); got != 1 {
		t.Errorf("DroppedSegments = %d, want 1", got)
	}

	seg := c.WaitForSpeech(time.Second)
	if len(seg) == 0 {
		t.Fatal("no segment available")
	}
	// Only the second, longer utterance is retrievable. Its tone covers 400 ms.
	var loud int
	for _, s := range seg {
		if s > 0.3 || s < -0.3 {
			loud++
		}
	}
	if loud < 3200 {
		t.Errorf("retrieved segment has %d loud samples, want the 400 ms utterance", loud)
	}
	if again := c.WaitForSpeech(10 * time.Millisecond); len(again) != 0 {
		t.Error("replaced segment was still queued")
	}
}

func TestCapture_SetVADParamsAppliesNextIteration(t *testing.T) {
	t.Parallel()

	cfg := scenarioConfig()
	cfg.VAD.FreqThreshold = 1000 // the 200 Hz tone is rejected
	src := newStepSource()
	c := startCapture(t, src, cfg)

	for k := range 3 {
		src.feed(t, toneFrame(k))
	}
	if c.IsSpeechActive() {
		t.Fatal("tone classified as speech above the frequency threshold")
	}

	p := scenarioParams()
	c.SetVADParams(p)
	if got := c.VADParams(); got.FreqThreshold != 30 {
		t.Errorf("VADParams().FreqThreshold = %v, want pending 30", got.FreqThreshold)
	}
	src.feed(t, toneFrame(3))
	if !c.IsSpeechActive() {
		t.Error("new params not applied on the next frame")
	}
}

func TestCapture_ClassifierSeesWindow(t *testing.T) {
	t.Parallel()

	cls := &vadmock.Classifier{}
	cfg := scenarioConfig()
	cfg.VAD.WindowMs = 200
	src := newStepSource()
	startCapture(t, src, cfg, WithClassifier(cls))

	src.feed(t, zeros())
	src.feed(t, zeros())
	src.feed(t, zeros())

	calls := cls.Recorded()
	if len(calls) != 3 {
		t.Fatalf("Classify called %d times, want 3", len(calls))
	}
	if calls[0].WindowLen != 1600 {
		t.Errorf("first window = %d samples, want 1600 (history not yet full)", calls[0].WindowLen)
	}
	if calls[2].WindowLen != 3200 {
		t.Errorf("window = %d samples, want 3200", calls[2].WindowLen)
	}
	if calls[2].SampleRate != rate || calls[2].Params.MinSpeechMs != 100 {
		t.Errorf("classifier got rate %d and params %+v", calls[2].SampleRate, calls[2].Params)
	}
}

func TestCapture_OutOfRangeVADParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(*vad.Params)
		wantWindow int
		wantSpeech bool
	}{
		{
			// An empty window is never speech, whatever the classifier says.
			name:       "zero window",
			mutate:     func(p *vad.Params) { p.WindowMs = 0 },
			wantWindow: 0,
			wantSpeech: false,
		},
		{
			name:       "negative window",
			mutate:     func(p *vad.Params) { p.WindowMs = -100 },
			wantWindow: 0,
			wantSpeech: false,
		},
		{
			// The one-sample ring still feeds the classifier.
			name:       "zero buffer history",
			mutate:     func(p *vad.Params) { p.BufferHistoryMs = 0 },
			wantWindow: 1,
			wantSpeech: true,
		},
		{
			name: "negative durations",
			mutate: func(p *vad.Params) {
				p.MinSpeechMs = -100
				p.MaxSilenceMs = -100
			},
			wantWindow: frameSample,
			wantSpeech: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cls := &vadmock.Classifier{Default: true}
			cfg := scenarioConfig()
			tt.mutate(&cfg.VAD)
			src := newStepSource()
			c := startCapture(t, src, cfg, WithClassifier(cls))

			src.feed(t, toneFrame(0))

			call, ok := cls.LastCall()
			if !ok {
				t.Fatal("classifier not called")
			}
			if call.WindowLen != tt.wantWindow {
				t.Errorf("window = %d samples, want %d", call.WindowLen, tt.wantWindow)
			}
			// Parameters reach the classifier unchanged.
			if call.Params != cfg.VAD {
				t.Errorf("classifier params = %+v, want %+v", call.Params, cfg.VAD)
			}
			if got := c.VADParams(); got != cfg.VAD {
				t.Errorf("VADParams() = %+v, want %+v", got, cfg.VAD)
			}
			if got := c.IsSpeechActive(); got != tt.wantSpeech {
				t.Errorf("IsSpeechActive() = %v, want %v", got, tt.wantSpeech)
			}
		})
	}
}

// Non-positive device format fields mean "unset" and take the defaults.
func TestNew_DefaultFormat(t *testing.T) {
	t.Parallel()

	for _, v := range []int{0, -1} {
		cfg := scenarioConfig()
		cfg.SampleRate = v
		cfg.FrameMs = v
		src := newStepSource()
		startCapture(t, src, cfg)

		src.mu.Lock()
		got := src.opened
		src.mu.Unlock()
		if got.SampleRate != 16000 || got.FrameSamples != 1600 || got.Channels != 1 {
			t.Errorf("value %d: opened %+v, want 16 kHz mono with 1600-sample frames", v, got)
		}
	}
}
