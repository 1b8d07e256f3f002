package capture

import (
	"github.com/MrWong99/hark/pkg/audio"
	"github.com/MrWong99/hark/pkg/provider/vad"
)

// State is the segmentation state.
type State int

const (
	// StateIdle means no utterance is in progress.
	StateIdle State = iota

	// StateSpeaking means an utterance has started and is being collected.
	StateSpeaking
)

// String returns a lowercase name for s.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Event is what a single [Segmenter.Step] changed.
type Event int

const (
	// EventNone means the state did not change.
	EventNone Event = iota

	// EventOnset means an utterance started with this step.
	EventOnset

	// EventOffset means an utterance ended with this step and its segment was
	// returned.
	EventOffset
)

// thresholds are the duration parameters converted to samples.
type thresholds struct {
	minSpeech        int64
	maxSilence       int64
	padding          int64
	earlyExitSpeech  int64
	earlyExitSilence int64
	earlyExit        bool
}

func newThresholds(p vad.Params, sampleRate int) thresholds {
	samples := func(ms int) int64 { return int64(audio.SamplesForMs(ms, sampleRate)) }
	th := thresholds{
		minSpeech:  samples(p.MinSpeechMs),
		maxSilence: samples(p.MaxSilenceMs),
		padding:    samples(p.PaddingMs),
		earlyExit:  p.EarlyExit.Enabled(),
	}
	if th.earlyExit {
		th.earlyExitSpeech = samples(p.EarlyExit.SpeechMs)
		th.earlyExitSilence = samples(p.MaxSilenceMs / p.EarlyExit.SilenceDivisor)
	}
	return th
}

// Segmenter turns per-frame speech decisions into padded utterance segments.
//
// It reads audio from a [audio.History] that the caller appends each frame to
// before calling [Segmenter.Step]. Run lengths are counted in samples, so
// every threshold is a duration independent of the frame size.
//
// Segmenter is not safe for concurrent use.
type Segmenter struct {
	hist       *audio.History
	sampleRate int
	th         thresholds

	state      State
	speechRun  int64
	silenceRun int64

	// cursor is the absolute history position up to which pending has been
	// filled.
	cursor  int64
	pending []float32

	// lastLead is the leading padding (in samples) of the current or most
	// recent utterance.
	lastLead int64
}

// NewSegmenter returns an idle Segmenter reading from hist.
func NewSegmenter(hist *audio.History, sampleRate int, p vad.Params) *Segmenter {
	return &Segmenter{
		hist:       hist,
		sampleRate: sampleRate,
		th:         newThresholds(p, sampleRate),
	}
}

// SetParams replaces the thresholds. Run counters and any utterance in
// progress are kept; the new thresholds apply to the rest of it.
func (s *Segmenter) SetParams(p vad.Params) {
	s.th = newThresholds(p, s.sampleRate)
}

// Reset returns to idle, discards any partial utterance and applies p.
func (s *Segmenter) Reset(p vad.Params) {
	s.th = newThresholds(p, s.sampleRate)
	s.toIdle()
	s.lastLead = 0
}

// State returns the current state.
func (s *Segmenter) State() State { return s.state }

// Speaking reports whether an utterance is in progress.
func (s *Segmenter) Speaking() bool { return s.state == StateSpeaking }

// LeadSamples returns the leading padding, in samples, chosen at the most
// recent onset.
func (s *Segmenter) LeadSamples() int64 { return s.lastLead }

// Step advances the state machine by one frame of n samples that has already
// been appended to the history. On [EventOffset] the completed segment is
// returned; it is owned by the caller.
func (s *Segmenter) Step(n int, speech bool) (Event, []float32) {
	if speech {
		return s.stepSpeech(int64(n)), nil
	}
	return s.stepSilence(int64(n))
}

func (s *Segmenter) stepSpeech(n int64) Event {
	s.speechRun += n
	s.silenceRun = 0

	if s.state == StateSpeaking {
		s.extend()
		return EventNone
	}
	if s.speechRun < s.th.minSpeech {
		return EventNone
	}

	oldest, written := s.hist.Oldest(), s.hist.Written()
	start := max(written-s.speechRun, oldest)
	avail := start - oldest
	lead := min(max(s.th.padding, avail/2), avail)

	s.lastLead = lead
	s.pending = s.hist.SliceFrom(start - lead)
	s.cursor = written
	s.state = StateSpeaking
	return EventOnset
}

func (s *Segmenter) stepSilence(n int64) (Event, []float32) {
	if s.state == StateIdle {
		s.speechRun = 0
		return EventNone, nil
	}

	s.silenceRun += n
	if !s.shouldEnd() {
		return EventNone, nil
	}

	from := max(s.cursor, s.hist.Oldest())
	trailing := min(s.silenceRun+s.th.padding, s.hist.Written()-from)
	if trailing > 0 {
		tail := s.hist.SliceFrom(from)
		s.pending = append(s.pending, tail[:trailing]...)
	}

	seg := s.pending
	s.toIdle()
	return EventOffset, seg
}

func (s *Segmenter) shouldEnd() bool {
	if s.silenceRun >= s.th.maxSilence {
		return true
	}
	return s.th.earlyExit &&
		s.speechRun > s.th.earlyExitSpeech &&
		s.silenceRun >= s.th.earlyExitSilence
}

// extend copies everything captured since the last copy into pending.
func (s *Segmenter) extend() {
	s.pending = append(s.pending, s.hist.SliceFrom(s.cursor)...)
	s.cursor = s.hist.Written()
}

// Flush ends an utterance in progress without waiting for silence and
// returns everything collected so far, including frames not yet copied. It
// returns nil when idle.
func (s *Segmenter) Flush() []float32 {
	if s.state != StateSpeaking {
		return nil
	}
	s.extend()
	seg := s.pending
	s.toIdle()
	return seg
}

func (s *Segmenter) toIdle() {
	s.state = StateIdle
	s.speechRun = 0
	s.silenceRun = 0
	s.cursor = 0
	s.pending = nil
}
