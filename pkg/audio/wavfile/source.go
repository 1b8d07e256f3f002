// Package wavfile implements an [audio.Source] that replays a WAV file as if
// it were a microphone. It is used for offline runs and end-to-end tests.
package wavfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
)

// Option is a functional option for [Source].
type Option func(*Source)

// WithRealtime paces Read so that each frame takes as long as the audio it
// contains. Without it the file is replayed as fast as it is consumed.
func WithRealtime() Option {
	return func(s *Source) { s.realtime = true }
}

// WithTrailingSilence appends d of silence after the file content so that a
// final utterance can end naturally.
func WithTrailingSilence(d time.Duration) Option {
	return func(s *Source) { s.trailing = d }
}

// Source replays decoded WAV samples. Read returns [io.EOF] once all samples
// (including trailing silence) have been delivered.
type Source struct {
	path     string
	realtime bool
	trailing time.Duration
	clip     audio.Clip

	pcm       []int16
	pos       int
	frameTime time.Duration
	next      time.Time
}

var _ audio.Source = (*Source)(nil)

// New returns a Source for the WAV file at path. The file is read on Open.
func New(path string, opts ...Option) *Source {
	s := &Source{path: path}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromClip returns a Source that replays clip instead of a file.
func NewFromClip(clip audio.Clip, opts ...Option) *Source {
	s := New("", opts...)
	s.clip = clip
	return s
}

// Open decodes the file and converts it to mono at f.SampleRate.
func (s *Source) Open(_ context.Context, f audio.Format) error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("wavfile: open: invalid sample rate %d", f.SampleRate)
	}

	clip := s.clip
	if s.path != "" {
		file, err := os.Open(s.path)
		if err != nil {
			return fmt.Errorf("wavfile: open: %w", err)
		}
		defer func() { _ = file.Close() }()

		clip, err = audio.DecodeWAV(file)
		if err != nil {
			return fmt.Errorf("wavfile: %s: %w", s.path, err)
		}
	}

	mono := audio.DownmixToMono(clip.PCM, clip.Channels)
	mono = audio.ResampleS16(mono, clip.SampleRate, f.SampleRate)
	if s.trailing > 0 {
		mono = append(mono, make([]int16, audio.SamplesFor(s.trailing, f.SampleRate))...)
	}

	s.pcm = mono
	s.pos = 0
	if f.FrameSamples > 0 {
		s.frameTime = time.Duration(f.FrameSamples) * time.Second / time.Duration(f.SampleRate)
	}
	s.next = time.Time{}
	return nil
}

// Read implements [audio.Source].
func (s *Source) Read(buf []int16) (int, error) {
	if s.pos >= len(s.pcm) {
		return 0, io.EOF
	}
	if s.realtime && s.frameTime > 0 {
		now := time.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if wait := s.next.Sub(now); wait > 0 {
			time.Sleep(wait)
		}
		s.next = s.next.Add(s.frameTime)
	}
	n := copy(buf, s.pcm[s.pos:])
	s.pos += n
	return n, nil
}

// Recover implements [audio.Source]. File replay never overruns.
func (s *Source) Recover() error { return nil }

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.pcm = nil
	s.pos = 0
	return nil
}
