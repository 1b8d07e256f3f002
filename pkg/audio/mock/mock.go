// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{
//	    Script: []mock.Read{
//	        {PCM: tone},
//	        {Err: audio.ErrOverrun},
//	    },
//	    ReadDelay: time.Millisecond,
//	}
//	c := capture.New(src, cfg)
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/hark/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Read is one scripted result of [Source.Read].
type Read struct {
	// PCM is copied into the caller's buffer. It is truncated to the buffer
	// length.
	PCM []int16

	// Err is returned together with the copied sample count.
	Err error
}

// Source is a mock implementation of [audio.Source].
//
// Reads consume Script in order. Once the script is exhausted every Read
// returns a full buffer of silence, unless EOFAfterScript is set, in which
// case it returns io.EOF like a finite source that ran out of audio.
type Source struct {
	mu sync.Mutex

	// Script holds the results of successive Read calls.
	Script []Read

	// ReadDelay is slept before every Read to emulate device pacing.
	ReadDelay time.Duration

	// EOFAfterScript makes Read report io.EOF once the script has been
	// consumed.
	EOFAfterScript bool

	// OpenErr is returned by [Source.Open].
	OpenErr error

	// RecoverErr is returned by [Source.Recover].
	RecoverErr error

	// CloseErr is returned by [Source.Close].
	CloseErr error

	// OpenedFormat records the format passed to the most recent Open.
	OpenedFormat audio.Format

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountRead records how many times Read was called.
	CallCountRead int

	// CallCountRecover records how many times Recover was called.
	CallCountRecover int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, f audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	s.OpenedFormat = f
	return s.OpenErr
}

// Read implements [audio.Source].
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	delay := s.ReadDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRead++

	if s.next < len(s.Script) {
		r := s.Script[s.next]
		s.next++
		n := copy(buf, r.PCM)
		return n, r.Err
	}
	if s.EOFAfterScript {
		return 0, io.EOF
	}
	clear(buf)
	return len(buf), nil
}

// Recover implements [audio.Source].
func (s *Source) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRecover++
	return s.RecoverErr
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseErr
}

// Remaining reports how many scripted reads have not been consumed yet.
func (s *Source) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Script) - s.next
}

// Counts returns a consistent snapshot of the open, read, recover and close
// call counters.
func (s *Source) Counts() (open, read, recover, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountOpen, s.CallCountRead, s.CallCountRecover, s.CallCountClose
}

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by [Player.Play].
	PlayErr error

	// Played records every clip passed to Play, in order.
	Played []audio.Clip
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Played = append(p.Played, clip)
	return p.PlayErr
}

// Clips returns a copy of the recorded clips.
func (p *Player) Clips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]audio.Clip, len(p.Played))
	copy(out, p.Played)
	return out
}

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Player = (*Player)(nil)
)
