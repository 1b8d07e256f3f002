package capture

import (
	"context"
	"sync"
	"time"
)

// Slot is a single-segment mailbox between the capture goroutine and one
// consumer. A new segment replaces an undrained one; segments are never
// queued.
//
// Waiters block on a broadcast channel that Put and Close close and replace.
// The zero value is not usable; create slots with [NewSlot].
type Slot struct {
	mu      sync.Mutex
	seg     []float32
	full    bool
	closed  bool
	notify  chan struct{}
	dropped int64
}

// NewSlot returns an empty, open Slot.
func NewSlot() *Slot {
	return &Slot{notify: make(chan struct{})}
}

// Put stores seg, replacing any segment that has not been taken yet. It
// reports whether a segment was replaced. Put on a closed slot still stores
// seg so that a final segment can be drained after shutdown.
func (s *Slot) Put(seg []float32) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced = s.full
	if replaced {
		s.dropped++
	}
	s.seg = seg
	s.full = true
	s.broadcast()
	return replaced
}

// Wait blocks until a segment is available, timeout elapses, ctx is done or
// the slot is closed, whichever comes first. A stored segment is always
// returned before the closed state is reported. ok is false when no segment
// was taken.
//
// A non-positive timeout polls without blocking.
func (s *Slot) Wait(ctx context.Context, timeout time.Duration) (seg []float32, ok bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		if s.full {
			seg = s.seg
			s.seg = nil
			s.full = false
			s.mu.Unlock()
			return seg, true
		}
		if s.closed || timeout <= 0 {
			s.mu.Unlock()
			return nil, false
		}
		wake := s.notify
		s.mu.Unlock()

		select {
		case <-wake:
		case <-deadline:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Close wakes every waiter. Later waits return immediately once the slot is
// empty. Close is idempotent.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.broadcast()
}

// Closed reports whether Close has been called.
func (s *Slot) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dropped returns how many segments were replaced before being taken.
func (s *Slot) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// broadcast wakes all current waiters. s.mu must be held.
func (s *Slot) broadcast() {
	close(s.notify)
	s.notify = make(chan struct{})
}
