package audio

// History is a fixed-capacity ring of the most recently captured samples,
// used as pre-roll context when an utterance starts.
//
// Positions are absolute: every sample ever appended has an index counting
// from zero at creation (or the last [History.Reset]). [History.Written] is
// the position one past the newest sample and [History.Oldest] the position of
// the oldest sample still retained. Appending beyond capacity overwrites the
// oldest samples, so Len never exceeds Cap.
//
// History is not safe for concurrent use; the capture loop guards it with its
// own mutex.
type History struct {
	buf     []float32
	head    int // index in buf of the oldest retained sample
	size    int // number of retained samples
	written int64
}

// NewHistory returns an empty ring holding at most capacity samples. A
// capacity below 1 is raised to 1.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]float32, capacity)}
}

// Append copies frame into the ring, evicting the oldest samples when the
// ring is full. It runs in O(len(frame)).
func (h *History) Append(frame []float32) {
	h.written += int64(len(frame))

	c := len(h.buf)
	if len(frame) >= c {
		// Only the newest c samples survive.
		copy(h.buf, frame[len(frame)-c:])
		h.head = 0
		h.size = c
		return
	}

	tail := (h.head + h.size) % c
	n := copy(h.buf[tail:], frame)
	copy(h.buf, frame[n:])

	h.size += len(frame)
	if h.size > c {
		h.head = (h.head + h.size - c) % c
		h.size = c
	}
}

// Len returns the number of retained samples.
func (h *History) Len() int { return h.size }

// Cap returns the ring capacity in samples.
func (h *History) Cap() int { return len(h.buf) }

// Written returns the absolute position one past the newest sample.
func (h *History) Written() int64 { return h.written }

// Oldest returns the absolute position of the oldest retained sample.
func (h *History) Oldest() int64 { return h.written - int64(h.size) }

// SliceFrom returns an owned copy of the samples from absolute position pos up
// to the newest sample. Positions before [History.Oldest] are clamped to it;
// positions at or beyond [History.Written] yield an empty slice.
func (h *History) SliceFrom(pos int64) []float32 {
	if pos < h.Oldest() {
		pos = h.Oldest()
	}
	if pos >= h.written {
		return []float32{}
	}
	return h.copyRange(int(pos-h.Oldest()), int(h.written-pos))
}

// Tail returns an owned copy of the newest n samples, or of all retained
// samples when fewer than n are available.
func (h *History) Tail(n int) []float32 {
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return []float32{}
	}
	return h.copyRange(h.size-n, n)
}

// Resize changes the ring capacity, keeping the newest samples that still fit
// and all absolute positions. A capacity below 1 is raised to 1.
func (h *History) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(h.buf) {
		return
	}
	keep := h.Tail(capacity)
	h.buf = make([]float32, capacity)
	copy(h.buf, keep)
	h.head = 0
	h.size = len(keep)
}

// Reset discards all samples and restarts absolute positions at zero.
func (h *History) Reset() {
	h.head = 0
	h.size = 0
	h.written = 0
}

// copyRange copies n samples starting at offset (relative to the oldest
// retained sample) into a fresh slice.
func (h *History) copyRange(offset, n int) []float32 {
	out := make([]float32, n)
	c := len(h.buf)
	start := (h.head + offset) % c
	m := copy(out, h.buf[start:min(start+n, c)])
	copy(out[m:], h.buf[:n-m])
	return out
}
