// Package audio defines the device abstractions and sample helpers shared by
// the capture core and the speech collaborators.
//
// The two primary abstractions are:
//
//   - [Source]: a blocking, frame-oriented capture device producing 16-bit
//     samples at a fixed rate (microphone, file replay or test script).
//   - [Player]: an output device that plays a finished [Clip].
//
// Implementations live in backend packages (audio/portaudio, audio/malgo,
// audio/wavfile, audio/mock). The capture loop only sees the interfaces.
//
// This package lives under pkg/ because external code is expected to provide
// additional backends.
package audio

import (
	"context"
	"errors"
)

// ErrOverrun is returned by [Source.Read] when the device dropped input
// because it was not read fast enough. It is recoverable: the caller should
// invoke [Source.Recover] and keep reading.
var ErrOverrun = errors.New("audio: input overrun")

// ErrClosed is returned by operations on a [Source] or [Player] that has
// already been closed.
var ErrClosed = errors.New("audio: device closed")

// Format describes how a capture device should be opened.
type Format struct {
	// DeviceID selects the input device. "" and "default" select the system
	// default; backends document any other accepted identifiers.
	DeviceID string

	// SampleRate in Hz (e.g., 16000 for speech recognition).
	SampleRate int

	// Channels is the channel count delivered by Read. The capture core always
	// requests 1 (mono).
	Channels int

	// FrameSamples is the number of samples per channel delivered by one Read
	// call (e.g., 1600 for 100 ms at 16 kHz).
	FrameSamples int
}

// Source is a blocking capture device.
//
// A Source is driven by exactly one goroutine: Open, Read, Recover and Close
// are never called concurrently by the capture loop. Implementations only need
// to make Close safe to call more than once.
type Source interface {
	// Open acquires the device and configures it for f. An error here is fatal
	// for the capture session.
	Open(ctx context.Context, f Format) error

	// Read blocks until up to len(buf) samples are available, copies them into
	// buf and returns the count. A short read is valid. Read returns
	// [ErrOverrun] for recoverable overruns and io.EOF when a finite source
	// has no more audio; any other error is fatal.
	Read(buf []int16) (int, error)

	// Recover re-prepares the device after [ErrOverrun].
	Recover() error

	// Close releases the device. Calling Close more than once returns nil.
	Close() error
}

// Player plays finished clips on an output device.
//
// Implementations must be safe for concurrent use; overlapping Play calls are
// serialised.
type Player interface {
	// Play blocks until clip has been played completely or ctx is cancelled.
	Play(ctx context.Context, clip Clip) error
}
