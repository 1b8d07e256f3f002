package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/hark/pkg/audio"
)

// Source captures 16-bit PCM from a PortAudio input stream.
type Source struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

var _ audio.Source = (*Source)(nil)

// NewSource returns an unopened Source.
func NewSource() *Source { return &Source{} }

// Open initialises PortAudio and starts a blocking input stream delivering
// f.FrameSamples samples per Read.
func (s *Source) Open(_ context.Context, f audio.Format) error {
	if f.SampleRate <= 0 || f.FrameSamples <= 0 {
		return fmt.Errorf("portaudio: open: invalid format %s with %d samples per frame",
			audio.FormatString(f.SampleRate, f.Channels), f.FrameSamples)
	}
	channels := max(f.Channels, 1)

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}

	dev, err := lookupDevice(f.DeviceID, true)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: input device: %w", err)
	}

	buf := make([]int16, f.FrameSamples*channels)
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = channels
	params.SampleRate = float64(f.SampleRate)
	params.FramesPerBuffer = f.FrameSamples

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.buf = buf
	s.closed = false
	s.mu.Unlock()

	slog.Info("portaudio capture started",
		"device", dev.Name,
		"format", audio.FormatString(f.SampleRate, channels),
		"frame_samples", f.FrameSamples,
	)
	return nil
}

// Read implements [audio.Source]. PortAudio always fills the whole stream
// buffer, so at most one frame is copied per call.
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	stream, frame := s.stream, s.buf
	s.mu.Unlock()
	if stream == nil {
		return 0, audio.ErrClosed
	}

	if err := stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return 0, audio.ErrOverrun
		}
		return 0, fmt.Errorf("portaudio: read: %w", err)
	}
	return copy(buf, frame), nil
}

// Recover implements [audio.Source]. PortAudio keeps the stream running
// after an overflow, so there is nothing to re-prepare.
func (s *Source) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return audio.ErrClosed
	}
	return nil
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.stream == nil {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	s.stream = nil
	return errors.Join(errs...)
}
