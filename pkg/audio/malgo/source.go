// Package malgo implements [audio.Source] on top of miniaudio through the
// github.com/gen2brain/malgo bindings.
//
// miniaudio delivers samples through a callback running on its own thread.
// Source bridges that push model to the blocking Read contract with a bounded
// queue of chunks. When the reader falls behind and the queue is full, the
// newest chunk is dropped and the next Read reports [audio.ErrOverrun].
package malgo

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/hark/pkg/audio"
)

// defaultQueueChunks is the number of device callbacks buffered between the
// audio thread and Read.
const defaultQueueChunks = 64

// Option is a functional option for [Source].
type Option func(*Source)

// WithQueueChunks sets how many device callbacks may be queued before input
// is dropped. Values below 1 are ignored.
func WithQueueChunks(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.queueChunks = n
		}
	}
}

// Source captures mono 16-bit PCM from a miniaudio capture device.
type Source struct {
	queueChunks int

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	chunks  chan []int16
	done    chan struct{}
	pending []int16

	overrun   atomic.Bool
	closeOnce sync.Once
}

var _ audio.Source = (*Source)(nil)

// New returns an unopened Source.
func New(opts ...Option) *Source {
	s := &Source{queueChunks: defaultQueueChunks}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open initialises a miniaudio context and starts a capture device for f.
// f.DeviceID is matched case-insensitively as a substring of the device name.
func (s *Source) Open(_ context.Context, f audio.Format) error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("malgo: open: invalid sample rate %d", f.SampleRate)
	}
	channels := max(f.Channels, 1)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Alsa.NoMMap = 1
	if f.FrameSamples > 0 {
		cfg.PeriodSizeInFrames = uint32(f.FrameSamples)
	}

	if id := f.DeviceID; id != "" && id != "default" {
		info, err := findDevice(mctx, id)
		if err != nil {
			uninitContext(mctx)
			return err
		}
		cfg.Capture.DeviceID = info.ID.Pointer()
	}

	s.chunks = make(chan []int16, s.queueChunks)
	s.done = make(chan struct{})

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		uninitContext(mctx)
		return fmt.Errorf("malgo: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		uninitContext(mctx)
		return fmt.Errorf("malgo: start device: %w", err)
	}

	s.mu.Lock()
	s.mctx = mctx
	s.device = device
	s.mu.Unlock()

	slog.Info("malgo capture started",
		"device", f.DeviceID,
		"format", audio.FormatString(f.SampleRate, channels),
	)
	return nil
}

// onData runs on the miniaudio thread.
func (s *Source) onData(_, input []byte, _ uint32) {
	if len(input) < 2 {
		return
	}
	pcm := make([]int16, len(input)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
	}
	select {
	case s.chunks <- pcm:
	case <-s.done:
	default:
		s.overrun.Store(true)
	}
}

// Read implements [audio.Source]. It blocks until at least one sample is
// available or the source is closed.
func (s *Source) Read(buf []int16) (int, error) {
	if s.chunks == nil {
		return 0, audio.ErrClosed
	}
	if s.overrun.Swap(false) {
		return 0, audio.ErrOverrun
	}

	n := 0
	if len(s.pending) > 0 {
		n = copy(buf, s.pending)
		s.pending = s.pending[n:]
	}
	for n < len(buf) {
		var chunk []int16
		if n == 0 {
			select {
			case chunk = <-s.chunks:
			case <-s.done:
				return 0, audio.ErrClosed
			}
		} else {
			select {
			case chunk = <-s.chunks:
			default:
				return n, nil
			}
		}
		m := copy(buf[n:], chunk)
		n += m
		if m < len(chunk) {
			s.pending = chunk[m:]
		}
	}
	return n, nil
}

// Recover implements [audio.Source]. Queued audio is discarded so that the
// reader resynchronises with the live stream.
func (s *Source) Recover() error {
	s.pending = nil
	for {
		select {
		case <-s.chunks:
		default:
			return nil
		}
	}
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.device != nil {
			if stopErr := s.device.Stop(); stopErr != nil {
				err = fmt.Errorf("malgo: stop device: %w", stopErr)
			}
			s.device.Uninit()
			s.device = nil
		}
		if s.mctx != nil {
			uninitContext(s.mctx)
			s.mctx = nil
		}
	})
	return err
}

// DeviceNames lists the names of all capture devices miniaudio can see.
func DeviceNames() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	defer uninitContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func findDevice(mctx *malgo.AllocatedContext, id string) (malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("malgo: enumerate devices: %w", err)
	}
	want := strings.ToLower(id)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), want) {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("malgo: no capture device matches %q", id)
}

func uninitContext(mctx *malgo.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		slog.Warn("malgo: uninit context", "err", err)
	}
	mctx.Free()
}
