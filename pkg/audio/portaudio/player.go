package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/hark/pkg/audio"
)

// playbackFrames is the number of frames written to the output stream per
// Write call. Cancellation is checked between writes.
const playbackFrames = 1024

// Player plays clips on a PortAudio output device. A new output stream is
// opened per clip so that clips with different formats can be played.
type Player struct {
	deviceID string
	mu       sync.Mutex
}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player for the named output device ("" or "default"
// selects the system default).
func NewPlayer(deviceID string) *Player {
	return &Player{deviceID: deviceID}
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if len(clip.PCM) == 0 {
		return nil
	}
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return fmt.Errorf("portaudio: play: invalid format %s", audio.FormatString(clip.SampleRate, clip.Channels))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	dev, err := lookupDevice(p.deviceID, false)
	if err != nil {
		return fmt.Errorf("portaudio: output device: %w", err)
	}

	buf := make([]int16, playbackFrames*clip.Channels)
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = clip.Channels
	params.SampleRate = float64(clip.SampleRate)
	params.FramesPerBuffer = playbackFrames

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream on %q: %w", dev.Name, err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	for off := 0; off < len(clip.PCM); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, clip.PCM[off:])
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}
