// Package portaudio implements [audio.Source] and [audio.Player] with the
// PortAudio bindings from github.com/gordonklaus/portaudio.
//
// PortAudio reference-counts Initialize/Terminate, so every Source and Player
// initialises the library on open and terminates it on close.
package portaudio

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Device describes one PortAudio device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices enumerates all devices known to PortAudio.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	out := make([]Device, 0, len(infos))
	for i, info := range infos {
		d := Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		out = append(out, d)
	}
	return out, nil
}

// lookupDevice resolves id to a device. "" and "default" resolve to the
// default device for the direction; anything else is matched
// case-insensitively as a substring of the device name. PortAudio must be
// initialised.
func lookupDevice(id string, input bool) (*portaudio.DeviceInfo, error) {
	if id == "" || id == "default" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(id)
	for _, info := range infos {
		if input && info.MaxInputChannels == 0 {
			continue
		}
		if !input && info.MaxOutputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(info.Name), want) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("no device matches %q", id)
}
