package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/MrWong99/hark/internal/config"
	"github.com/MrWong99/hark/pkg/audio/malgo"
	"github.com/MrWong99/hark/pkg/audio/portaudio"
)

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, watching bool) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║          hark startup summary         ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "STT", withModel(cfg.STT.Name, cfg.STT.Model, len(cfg.STT.Fallbacks)))
	printRow(w, "LLM", withModel(cfg.LLM.Name, cfg.LLM.Model, len(cfg.LLM.Fallbacks)))
	printRow(w, "TTS", withModel(cfg.TTS.Name, cfg.TTS.Voice, len(cfg.TTS.Fallbacks)))
	printRow(w, "VAD", cfg.VAD.Classifier)

	input := cfg.Audio.Backend
	switch {
	case cfg.Audio.Backend == "wavfile":
		input += " / " + cfg.Audio.File
	case cfg.Audio.Device != "":
		input += " / " + cfg.Audio.Device
	}
	printRow(w, "Input", input)
	output := "default"
	if cfg.Audio.OutputDevice != "" {
		output = cfg.Audio.OutputDevice
	}
	printRow(w, "Output", output)
	printRow(w, "Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))

	mode := "turn keyword " + fmt.Sprintf("%q", cfg.App.TurnKeyword)
	if cfg.App.Continuous {
		mode = "continuous"
	}
	printRow(w, "Mode", mode)
	if cfg.LLM.Persona != "" {
		printRow(w, "Persona", cfg.LLM.Persona)
	}
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow(w, "Listen addr", "(disabled)")
	}
	if watching {
		printRow(w, "Config reload", "on")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func withModel(name, detail string, fallbacks int) string {
	v := name
	if detail != "" {
		v += " / " + detail
	}
	if fallbacks > 0 {
		v += fmt.Sprintf(" (+%d)", fallbacks)
	}
	return v
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-14s : %-19s ║\n", label, value)
}

// ── Device listing ────────────────────────────────────────────────────────────

// printDevices lists the devices PortAudio and miniaudio can see. A backend
// that fails to enumerate is reported inline; an error is returned only when
// both fail.
func printDevices(w io.Writer) error {
	devs, paErr := portaudio.ListDevices()
	if paErr == nil {
		fmt.Fprintln(w, "PortAudio devices (--device and --output-device accept an index or a name):")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  INDEX\tNAME\tHOST API\tIN\tOUT\tRATE")
		for _, d := range devs {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\t%d\t%.0f\n",
				d.Index, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		}
		_ = tw.Flush()
	} else {
		fmt.Fprintf(w, "PortAudio: %v\n", paErr)
	}

	names, maErr := malgo.DeviceNames()
	fmt.Fprintln(w)
	if maErr == nil {
		fmt.Fprintln(w, "miniaudio capture devices (audio.backend: malgo):")
		for _, n := range names {
			fmt.Fprintf(w, "  %s\n", n)
		}
	} else {
		fmt.Fprintf(w, "miniaudio: %v\n", maErr)
	}

	if paErr != nil && maErr != nil {
		return errors.New("no audio backend could list devices")
	}
	return nil
}
