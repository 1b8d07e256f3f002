// Package energy implements the default voice activity classifier: a
// stateless mean-square energy and zero-crossing frequency test.
package energy

import "github.com/MrWong99/hark/pkg/provider/vad"

const (
	// EnergyFloor is an absolute energy level that counts as loud enough even
	// when the configured threshold is higher. It keeps quiet microphones
	// usable with the default threshold.
	EnergyFloor = 0.0001

	// MaxSpeechFreq is the upper bound (Hz) of the speech band.
	MaxSpeechFreq = 3000.0

	// MinActiveFraction is the share of samples that must individually exceed
	// half the energy threshold.
	MinActiveFraction = 0.10
)

// IsSpeech reports whether window looks like speech. All three conditions
// must hold:
//
//   - the mean-square energy exceeds energyThreshold or [EnergyFloor];
//   - the zero-crossing frequency estimate lies strictly between
//     freqThreshold and [MaxSpeechFreq];
//   - more than [MinActiveFraction] of the samples satisfy
//     s*s > energyThreshold/2.
//
// An empty window or a non-positive sample rate is never speech.
func IsSpeech(window []float32, sampleRate int, energyThreshold, freqThreshold float64) bool {
	if len(window) == 0 || sampleRate <= 0 {
		return false
	}

	activeLevel := energyThreshold * 0.5
	var (
		sum       float64
		crossings int
		active    int
	)
	for i, s := range window {
		sq := float64(s) * float64(s)
		sum += sq
		if sq > activeLevel {
			active++
		}
		if i > 0 && (window[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}

	n := float64(len(window))
	energy := sum / n
	if energy <= energyThreshold && energy <= EnergyFloor {
		return false
	}

	seconds := n / float64(sampleRate)
	freq := float64(crossings) / (2 * seconds)
	if freq <= freqThreshold || freq >= MaxSpeechFreq {
		return false
	}

	return float64(active)/n > MinActiveFraction
}

// Classifier is the [vad.Classifier] backed by [IsSpeech].
type Classifier struct{}

var _ vad.Classifier = Classifier{}

// Classify implements [vad.Classifier].
func (Classifier) Classify(window []float32, sampleRate int, p vad.Params) bool {
	return IsSpeech(window, sampleRate, p.EnergyThreshold, p.FreqThreshold)
}
