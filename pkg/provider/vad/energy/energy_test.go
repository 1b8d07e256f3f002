package energy_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/hark/pkg/provider/vad"
	"github.com/MrWong99/hark/pkg/provider/vad/energy"
)

const rate = 16000

func tone(freq, amp float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func TestIsSpeech_EmptyWindow(t *testing.T) {
	t.Parallel()

	thresholds := []struct{ energy, freq float64 }{
		{0, 0},
		{0.0001, 30},
		{0.6, 100},
		{-1, -1},
		{math.Inf(1), math.Inf(-1)},
	}
	for _, th := range thresholds {
		if energy.IsSpeech(nil, rate, th.energy, th.freq) {
			t.Errorf("nil window classified as speech for thresholds %+v", th)
		}
		if energy.IsSpeech([]float32{}, rate, th.energy, th.freq) {
			t.Errorf("empty window classified as speech for thresholds %+v", th)
		}
	}
}

func TestIsSpeech(t *testing.T) {
	t.Parallel()

	noise := make([]float32, 1600)
	r := rand.New(rand.NewPCG(1, 2))
	for i := range noise {
		noise[i] = float32(r.Float64()*2 - 1)
	}

	spike := make([]float32, 1600)
	for i := 0; i < len(spike); i += 100 {
		spike[i] = 1
	}

	tests := []struct {
		name       string
		window     []float32
		sampleRate int
		energyThr  float64
		freqThr    float64
		wantSpeech bool
	}{
		{"silence", make([]float32, 1600), rate, 0.0001, 30, false},
		{"200 Hz tone", tone(200, 0.5, 1600), rate, 0.0001, 30, true},
		{"tone below freq threshold", tone(200, 0.5, 1600), rate, 0.0001, 300, false},
		{"tone above speech band", tone(3500, 0.5, 1600), rate, 0.0001, 30, false},
		{"quiet tone above floor", tone(200, 0.02, 1600), rate, 0.0001, 30, true},
		{"tone too quiet for high threshold", tone(200, 0.5, 1600), rate, 0.6, 100, false},
		{"white noise", noise, rate, 0.0001, 30, false},
		{"isolated spikes", spike, rate, 0.0001, 0, false},
		{"zero sample rate", tone(200, 0.5, 1600), 0, 0.0001, 30, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := energy.IsSpeech(tc.window, tc.sampleRate, tc.energyThr, tc.freqThr)
			if got != tc.wantSpeech {
				t.Errorf("IsSpeech = %v, want %v", got, tc.wantSpeech)
			}
		})
	}
}

func TestIsSpeech_Deterministic(t *testing.T) {
	t.Parallel()

	w := tone(250, 0.3, 800)
	first := energy.IsSpeech(w, rate, 0.001, 50)
	for range 10 {
		if energy.IsSpeech(w, rate, 0.001, 50) != first {
			t.Fatal("IsSpeech returned different results for the same input")
		}
	}
}

func TestClassifier_UsesParams(t *testing.T) {
	t.Parallel()

	p := vad.DefaultParams()
	p.EnergyThreshold = 0.0001
	p.FreqThreshold = 30

	var c vad.Classifier = energy.Classifier{}
	if !c.Classify(tone(200, 0.5, 1600), rate, p) {
		t.Error("expected tone to be speech with low thresholds")
	}
	if c.Classify(tone(200, 0.5, 1600), rate, vad.DefaultParams()) {
		t.Error("expected tone to be rejected with default thresholds")
	}
}
