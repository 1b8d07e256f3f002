// Package vad defines voice activity detection for the capture core.
//
// A [Classifier] decides whether one window of normalised mono samples
// contains speech. Classifiers see no history: all hysteresis (minimum speech
// duration, silence timeout, padding) is applied by the segmenter that
// consumes their decisions, driven by the same [Params] value.
//
// The default classifier is the energy/zero-crossing analyzer in
// vad/energy. vad/webrtc wraps libfvad, and vad/mock provides a scripted
// classifier for tests.
package vad

// Classifier labels a single VAD window as speech or non-speech.
//
// Classify must return false for an empty window. It is called from the
// capture goroutine only, so implementations need not be safe for concurrent
// use unless they document otherwise.
type Classifier interface {
	Classify(window []float32, sampleRate int, p Params) bool
}

// ClassifierFunc adapts a plain function to [Classifier].
type ClassifierFunc func(window []float32, sampleRate int, p Params) bool

// Classify implements [Classifier].
func (f ClassifierFunc) Classify(window []float32, sampleRate int, p Params) bool {
	return f(window, sampleRate, p)
}
