// Package mock provides a scripted [vad.Classifier] for tests.
//
// Decisions are consumed from Script in order; once it is exhausted Default is
// returned. Every call is recorded so tests can inspect the windows and
// parameters the capture core passed in.
//
// Example:
//
//	cls := &mock.Classifier{Script: []bool{false, true, true, false}}
//	c := capture.New(src, cfg, capture.WithClassifier(cls))
package mock

import (
	"sync"

	"github.com/MrWong99/hark/pkg/provider/vad"
)

// ClassifyCall records a single invocation of Classifier.Classify.
type ClassifyCall struct {
	// WindowLen is the number of samples in the classified window.
	WindowLen int

	// SampleRate is the rate passed to Classify.
	SampleRate int

	// Params is the parameter set passed to Classify.
	Params vad.Params
}

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Script holds the results of successive Classify calls.
	Script []bool

	// Default is returned once Script is exhausted.
	Default bool

	// Calls records every call to Classify in order.
	Calls []ClassifyCall

	next int
}

// Classify implements vad.Classifier. An empty window is always non-speech
// and does not consume a scripted decision.
func (c *Classifier) Classify(window []float32, sampleRate int, p vad.Params) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, ClassifyCall{WindowLen: len(window), SampleRate: sampleRate, Params: p})
	if len(window) == 0 {
		return false
	}
	if c.next < len(c.Script) {
		v := c.Script[c.next]
		c.next++
		return v
	}
	return c.Default
}

// CallCount returns the number of Classify calls so far.
func (c *Classifier) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Recorded returns a copy of all recorded calls.
func (c *Classifier) Recorded() []ClassifyCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ClassifyCall, len(c.Calls))
	copy(out, c.Calls)
	return out
}

// LastCall returns the most recent call and whether there was one.
func (c *Classifier) LastCall() (ClassifyCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Calls) == 0 {
		return ClassifyCall{}, false
	}
	return c.Calls[len(c.Calls)-1], true
}

var _ vad.Classifier = (*Classifier)(nil)
