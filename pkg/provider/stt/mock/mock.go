// Package mock provides a test double for the stt.Provider interface.
//
// Script the transcripts the provider should return in order; once the
// script is exhausted Default is returned. Every call is recorded.
//
//	p := &mock.Provider{Script: []mock.Result{{Text: "hello over"}}}
//	tr, _ := p.Transcribe(ctx, segment, 16000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/provider/stt"
)

// Result is one scripted Transcribe outcome.
type Result struct {
	// Text becomes the transcript text.
	Text string
	// Err, if non-nil, is returned instead of a transcript.
	Err error
}

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the segment passed to Transcribe.
	Samples []float32
	// SampleRate is the rate passed to Transcribe.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Script is consumed front to back, one entry per call.
	Script []Result

	// Default is returned once Script is exhausted.
	Default Result

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, sampleRate int) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, TranscribeCall{
		Samples:    append([]float32(nil), samples...),
		SampleRate: sampleRate,
	})

	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	r := p.Default
	if len(p.Script) > 0 {
		r = p.Script[0]
		p.Script = p.Script[1:]
	}
	if r.Err != nil {
		return stt.Transcript{}, r.Err
	}
	return stt.Transcript{
		Text:     r.Text,
		Duration: stt.SegmentDuration(len(samples), sampleRate),
	}, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Recorded returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Recorded() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.Calls...)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
