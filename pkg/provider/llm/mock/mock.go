// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the conversation layer sends the
// expected CompletionRequests and to feed controlled replies without a live
// LLM backend.
//
// Example:
//
//	p := &mock.Provider{Replies: []string{"Hello!"}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hark/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete. Its Messages slice is
	// copied.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Replies is consumed front to back, one entry per successful call.
	Replies []string

	// Default is returned once Replies is exhausted.
	Default string

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every call to Complete.
	Calls []CompleteCall
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = append([]llm.Message(nil), req.Messages...)
	p.Calls = append(p.Calls, CompleteCall{Req: req})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	reply := p.Default
	if len(p.Replies) > 0 {
		reply = p.Replies[0]
		p.Replies = p.Replies[1:]
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the most recent request, or false if none was made.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.Calls[len(p.Calls)-1].Req, true
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
