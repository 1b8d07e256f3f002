package resilience

import (
	"context"

	"github.com/MrWong99/hark/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across language model
// backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a fallback provider with primary tried first.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Group exposes the underlying group for health reporting.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] { return f.group }

// Complete returns the reply of the first backend that succeeds.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
