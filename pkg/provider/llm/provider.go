// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (a local Ollama instance,
// OpenAI, Anthropic, ...) and exposes a uniform completion call so the
// conversation layer does not couple to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It must return promptly once ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
