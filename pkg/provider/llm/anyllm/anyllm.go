// Package anyllm answers turns through github.com/mozilla-ai/any-llm-go,
// which puts Ollama, Anthropic, Gemini and several hosted APIs behind one
// completion call.
//
//	p, err := anyllm.NewOllama("llama3.2")
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/hark/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

// adapt erases the concrete provider type so every backend fits one table.
func adapt[P anyllmlib.Provider](ctor func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		p, err := ctor(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var backends = map[string]backendFunc{
	"ollama":    adapt(ollama.New),
	"openai":    adapt(anyllmoai.New),
	"anthropic": adapt(anthropic.New),
	"gemini":    adapt(gemini.New),
	"deepseek":  adapt(deepseek.New),
	"mistral":   adapt(mistral.New),
	"groq":      adapt(groq.New),
	"llamacpp":  adapt(llamacpp.New),
	"llamafile": adapt(llamafile.New),
}

// Backends lists the names [New] accepts.
var Backends = []string{"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Provider is an llm.Provider for one model on one any-llm backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New returns a Provider for model on the named backend. Names are matched
// case-insensitively. Hosted backends read their key from the environment
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...) unless anyllmlib.WithAPIKey is
// given.
func New(backend, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name := strings.ToLower(backend)
	switch {
	case name == "":
		return nil, errors.New("anyllm: backend must not be empty")
	case model == "":
		return nil, errors.New("anyllm: model must not be empty")
	}

	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported backend %q (have %s)", backend, strings.Join(Backends, ", "))
	}
	b, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", name, err)
	}
	return &Provider{backend: b, name: name, model: model}, nil
}

// NewOllama talks to a local Ollama server, http://localhost:11434 unless
// anyllmlib.WithBaseURL says otherwise.
func NewOllama(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("ollama", model, opts...)
}

func NewOpenAI(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("openai", model, opts...)
}

func NewAnthropic(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("anthropic", model, opts...)
}

func NewGemini(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("gemini", model, opts...)
}

// Name returns the lower-cased backend name.
func (p *Provider) Name() string { return p.name }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: response has no choices", p.name)
	}

	out := &llm.CompletionResponse{Content: strings.TrimSpace(resp.Choices[0].Message.ContentString())}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// buildParams puts the system prompt first and leaves zero Temperature and
// MaxTokens unset.
func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(req.Messages)+1),
	}
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	if t := req.Temperature; t != 0 {
		params.Temperature = &t
	}
	if n := req.MaxTokens; n > 0 {
		params.MaxTokens = &n
	}
	return params
}
