// Package openai answers turns through the OpenAI Chat Completions API. Any
// server speaking the same protocol (vLLM, LM Studio, llama.cpp's server)
// works through WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/hark/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is an llm.Provider for one chat model.
type Provider struct {
	client oai.Client
	model  string
}

// Option adds a request option to every call the client makes.
type Option func(*[]option.RequestOption)

func with(o option.RequestOption) Option {
	return func(opts *[]option.RequestOption) { *opts = append(*opts, o) }
}

// WithBaseURL points the client at another OpenAI-compatible server.
func WithBaseURL(url string) Option { return with(option.WithBaseURL(url)) }

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option { return with(option.WithOrganization(org)) }

// WithTimeout bounds each attempt of a request.
func WithTimeout(d time.Duration) Option { return with(option.WithRequestTimeout(d)) }

// WithMaxRetries sets how often a failed request is retried. The SDK default
// is 2.
func WithMaxRetries(n int) Option { return with(option.WithMaxRetries(n)) }

// New returns a Provider for model. apiKey and model are required.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	switch {
	case apiKey == "":
		return nil, errors.New("openai: apiKey must not be empty")
	case model == "":
		return nil, errors.New("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements llm.Provider. The reply is trimmed of surrounding
// whitespace.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: chat completion: status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	u := resp.Usage
	return &llm.CompletionResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: llm.Usage{
			PromptTokens:     int(u.PromptTokens),
			CompletionTokens: int(u.CompletionTokens),
			TotalTokens:      int(u.TotalTokens),
		},
	}, nil
}

// buildParams maps req onto the SDK request. The system prompt goes first;
// zero Temperature and MaxTokens are omitted so the server defaults apply.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model)}

	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("%w (message %d)", err, i)
		}
		params.Messages = append(params.Messages, msg)
	}

	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
}
