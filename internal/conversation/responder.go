// Package conversation turns user utterances into assistant replies.
//
// A [Responder] keeps a short rolling memory of (user, assistant) turns and
// sends it, after the system prompt, with every new user message. Only the
// most recent turns are sent, so the prompt stays bounded no matter how long
// the session runs.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hark/internal/observe"
	"github.com/MrWong99/hark/pkg/provider/llm"
)

// DefaultHistoryTurns is the number of past turns sent with each request.
const DefaultHistoryTurns = 5

// maxStoredTurns caps the retained history independently of the number of
// turns sent, so Len stays meaningful without growing forever.
const maxStoredTurns = 100

// ErrEmptyInput is returned by [Responder.Respond] for blank user text.
var ErrEmptyInput = errors.New("conversation: empty input")

// Turn is one completed exchange.
type Turn struct {
	User      string
	Assistant string
}

// Option configures a [Responder].
type Option func(*Responder)

// WithSystemPrompt sets the system prompt sent before the history.
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) { r.systemPrompt = prompt }
}

// WithHistoryTurns sets how many past turns are sent with each request.
// Values below zero are treated as zero.
func WithHistoryTurns(n int) Option {
	return func(r *Responder) { r.historyTurns = max(n, 0) }
}

// WithTemperature sets the sampling temperature passed to the model.
func WithTemperature(t float64) Option {
	return func(r *Responder) { r.temperature = t }
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(n int) Option {
	return func(r *Responder) { r.maxTokens = n }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(r *Responder) { r.providerName = name }
}

// WithMetrics records LLM latency and errors on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// WithSystemInfo appends a description of the host to the system prompt of
// every request, stamped with the time of that request.
func WithSystemInfo(info SystemInfo) Option {
	return func(r *Responder) { r.sysinfo = &info }
}

// Responder produces replies with an [llm.Provider] and remembers recent
// turns. All methods are safe for concurrent use.
type Responder struct {
	provider     llm.Provider
	systemPrompt string
	historyTurns int
	temperature  float64
	maxTokens    int
	providerName string
	metrics      *observe.Metrics
	sysinfo      *SystemInfo
	now          func() time.Time

	mu    sync.Mutex
	turns []Turn
}

// NewResponder returns a Responder backed by provider.
func NewResponder(provider llm.Provider, opts ...Option) *Responder {
	r := &Responder{
		provider:     provider,
		systemPrompt: DefaultSystemPrompt,
		historyTurns: DefaultHistoryTurns,
		providerName: "llm",
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Respond sends text with the recent history to the model and returns its
// reply. The exchange is remembered only when the reply is non-empty.
func (r *Responder) Respond(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	req := llm.CompletionRequest{
		Messages:     r.messages(text),
		SystemPrompt: r.prompt(),
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	}

	start := time.Now()
	resp, err := r.provider.Complete(ctx, req)
	if r.metrics != nil {
		r.metrics.RecordStage(ctx, "llm", r.providerName, time.Since(start), err)
	}
	if err != nil {
		return "", fmt.Errorf("conversation: respond: %w", err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		slog.Warn("conversation: model returned an empty reply")
		return "", nil
	}

	r.mu.Lock()
	r.turns = append(r.turns, Turn{User: text, Assistant: reply})
	if len(r.turns) > maxStoredTurns {
		r.turns = append([]Turn(nil), r.turns[len(r.turns)-maxStoredTurns:]...)
	}
	r.mu.Unlock()

	slog.Debug("conversation: turn recorded",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return reply, nil
}

func (r *Responder) prompt() string {
	if r.sysinfo == nil {
		return r.systemPrompt
	}
	return r.systemPrompt + "\n\n" + r.sysinfo.Describe(r.now())
}

// messages builds the request history: the last historyTurns turns followed
// by the new user message.
func (r *Responder) messages(text string) []llm.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := max(len(r.turns)-r.historyTurns, 0)
	msgs := make([]llm.Message, 0, 2*(len(r.turns)-start)+1)
	for _, t := range r.turns[start:] {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.Assistant},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: text})
}

// History returns a copy of the remembered turns, oldest first.
func (r *Responder) History() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Turn(nil), r.turns...)
}

// Len returns the number of remembered turns.
func (r *Responder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

// Reset forgets all turns.
func (r *Responder) Reset() {
	r.mu.Lock()
	r.turns = nil
	r.mu.Unlock()
}
