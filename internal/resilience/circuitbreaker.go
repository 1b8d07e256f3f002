// Package resilience keeps the assistant talking when a provider misbehaves.
//
// [CircuitBreaker] stops calling a backend after repeated failures and probes
// it again after a cool-down. [FallbackGroup] puts several backends of the
// same kind behind per-backend breakers and tries them in order. The typed
// wrappers [STTFallback], [LLMFallback] and [TTSFallback] expose a group as a
// regular provider.
//
// Cancellation is not a provider failure: an error wrapping
// [context.Canceled] neither trips a breaker nor moves on to the next
// backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has elapsed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the breaker thresholds. Zero values select the
// defaults noted on each field.
type CircuitBreakerConfig struct {
	// Name labels log records.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker again. Default: 3.
	HalfOpenMax int

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// CircuitBreaker is a three-state breaker: closed, open and half-open.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int // consecutive failures while closed
	openedAt  time.Time
	probes    int // probes started while half-open
	successes int // successful probes while half-open
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
	}
}

// Execute calls fn unless the breaker is open, and records its outcome. A
// rejected call returns [ErrCircuitOpen] without calling fn. Errors wrapping
// [context.Canceled] are returned but not recorded.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case errors.Is(err, context.Canceled):
		if probe {
			cb.probes--
		}
	case err != nil:
		cb.onFailure(probe)
	default:
		cb.onSuccess(probe)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) onFailure(probe bool) {
	if probe {
		cb.setState(StateOpen)
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	cb.successes++
	if cb.successes >= cb.halfOpenMax {
		cb.setState(StateClosed)
	}
}

// setState switches state and resets the counters of the new state. Callers
// hold cb.mu.
func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	from := cb.state
	cb.state = s
	cb.probes, cb.successes = 0, 0
	switch s {
	case StateOpen:
		cb.openedAt = cb.now()
		slog.Warn("resilience: circuit opened", "name", cb.name, "from", from.String(), "failures", cb.failures)
	case StateClosed:
		cb.failures = 0
		slog.Info("resilience: circuit closed", "name", cb.name)
	case StateHalfOpen:
		slog.Info("resilience: circuit half-open, probing", "name", cb.name)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
}
