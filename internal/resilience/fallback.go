package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend of a [FallbackGroup] failed or
// was skipped because its breaker was open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig is applied to the breaker of every backend in a group.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of backends of the same kind, each with
// its own breaker. Backends must be added before the group is shared.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup returns a group whose first backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a backend tried after all earlier ones.
func (g *FallbackGroup[T]) AddFallback(name string, value T) {
	cfg := g.cfg.CircuitBreaker
	cfg.Name = name
	g.backends = append(g.backends, backend[T]{name: name, value: value, breaker: NewCircuitBreaker(cfg)})
}

// Names returns the backend names in the order they are tried.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.backends))
	for i, b := range g.backends {
		names[i] = b.name
	}
	return names
}

// States returns the breaker state of every backend, keyed by name.
func (g *FallbackGroup[T]) States() map[string]State {
	states := make(map[string]State, len(g.backends))
	for _, b := range g.backends {
		states[b.name] = b.breaker.State()
	}
	return states
}

// Primary returns the first backend.
func (g *FallbackGroup[T]) Primary() T {
	return g.backends[0].value
}

// Execute calls fn with each backend in turn until one succeeds. It stops
// early when ctx is done or fn reports cancellation.
func (g *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that return a value.
func ExecuteWithResult[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	r, _, err := ExecuteNamed(ctx, g, fn)
	return r, err
}

// ExecuteNamed is [ExecuteWithResult] that also returns the name of the
// backend that produced the result.
func ExecuteNamed[T, R any](ctx context.Context, g *FallbackGroup[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.backends {
		b := &g.backends[i]
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		var result R
		err := b.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(b.value)
			return callErr
		})
		switch {
		case err == nil:
			if i > 0 {
				slog.Info("resilience: served by fallback", "provider", b.name)
			}
			return result, b.name, nil
		case errors.Is(err, context.Canceled):
			return zero, "", err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("resilience: skipping provider, circuit open", "provider", b.name)
		default:
			slog.Warn("resilience: provider failed, trying next", "provider", b.name, "err", err)
		}
		lastErr = err
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
