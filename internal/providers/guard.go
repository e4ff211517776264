package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the breaker is refusing calls.
var ErrUnavailable = errors.New("provider temporarily unavailable")

// GuardSettings tunes a Guard.
type GuardSettings struct {
	// Timeout bounds a call whose context carries no deadline. A caller
	// deadline, like the analysis timeout, always wins, longer or not.
	Timeout time.Duration
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// DefaultGuardSettings suit a remote model that answers in tens of seconds.
var DefaultGuardSettings = GuardSettings{Timeout: 3 * time.Minute, Failures: 5, Cooldown: 30 * time.Second}

// Guard wraps a Provider with a per-call timeout and a circuit breaker so a
// failing backend is not hammered by every regeneration request.
type Guard struct {
	next    Provider
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

// NewGuard wraps next.
func NewGuard(next Provider, settings GuardSettings) *Guard {
	if settings.Failures == 0 {
		settings.Failures = DefaultGuardSettings.Failures
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = DefaultGuardSettings.Cooldown
	}
	failures := settings.Failures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about the backend
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Provider breaker changed state", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &Guard{next: next, timeout: settings.Timeout, cb: cb}
}

func (g *Guard) Name() string { return g.next.Name() }

// ExtractText forwards to the wrapped provider.
func (g *Guard) ExtractText(ctx context.Context, config Config) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		callCtx := ctx
		if _, bounded := ctx.Deadline(); !bounded && g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.next.ExtractText(callCtx, config)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, g.next.Name(), err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
