package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry manages one circuit breaker per subscriber endpoint, so a
// persistently failing receiver cannot slow down deliveries to the others.
type breakerRegistry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry(logger *slog.Logger) *breakerRegistry {
	return &breakerRegistry{
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// get returns the circuit breaker for the given endpoint URL, creating it on
// first use.
func (r *breakerRegistry) get(endpoint string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[endpoint]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change",
				"endpoint", name,
				"from", from.String(),
				"to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about endpoint health.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[endpoint] = cb
	return cb
}

// isBreakerOpen reports whether the error means the breaker rejected the
// attempt without calling the endpoint.
func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
