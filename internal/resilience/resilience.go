// Package resilience wraps outbound dependencies (MongoDB, the Instagram
// endpoint) with retry and circuit breaker policies.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen indicates the circuit breaker is rejecting calls.
var ErrCircuitOpen = gobreaker.ErrOpenState

// Retry runs op with exponential backoff until it succeeds, the attempts
// are exhausted, or the context is cancelled. The last error is returned.
func Retry(ctx context.Context, logger *slog.Logger, name string, attempts uint, initialDelay time.Duration, op func() error) error {
	if logger == nil {
		logger = slog.Default()
	}

	err := retry.Do(
		op,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(initialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying operation",
				"operation", name,
				"attempt", n+1,
				"max_attempts", attempts,
				"error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
	}
	return nil
}

// Breaker is a circuit breaker for one outbound dependency. It opens
// after consecutive failures and probes the dependency again after the
// cooldown interval.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// BreakerConfig tunes a Breaker. Zero values fall back to 5 consecutive
// failures and a 30 second cooldown.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Cooldown    time.Duration
}

// NewBreaker creates a circuit breaker with state transition logging.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}

	log := logger.With("component", "circuit_breaker", "name", cfg.Name)

	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: log}
}

// Execute runs op through the breaker. While the breaker is open the op
// is not invoked and ErrCircuitOpen is returned.
func (b *Breaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, op()
	})
	return err
}

// State reports the breaker state as a lowercase string for status
// endpoints.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
