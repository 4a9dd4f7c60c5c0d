package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker placed in front of an
// offsite destination.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
}

// DefaultBreakerSettings trips after three consecutive failures and probes
// again after five minutes.
var DefaultBreakerSettings = BreakerSettings{MaxFailures: 3, Timeout: 5 * time.Minute}

// Breaker wraps a Storage with a circuit breaker. While the circuit is open
// every call fails immediately with gobreaker.ErrOpenState instead of
// waiting on a stalled remote.
type Breaker struct {
	next Storage
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. name identifies the destination in logs.
func NewBreaker(name string, next Storage, settings BreakerSettings, logger zerolog.Logger) *Breaker {
	return &Breaker{next: next, cb: newCircuitBreaker(name, settings, logger)}
}

func newCircuitBreaker(name string, settings BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = DefaultBreakerSettings.MaxFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("destination", name).Str("from", from.String()).Str("to", to.String()).Msg("offsite circuit breaker state changed")
		},
	})
}

// Open reports whether the circuit is currently open.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Write(ctx, key, data)
	})
	return err
}

func (b *Breaker) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Read(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (b *Breaker) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return err
}

func (b *Breaker) Exists(ctx context.Context, key string) (bool, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (b *Breaker) Location(key string) string { return b.next.Location(key) }

func (b *Breaker) Close() error { return b.next.Close() }
