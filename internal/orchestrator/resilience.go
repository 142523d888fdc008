package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/geocalc/internal/backend"
)

// RetryConfig configures exponential backoff around agent calls.
type RetryConfig struct {
	InitialInterval     time.Duration // default 100ms
	MaxInterval         time.Duration // default 10s
	MaxElapsedTime      time.Duration // default 2min
	Multiplier          float64       // default 2.0
	RandomizationFactor float64       // default 0.5
	MaxRetries          uint64        // 0 means bounded by MaxElapsedTime only
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening, default 5
	OpenTimeout      time.Duration // time spent open before probing, default 30s
	HalfOpenRequests uint32        // probes allowed while half-open, default 3
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// CircuitBreakerRegistry hands out one circuit breaker per provider, so that
// agents sharing a provider trip together.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreakerRegistry creates a registry with the given settings.
func NewCircuitBreakerRegistry(cfg BreakerConfig) *CircuitBreakerRegistry {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	return &CircuitBreakerRegistry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for provider, creating it on first use.
func (r *CircuitBreakerRegistry) Get(provider string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}

	threshold := r.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: r.cfg.HalfOpenRequests,
		Interval:    0,
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not the provider's.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[provider] = cb
	return cb
}

// ResilientBackend retries failed sends with exponential backoff and routes
// every attempt through its provider's circuit breaker.
type ResilientBackend struct {
	backend.Backend
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
}

// NewResilientBackend wraps b. provider selects the breaker in registry.
func NewResilientBackend(b backend.Backend, registry *CircuitBreakerRegistry, provider string, retry RetryConfig) *ResilientBackend {
	return &ResilientBackend{
		Backend: b,
		breaker: registry.Get(provider),
		retry:   retry,
	}
}

// Send sends msg, retrying transient failures. An open breaker and context
// cancellation stop the retries immediately.
func (r *ResilientBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	return sendWithRetry(ctx, r.Backend, msg, r.breaker, r.retry)
}

func sendWithRetry(ctx context.Context, b backend.Backend, msg backend.Message, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (backend.Response, error) {
	var resp backend.Response

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return b.Send(ctx, msg)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if r, ok := result.(backend.Response); ok {
				resp = r
			}
			return err
		}

		resp = result.(backend.Response)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = retryCfg.MaxElapsedTime
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	var bo backoff.BackOff = policy
	if retryCfg.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, retryCfg.MaxRetries)
	}

	notify := func(err error, wait time.Duration) {
		log.Printf("WARNING: agent call failed, retrying in %v: %v", wait, err)
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify)
	return resp, err
}
