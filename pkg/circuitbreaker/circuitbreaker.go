// Package circuitbreaker stops the outbox dispatcher from hammering a
// notification endpoint that keeps failing. After FailureThreshold
// consecutive failures the breaker opens; after Timeout it lets a probe
// through and closes again on SuccessThreshold consecutive successes.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state.
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

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is used up.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	Name                string
	FailureThreshold    int
	SuccessThreshold    int
	Timeout             time.Duration
	MaxHalfOpenRequests int

	// OnStateChange is called (outside the lock) when the state changes.
	OnStateChange func(name string, from, to State)

	// IsFailure decides which errors count. Nil counts every non-nil error.
	IsFailure func(error) bool

	now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
		now:                 time.Now,
	}
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the success threshold.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithTimeout sets how long the circuit stays open.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithIsFailure sets the failure detection function.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) {
		c.IsFailure = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.now = now
		}
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config Config

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	halfOpenInFlight     int
}

// New creates a new CircuitBreaker with the given name and options.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	var transition func()

	switch cb.state {
	case StateOpen:
		if cb.config.now().Sub(cb.openedAt) < cb.config.Timeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		transition = cb.setStateLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.MaxHalfOpenRequests {
			cb.mu.Unlock()
			if transition != nil {
				transition()
			}
			return ErrTooManyRequests
		}
		cb.halfOpenInFlight++
	}

	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	failed := err != nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	cb.mu.Lock()
	var transition func()

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if failed {
		cb.consecutiveSuccesses = 0
		cb.consecutiveFailures++
		if cb.state == StateHalfOpen || cb.consecutiveFailures >= cb.config.FailureThreshold {
			transition = cb.setStateLocked(StateOpen)
		}
	} else {
		cb.consecutiveFailures = 0
		cb.consecutiveSuccesses++
		if cb.state == StateHalfOpen && cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			transition = cb.setStateLocked(StateClosed)
		}
	}

	cb.mu.Unlock()
	if transition != nil {
		transition()
	}
}

// setStateLocked changes state and returns the callback to run after unlock.
func (cb *CircuitBreaker) setStateLocked(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0
	if to == StateOpen {
		cb.openedAt = cb.config.now()
	}
	if cb.config.OnStateChange == nil {
		return nil
	}
	name, cbFn := cb.config.Name, cb.config.OnStateChange
	return func() { cbFn(name, from, to) }
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// WebhookBreaker returns a breaker tuned for the notification webhook. opts
// are applied after the defaults.
func WebhookBreaker(opts ...Option) *CircuitBreaker {
	base := []Option{
		WithFailureThreshold(5),
		WithSuccessThreshold(2),
		WithTimeout(time.Minute),
	}
	return New("notification-webhook", append(base, opts...)...)
}
