package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by Execute without invoking the action while the
// circuit is open.
var ErrOpen = errors.New("circuit breaker is open")

// Status is a read-only projection of the breaker counters.
type Status struct {
	Failures    int       `json:"failures"`
	Open        bool      `json:"open"`
	LastFailure time.Time `json:"lastFailure"`
}

// Breaker blocks calls to a failing dependency for a cool-down period after
// `threshold` consecutive failures. Counters are shared by every concurrent
// request, so all access goes through the mutex.
type Breaker struct {
	mu       sync.Mutex
	failures int
	lastFail time.Time

	threshold int
	openFor   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// New builds a breaker. threshold<=0 falls back to 5, openFor<=0 to 60s.
func New(threshold int, openFor time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	b := &Breaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn unless the circuit is open. A success resets the failure
// counter to zero; a failure increments it and stamps the failure time, then
// the original error is returned unchanged. When the cool-down window has
// elapsed the counters are reset here and the call proceeds — there is no
// limited half-open phase, a single outcome fully closes or reopens the
// circuit.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	now := b.now()
	if b.failures >= b.threshold {
		elapsed := now.Sub(b.lastFail)
		if elapsed < b.openFor {
			retryIn := b.openFor - elapsed
			b.mu.Unlock()
			b.logger.Warn("circuit open, call rejected",
				"failures", b.failures, "retry_in", retryIn)
			return ErrOpen
		}
		b.logger.Info("circuit cool-down elapsed, resetting")
		b.failures = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFail = b.now()
		b.logger.Error("circuit breaker recorded failure",
			"failures", b.failures, "threshold", b.threshold)
		return err
	}
	b.failures = 0
	return nil
}

// Status reports the current counters without mutating them. Openness is
// computed from a snapshot; resets happen only inside Execute.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	open := b.failures >= b.threshold && b.now().Sub(b.lastFail) < b.openFor
	return Status{
		Failures:    b.failures,
		Open:        open,
		LastFailure: b.lastFail,
	}
}
