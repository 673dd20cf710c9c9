// Package circuitbreaker stops calls to a dependency that keeps failing and
// lets a single probe through once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
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

// Default settings.
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = time.Minute
)

// Config configures a Breaker.
type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int `yaml:"failure_threshold"`
	// OpenTimeout is how long the breaker rejects calls before probing.
	OpenTimeout time.Duration `yaml:"open_timeout"`
	// OnStateChange is called with the lock released.
	OnStateChange func(from, to State) `yaml:"-"`
	// Now defaults to time.Now.
	Now func() time.Time `yaml:"-"`
}

// Breaker guards calls to one dependency.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open. Errors after ctx was cancelled
// are not counted against the dependency; deadlines are.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	b.release(probe, classify(ctx, callErr))
	return callErr
}

type outcome int

const (
	succeeded outcome = iota
	failed
	cancelled
)

func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return succeeded
	case errors.Is(ctx.Err(), context.Canceled):
		return cancelled
	default:
		return failed
	}
}

func (b *Breaker) acquire() (bool, error) {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		remaining := b.cfg.OpenTimeout - b.cfg.Now().Sub(b.openedAt)
		if remaining > 0 {
			b.mu.Unlock()
			return false, fmt.Errorf("%w: retry in %s", ErrOpen, remaining.Round(time.Second))
		}
		notify := b.setStateLocked(StateHalfOpen)
		b.probing = true
		b.mu.Unlock()
		notify()
		return true, nil

	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return false, fmt.Errorf("%w: probe in flight", ErrOpen)
		}
		b.probing = true
		b.mu.Unlock()
		return true, nil

	default:
		b.mu.Unlock()
		return false, nil
	}
}

func (b *Breaker) release(probe bool, result outcome) {
	b.mu.Lock()
	if probe {
		b.probing = false
	}

	notify := func() {}
	switch result {
	case cancelled:
		// Says nothing about the dependency. A half-open breaker waits for the
		// next probe.
	case failed:
		if probe || b.state == StateHalfOpen {
			notify = b.openLocked()
			break
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			notify = b.openLocked()
		}
	case succeeded:
		b.failures = 0
		if probe {
			notify = b.setStateLocked(StateClosed)
		}
	}
	b.mu.Unlock()

	notify()
}

func (b *Breaker) openLocked() func() {
	b.failures = 0
	b.openedAt = b.cfg.Now()
	return b.setStateLocked(StateOpen)
}

func (b *Breaker) setStateLocked(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}
	b.state = to
	if b.cfg.OnStateChange == nil {
		return func() {}
	}
	return func() { b.cfg.OnStateChange(from, to) }
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	notify := b.setStateLocked(StateClosed)
	b.mu.Unlock()
	notify()
}
