// Package breaker implements the per-dependency circuit breaker used to
// guard every upstream RPC (C8).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker tuning, matching the defaults from §3/§4.8:
// 3 consecutive failures opens the breaker, cooling down for 30s.
type Config struct {
	FailureThreshold    int
	SuccessThreshold    int
	CooldownTimeout     time.Duration
	HalfOpenMaxInFlight int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    1,
		CooldownTimeout:     30 * time.Second,
		HalfOpenMaxInFlight: 1,
	}
}

// Breaker tracks consecutive-failure counts for one dependency and trips
// open after FailureThreshold consecutive failures.
type Breaker struct {
	mu     sync.RWMutex
	config Config
	state  State

	consecutiveFailures  int
	consecutiveSuccesses int

	openedAt        time.Time
	lastStateChange time.Time
	halfOpenInFlight int
}

// New creates a Breaker in the Closed state.
func New(config Config) *Breaker {
	return &Breaker{config: config, state: Closed, lastStateChange: time.Now()}
}

// OpenError is returned when the breaker refuses a call.
type OpenError struct {
	Dependency string
	OpenedAt   time.Time
	Timeout    time.Duration
}

func (e *OpenError) Error() string {
	remaining := e.Timeout - time.Since(e.OpenedAt)
	return fmt.Sprintf("circuit breaker for %s is open, retry in %v", e.Dependency, remaining)
}

// Execute runs fn under circuit breaker protection. It returns an
// *OpenError without invoking fn if the circuit is open (or half-open and
// saturated). Must never block longer than fn itself; ctx cancellation is
// passed straight through to fn.
func (b *Breaker) Execute(ctx context.Context, dependency string, fn func(context.Context) error) error {
	if err := b.before(dependency); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before(dependency string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.openedAt) >= b.config.CooldownTimeout {
			b.setState(HalfOpen)
			b.halfOpenInFlight = 1
			return nil
		}
		return &OpenError{Dependency: dependency, OpenedAt: b.openedAt, Timeout: b.config.CooldownTimeout}
	case HalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenMaxInFlight {
			return &OpenError{Dependency: dependency, OpenedAt: b.openedAt, Timeout: b.config.CooldownTimeout}
		}
		b.halfOpenInFlight++
		return nil
	default:
		return errors.New("breaker: unknown state")
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.halfOpenInFlight--
	}

	if err != nil {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

func (b *Breaker) onFailure() {
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0

	switch b.state {
	case Closed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.setState(Open)
			b.openedAt = time.Now()
		}
	case HalfOpen:
		b.setState(Open)
		b.openedAt = time.Now()
	}
}

func (b *Breaker) onSuccess() {
	b.consecutiveSuccesses++
	b.consecutiveFailures = 0

	if b.state == HalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.setState(Closed)
	}
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	b.lastStateChange = time.Now()
	if s == Closed {
		b.consecutiveFailures = 0
		b.consecutiveSuccesses = 0
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive-failure counter,
// used to test circuit monotonicity (§8 invariant 7).
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consecutiveFailures
}

// Reset forces the breaker back to Closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.halfOpenInFlight = 0
	b.lastStateChange = time.Now()
}

// Registry manages one Breaker per dependency name, created lazily.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates a Registry that creates new breakers with config.
func NewRegistry(config Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), config: config}
}

// Get returns the breaker for dependency, creating it on first use.
func (r *Registry) Get(dependency string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b = New(r.config)
	r.breakers[dependency] = b
	return b
}

// States returns a snapshot of every known dependency's state, for
// diagnostics.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
