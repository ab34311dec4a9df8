// Package resilience provides per-host circuit breakers for provider calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"    // Normal operation
	CircuitOpen     CircuitState = "OPEN"      // Failing, rejecting requests
	CircuitHalfOpen CircuitState = "HALF_OPEN" // One probe allowed through
)

// ErrCircuitOpen is returned when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before a probe.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the settings used when a threshold is given
// without a cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Breaker trips after consecutive failures and rejects calls until the
// cooldown has passed. A single success in half-open closes it again.
type Breaker struct {
	name   string
	config BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	probing  bool
	rejected int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold > 0 && config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{name: name, config: config, now: time.Now, state: CircuitClosed}
}

// Allow reports whether a call may proceed. In half-open only one probe is
// admitted until it records its outcome.
func (b *Breaker) Allow() error {
	if b == nil || b.config.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
		b.probing = true
		return nil
	case CircuitHalfOpen:
		if b.probing {
			b.rejected++
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Record(failed bool) {
	if b == nil || b.config.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if !failed {
		b.state = CircuitClosed
		b.failures = 0
		return
	}
	switch b.state {
	case CircuitHalfOpen:
		b.open()
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.state = CircuitOpen
	b.openedAt = b.now()
	b.failures = 0
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Rejected returns how many calls the breaker has turned away.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// Registry hands out one breaker per key, created on first use.
type Registry struct {
	config BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share config.
func NewRegistry(config BreakerConfig) *Registry {
	return &Registry{config: config, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(key, r.config)
		r.breakers[key] = b
	}
	return b
}

// Open lists the keys whose circuit is currently open.
func (r *Registry) Open() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for k, b := range r.breakers {
		if b.State() == CircuitOpen {
			keys = append(keys, k)
		}
	}
	return keys
}
