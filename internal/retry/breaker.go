// Package retry implements per-provider retry with exponential backoff and
// a circuit breaker keyed by provider name. The orchestrator funnels every
// provider call through Invoke.
package retry

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows calls through normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls immediately.
	CircuitOpen
	// CircuitHalfOpen allows a single probe call.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the provider's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int
	// Timeout is how long the circuit stays open before allowing a probe.
	Timeout time.Duration
	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to CircuitState)
}

// DefaultBreakerConfig returns the default breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// Breaker is a single provider's circuit breaker.
type Breaker struct {
	config BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failures        int
	lastFailureTime time.Time
	lastStateChange time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBreakerConfig().Timeout
	}
	return &Breaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// State returns the current state, promoting open to half-open once the
// timeout has elapsed.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() CircuitState {
	if b.state == CircuitOpen && time.Since(b.lastFailureTime) >= b.config.Timeout {
		b.state = CircuitHalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	state := b.State()
	return state == CircuitClosed || state == CircuitHalfOpen
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case CircuitClosed:
		b.failures = 0
	case CircuitHalfOpen:
		b.transitionTo(CircuitClosed)
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.stateLocked()
	b.lastFailureTime = time.Now()

	switch state {
	case CircuitClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// A failed probe re-opens and restarts the timer.
		b.transitionTo(CircuitOpen)
	}
}

// transitionTo changes state. Must be called with the lock held.
func (b *Breaker) transitionTo(newState CircuitState) {
	if b.state == newState {
		return
	}
	oldState := b.state
	b.state = newState
	b.lastStateChange = time.Now()
	b.failures = 0

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != CircuitClosed {
		b.transitionTo(CircuitClosed)
	} else {
		b.failures = 0
	}
}

// BreakerStats is a snapshot of breaker state for diagnostics.
type BreakerStats struct {
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Stats returns current breaker statistics.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.stateLocked().String(),
		Failures:        b.failures,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
	}
}

// BreakerRegistry manages one breaker per provider name.
type BreakerRegistry struct {
	config BreakerConfig
	mu     sync.RWMutex
	bs     map[string]*Breaker
}

// NewBreakerRegistry creates a registry applying config to new breakers.
func NewBreakerRegistry(config BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		config: config,
		bs:     make(map[string]*Breaker),
	}
}

// Get returns or creates the breaker for a provider.
func (r *BreakerRegistry) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.bs[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, ok := r.bs[provider]; ok {
		return b
	}
	b = NewBreaker(r.config)
	r.bs[provider] = b
	return b
}

// AllStats returns statistics for every tracked provider.
func (r *BreakerRegistry) AllStats() map[string]BreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]BreakerStats, len(r.bs))
	for provider, b := range r.bs {
		stats[provider] = b.Stats()
	}
	return stats
}

// OpenCircuits returns the providers whose circuits are currently open.
func (r *BreakerRegistry) OpenCircuits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for provider, b := range r.bs {
		if b.State() == CircuitOpen {
			open = append(open, provider)
		}
	}
	return open
}

// ResetAll forces every breaker closed.
func (r *BreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bs {
		b.Reset()
	}
}
