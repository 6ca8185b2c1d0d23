// Package circuit implements a generic three-state circuit breaker used by
// the data-quality guard (one breaker per pair). The price data fetcher's
// per-provider breakers use sony/gobreaker instead.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrOpen is returned when the breaker is open and rejecting calls.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrRequestTimeout is returned when a guarded call exceeds its timeout.
	ErrRequestTimeout = errors.New("request timeout")
)

// State is one of the three breaker states.
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

// Config controls how many failures open the breaker and how long it stays
// open before probing again.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	RequestTimeout   time.Duration
}

// Breaker is a single circuit breaker instance.
type Breaker struct {
	mu              sync.RWMutex
	config          Config
	state           State
	failures        int
	successes       int
	lastFailureTime time.Time
	lastStateChange time.Time
	reason          string
	totalRequests   int64
	totalSuccesses  int64
	totalFailures   int64
	totalTimeouts   int64
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config Config) *Breaker {
	return &Breaker{config: config, state: StateClosed, lastStateChange: time.Now()}
}

// Call executes fn if the breaker allows it, tracking the outcome.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allowRequest() {
		return ErrOpen
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	b.mu.Lock()
	b.totalRequests++
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn(timeoutCtx) }()

	select {
	case err := <-done:
		if err != nil {
			b.onFailure(err.Error())
			return err
		}
		b.onSuccess()
		return nil
	case <-timeoutCtx.Done():
		b.onTimeout()
		return ErrRequestTimeout
	}
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.Timeout {
			b.setState(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalSuccesses++

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.setState(StateClosed)
			b.failures, b.successes = 0, 0
		}
	}
}

func (b *Breaker) onFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalFailures++
	b.lastFailureTime = time.Now()
	b.reason = reason

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.successes = 0
	}
}

func (b *Breaker) onTimeout() {
	b.onFailure("request timeout")
	b.mu.Lock()
	b.totalTimeouts++
	b.mu.Unlock()
}

func (b *Breaker) setState(state State) {
	if b.state != state {
		b.state = state
		b.lastStateChange = time.Now()
		if state == StateHalfOpen {
			b.failures = 0
		}
	}
}

// Trip forces the breaker open with an explicit reason and a hold duration,
// used by the data-quality guard to activate a per-pair lockout directly
// instead of waiting for consecutive Call failures.
func (b *Breaker) Trip(reason string, hold time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reason = reason
	b.lastFailureTime = time.Now()
	// Timeout governs how long Open blocks allowRequest; a manual trip
	// replaces it with the hold duration, which then also applies to any
	// later failure-driven opening of this breaker.
	b.config.Timeout = hold
	b.setState(StateOpen)
}

// State returns the current breaker state. An Open breaker whose timeout
// has elapsed reads as half-open, so a manual trip expires on read even if
// no Call ever probes the breaker.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state == StateOpen && time.Since(b.lastFailureTime) > b.config.Timeout {
		return StateHalfOpen
	}
	return b.state
}

// Reason returns the last recorded failure/trip reason.
func (b *Breaker) Reason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reason
}

// Stats is a point-in-time snapshot of a breaker's counters.
type Stats struct {
	State                State
	TotalRequests        int64
	TotalSuccesses       int64
	TotalFailures        int64
	TotalTimeouts        int64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastStateChange      time.Time
	LastFailureTime      time.Time
	SuccessRate          float64
	Reason               string
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	successRate := 0.0
	if b.totalRequests > 0 {
		successRate = float64(b.totalSuccesses) / float64(b.totalRequests)
	}

	return Stats{
		State:                b.state,
		TotalRequests:        b.totalRequests,
		TotalSuccesses:       b.totalSuccesses,
		TotalFailures:        b.totalFailures,
		TotalTimeouts:        b.totalTimeouts,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastStateChange:      b.lastStateChange,
		LastFailureTime:      b.lastFailureTime,
		SuccessRate:          successRate,
		Reason:               b.reason,
	}
}

// IsHealthy reports closed state with an acceptable success rate.
func (s Stats) IsHealthy() bool {
	return s.State == StateClosed && (s.TotalRequests == 0 || s.SuccessRate >= 0.9)
}

// Reset clears the breaker back to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.successes = 0, 0
	b.totalRequests, b.totalSuccesses, b.totalFailures, b.totalTimeouts = 0, 0, 0, 0
	b.lastStateChange = time.Now()
	b.lastFailureTime = time.Time{}
	b.reason = ""
}

// Manager owns one breaker per named entity (provider or pair).
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewManager creates a manager that lazily creates breakers with the given
// default config.
func NewManager(config Config) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), config: config}
}

// Get returns the breaker for name, creating it on first use.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b = NewBreaker(m.config)
	m.breakers[name] = b
	return b
}

// Stats returns a snapshot of every breaker's counters, keyed by name, with
// expired manual trips purged so readers never see a stale Open state.
func (m *Manager) Stats(now time.Time) map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.breakers))
	for name, b := range m.breakers {
		s := b.Stats()
		s.State = b.State()
		out[name] = s
	}
	return out
}

// OpenNames returns the names of every breaker currently open.
func (m *Manager) OpenNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, b := range m.breakers {
		if b.State() == StateOpen {
			names = append(names, fmt.Sprintf("%s (%s)", name, b.Reason()))
		}
	}
	return names
}
