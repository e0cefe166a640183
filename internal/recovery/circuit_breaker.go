package recovery

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Call when the breaker rejects the call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - normal operation, calls pass through
	StateClosed CircuitState = iota
	// StateOpen - failing, calls rejected immediately
	StateOpen
	// StateHalfOpen - probing recovery with a limited number of calls
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for circuit breaker.
// Zero fields take the defaults noted below.
type CircuitBreakerConfig struct {
	MaxFailures      int           // Default: 5
	Timeout          time.Duration // Default: 30 seconds
	HalfOpenMaxTries int           // Default: 3
}

// CircuitBreaker fails calls fast after MaxFailures consecutive failures
// and lets a few probes through once Timeout has elapsed.
type CircuitBreaker struct {
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxTries int

	state            CircuitState
	failures         int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	halfOpenAttempts int

	now func() time.Time

	mu sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker with given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxTries == 0 {
		config.HalfOpenMaxTries = 3
	}

	return &CircuitBreaker{
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxTries: config.HalfOpenMaxTries,
		state:            StateClosed,
		lastStateChange:  time.Now(),
		now:              time.Now,
	}
}

// Call runs fn unless the circuit is open. A rejected call returns an error
// wrapping ErrCircuitOpen and fn is not invoked.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenAttempts = 1
			return nil
		}
		return fmt.Errorf("%w (failed %d times, retry in %.0fs)",
			ErrCircuitOpen, cb.failures, cb.lastFailureTime.Add(cb.timeout).Sub(cb.now()).Seconds())

	case StateHalfOpen:
		if cb.halfOpenAttempts >= cb.halfOpenMaxTries {
			return fmt.Errorf("%w (half-open, probe limit reached)", ErrCircuitOpen)
		}
		cb.halfOpenAttempts++
		return nil

	default:
		return fmt.Errorf("circuit breaker in unknown state")
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenAttempts = 0
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		// one good probe is enough to close; the device is single-register
		cb.failures = 0
		cb.halfOpenAttempts = 0
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) setState(s CircuitState) {
	cb.state = s
	cb.lastStateChange = cb.now()
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.halfOpenAttempts = 0
	cb.setState(StateClosed)
}

// CircuitBreakerStats holds statistics about the circuit breaker
type CircuitBreakerStats struct {
	State           CircuitState `json:"-"`
	StateName       string       `json:"state"`
	Failures        int          `json:"failures"`
	LastFailureTime time.Time    `json:"last_failure,omitempty"`
	LastStateChange time.Time    `json:"last_state_change"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		State:           cb.state,
		StateName:       cb.state.String(),
		Failures:        cb.failures,
		LastFailureTime: cb.lastFailureTime,
		LastStateChange: cb.lastStateChange,
	}
}

func (s CircuitBreakerStats) String() string {
	return fmt.Sprintf("State: %s, Failures: %d, Last State Change: %s",
		s.State, s.Failures, s.LastStateChange.Format(time.RFC3339))
}
