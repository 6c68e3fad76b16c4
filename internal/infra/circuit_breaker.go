package infra

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// CBState is the state of a CircuitBreaker.
type CBState int

const (
	CBClosed CBState = iota
	CBOpen
	CBHalfOpen
)

func (s CBState) String() string {
	switch s {
	case CBClosed:
		return "closed"
	case CBOpen:
		return "open"
	case CBHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	// Name tags state-transition logs, e.g. "audit_store".
	Name string
	// FailureThreshold consecutive failures trip a closed breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open trial calls close it again.
	SuccessThreshold int
	// OpenTimeout is how long an open breaker waits before a trial call.
	OpenTimeout time.Duration
}

// DefaultCBConfig is the breaker around the audit store used by the replay
// worker and the retry cron.
func DefaultCBConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             "audit_store",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker fails fast while a downstream store keeps erroring. When
// half-open it lets a single trial call through at a time.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu            sync.Mutex
	state         CBState
	failures      int
	successes     int
	openedAt      time.Time
	trialInFlight bool
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	return &CircuitBreaker{cfg: cfg, state: CBClosed}
}

// State reports the current state. An open breaker whose timeout elapsed
// reports (and becomes) half-open.
func (cb *CircuitBreaker) State() CBState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Execute calls fn unless the breaker is open, or half-open with a trial call
// already in flight, and feeds the outcome back into the state machine.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.acquire() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	switch cb.state {
	case CBOpen:
		return false
	case CBHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
	}
	return true
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == CBHalfOpen
	if wasTrial {
		cb.trialInFlight = false
	}

	if err != nil {
		cb.successes = 0
		cb.failures++
		if wasTrial || cb.failures >= cb.cfg.FailureThreshold {
			cb.openedAt = time.Now()
			cb.moveTo(CBOpen, err)
		}
		return
	}

	cb.failures = 0
	if wasTrial {
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.successes = 0
			cb.moveTo(CBClosed, nil)
		}
	}
}

// refresh must be called under mu.
func (cb *CircuitBreaker) refresh() {
	if cb.state == CBOpen && time.Since(cb.openedAt) >= cb.cfg.OpenTimeout {
		cb.successes = 0
		cb.trialInFlight = false
		cb.moveTo(CBHalfOpen, nil)
	}
}

// moveTo must be called under mu.
func (cb *CircuitBreaker) moveTo(next CBState, cause error) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	if next == CBOpen {
		cb.failures = 0
	}
	log.Warn().
		Err(cause).
		Str("breaker", cb.cfg.Name).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("circuit breaker state change")
}
