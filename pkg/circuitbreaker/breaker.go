// Package circuitbreaker stops calling a gateway that keeps failing and
// probes it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// halfOpenProbes successful calls close a half-open breaker.
const halfOpenProbes = 3

// CircuitBreaker opens after maxFailures consecutive failures. Once timeout
// has passed it lets probe calls through; any probe failure reopens it.
type CircuitBreaker struct {
	name        string
	maxFailures uint32
	timeout     time.Duration
	logger      *logrus.Logger
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures uint32
	probes   uint32
	inFlight uint32
	openedAt time.Time
	requests uint64
	rejected uint64
	onChange func(name string, from, to State)
}

func New(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return NewWithLogger(name, maxFailures, timeout, nil)
}

func NewWithLogger(name string, maxFailures uint32, timeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logrus.New()
	}
	if maxFailures == 0 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// OnStateChange registers fn to run on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.onChange = fn
}

// Execute runs fn unless the breaker is open. Context cancellation by the
// caller is not counted as a gateway failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}
	switch {
	case err == nil:
		cb.succeeded()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
	default:
		cb.failed()
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	cb.refresh()
	switch cb.state {
	case StateOpen:
		cb.rejected++
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	case StateHalfOpen:
		if cb.probes+cb.inFlight >= halfOpenProbes {
			cb.rejected++
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.inFlight++
	}
	return nil
}

// refresh moves an open breaker to half-open once its timeout has passed.
// Callers hold mu.
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) succeeded() {
	switch cb.state {
	case StateHalfOpen:
		cb.probes++
		if cb.probes >= halfOpenProbes {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) failed() {
	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.probes, cb.inFlight = 0, 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
	}

	entry := cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from":            from.String(),
		"state":           to.String(),
		"failures":        cb.failures,
	})
	if to == StateOpen {
		entry.Warn("Circuit breaker opened")
	} else {
		entry.Info("Circuit breaker state changed")
	}
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()
	return cb.state
}

func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:     cb.name,
		State:    cb.state,
		Failures: cb.failures,
		Requests: cb.requests,
		Rejected: cb.rejected,
		OpenedAt: cb.openedAt,
	}
}

type Stats struct {
	Name     string
	State    State
	Failures uint32
	Requests uint64
	Rejected uint64
	OpenedAt time.Time
}

// CircuitBreakerError is returned instead of calling through a breaker that
// is open or saturated with probes.
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
