package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures int
	// Timeout is how long the breaker stays open before allowing a trial call.
	Timeout time.Duration
	// IsFailure decides whether an error counts against the breaker. Nil means every error.
	IsFailure func(error) bool
	// Ignore marks errors that leave the breaker state untouched, neither
	// failure nor success.
	Ignore func(error) bool
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	timeout     time.Duration
	isFailure   func(error) bool
	ignore      func(error) bool
	failures    int
	lastFailure time.Time
	state       State
	mu          sync.Mutex
	now         func() time.Time
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxFailures: settings.MaxFailures,
		timeout:     settings.Timeout,
		isFailure:   settings.IsFailure,
		ignore:      settings.Ignore,
		state:       StateClosed,
		now:         time.Now,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState must be called with mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.timeout {
		cb.state = StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.currentState() == StateOpen {
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.mu.Unlock()

	err := fn()

	if err != nil && cb.ignore != nil && cb.ignore(err) {
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (cb.isFailure == nil || cb.isFailure(err)) {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	cb.state = StateClosed
	cb.failures = 0
	return err
}
