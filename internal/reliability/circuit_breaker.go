package reliability

import (
	"context"
	"sync"
	"time"
)

// State of a breaker
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// BreakerSettings configures a Breaker. Zero values take the defaults.
type BreakerSettings struct {
	// Name identifies the guarded destination in errors and notifications
	Name string
	// Failures is the run of consecutive failures that opens the circuit (5)
	Failures int
	// OpenTimeout is how long the circuit stays open before trial calls (30s)
	OpenTimeout time.Duration
	// Probes is how many trial calls may run while half-open, and how many
	// must succeed before the circuit closes again (1)
	Probes int
	// OnStateChange is called after every transition, outside the lock
	OnStateChange func(name string, from, to State)
}

type transition struct {
	from, to State
}

// Breaker stops calling a failing destination for OpenTimeout.
//
// Results are tagged with the generation they were admitted in, so a slow
// call that started before a transition cannot move the new state.
type Breaker struct {
	settings BreakerSettings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	failures   int
	inFlight   int
	successes  int
	openedAt   time.Time
	pending    []transition
}

// NewBreaker creates a closed breaker
func NewBreaker(settings BreakerSettings) *Breaker {
	if settings.Failures <= 0 {
		settings.Failures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}
	if settings.Probes <= 0 {
		settings.Probes = 1
	}
	return &Breaker{settings: settings, now: time.Now}
}

// Name returns the guarded destination
func (b *Breaker) Name() string {
	return b.settings.Name
}

// State returns the current state. An open circuit whose timeout has passed
// reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	state := b.current()
	changes := b.drain()
	b.mu.Unlock()

	b.emit(changes)
	return state
}

// Execute runs fn unless the circuit refuses it. A refusal is a
// *CircuitBreakerError and fn is not called.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.settle(generation, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer func() {
		changes := b.drain()
		b.mu.Unlock()
		b.emit(changes)
	}()

	switch state := b.current(); state {
	case StateOpen:
		return 0, &CircuitBreakerError{
			Name:    b.settings.Name,
			State:   state,
			RetryAt: b.openedAt.Add(b.settings.OpenTimeout),
		}
	case StateHalfOpen:
		if b.inFlight >= b.settings.Probes {
			return 0, &CircuitBreakerError{Name: b.settings.Name, State: state, RetryAt: b.now()}
		}
		b.inFlight++
	}
	return b.generation, nil
}

func (b *Breaker) settle(generation uint64, ok bool) {
	b.mu.Lock()
	defer func() {
		changes := b.drain()
		b.mu.Unlock()
		b.emit(changes)
	}()

	state := b.current()
	if generation != b.generation {
		return
	}

	switch state {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.Failures {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		b.inFlight--
		if !ok {
			b.moveTo(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.settings.Probes {
			b.moveTo(StateClosed)
		}
	}
}

// current must be called with mu held
func (b *Breaker) current() State {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.settings.OpenTimeout)) {
		b.moveTo(StateHalfOpen)
	}
	return b.state
}

// moveTo must be called with mu held
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	b.pending = append(b.pending, transition{from: b.state, to: to})

	b.state = to
	b.generation++
	b.failures = 0
	b.inFlight = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
}

// drain must be called with mu held
func (b *Breaker) drain() []transition {
	changes := b.pending
	b.pending = nil
	return changes
}

func (b *Breaker) emit(changes []transition) {
	if b.settings.OnStateChange == nil {
		return
	}
	for _, c := range changes {
		b.settings.OnStateChange(b.settings.Name, c.from, c.to)
	}
}
