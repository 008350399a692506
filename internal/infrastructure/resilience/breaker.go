package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
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

// Config tunes a Breaker. Zero values pick conservative defaults.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before probing again
	Cooldown time.Duration
	// HalfOpenMax is the number of trial calls allowed while half-open
	HalfOpenMax uint32
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker guards calls to an unreliable collaborator. Consecutive
// failures open the circuit; after a cooldown a bounded number of trial
// calls decide whether it closes again.
type Breaker struct {
	name string
	cfg  Config

	mu        sync.Mutex
	state     State
	gen       uint64
	failures  uint32
	probes    uint32
	successes uint32
	openedAt  time.Time
}

// New creates a circuit breaker with the given configuration.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax == 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{name: name, cfg: cfg}
}

// Name returns the name of the circuit breaker.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observe(time.Now())
}

// Do runs fn unless the circuit rejects it. The error from fn is
// returned unchanged; rejected calls fail fast with ErrOpen.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit(time.Now())
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()

	err = fn()
	b.settle(gen, err == nil)
	return err
}

// admit decides whether a call may proceed.
func (b *Breaker) admit(now time.Time) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.observe(now) {
	case StateOpen:
		return b.gen, ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMax {
			return b.gen, ErrOpen
		}
		b.probes++
	}
	return b.gen, nil
}

// settle records the outcome of an admitted call. Outcomes belonging to
// a superseded generation are discarded.
func (b *Breaker) settle(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		return
	}

	now := time.Now()
	switch b.observe(now) {
	case StateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if !ok {
			b.transition(StateOpen, now)
			return
		}
		b.successes++
		if b.successes >= b.cfg.HalfOpenMax {
			b.transition(StateClosed, now)
		}
	}
}

// observe applies cooldown expiry and returns the effective state.
// Caller holds mu.
func (b *Breaker) observe(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen, now)
	}
	return b.state
}

// transition moves to the next state and resets per-state counters.
// Caller holds mu.
func (b *Breaker) transition(next State, now time.Time) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next
	b.gen++
	b.failures = 0
	b.probes = 0
	b.successes = 0

	if next == StateOpen {
		b.openedAt = now
	}

	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, prev, next)
	}
}
