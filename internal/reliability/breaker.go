// Package reliability provides the circuit breaker and retry/timeout
// executor that guard every fallible dependency call made by the
// orchestration core.
//
// [Breaker] is a three-state breaker (closed → open → half-open) that admits
// exactly one probe call while half-open, per the reliability envelope's
// fast-fail requirement. [Executor] wraps an operation with a per-attempt
// deadline and a bounded, explicit backoff schedule.
//
// One Breaker instance guards one (session, dependency) pair — the fast-path
// LLM call and the memory service call never share a breaker, so a failure
// on one path never degrades the other.
//
// All types are safe for concurrent use.
package reliability

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed is the normal operating state — all calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to consecutive
	// failures. Calls are rejected immediately with [ErrBreakerOpen] until
	// the cooldown elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the cooldown. Exactly
	// one call is allowed through; success closes the breaker, failure
	// re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// BreakerConfig holds tuning knobs for a [Breaker]. Zero values are replaced
// with the spec's defaults (threshold 3, cooldown 30s).
type BreakerConfig struct {
	// Name is a human-readable label used in log messages and metrics.
	Name string

	// Threshold is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before admitting a single
	// half-open probe. Default: 30s.
	Cooldown time.Duration

	// Clock supplies time for cooldown checks. Default: [SystemClock].
	Clock Clock

	// OnTrip, if set, is called (with the breaker's own mutex released)
	// every time the breaker transitions into StateOpen, from either
	// closed or half-open. Used to feed observe.Metrics.RecordBreakerTrip
	// without this package depending on the observe package.
	OnTrip func()
}

// Breaker implements the three-state circuit breaker from §4.3: closed
// counts consecutive failures, open fails fast until the cooldown elapses,
// half-open admits exactly one probe call.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	clock     Clock
	onTrip    func()

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probeInFlight   bool
}

// NewBreaker creates a [Breaker] with the supplied configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		clock:     cfg.Clock,
		onTrip:    cfg.OnTrip,
		state:     StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state, before the
// cooldown elapses, it returns [ErrBreakerOpen] without calling fn and
// without fn ever reaching the network — this is what makes the "fast-fail
// when open" invariant hold. In the half-open state only one concurrent
// probe is admitted; a second concurrent caller is also rejected with
// [ErrBreakerOpen].
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.clock.Now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.probeInFlight = false
			slog.Info("breaker transitioning to half-open", "name", b.name)
		} else {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	inHalfOpen := b.state == StateHalfOpen
	if inHalfOpen {
		if b.probeInFlight {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probeInFlight = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	if inHalfOpen {
		b.probeInFlight = false
	}
	var tripped bool
	if err != nil {
		tripped = b.recordFailure(inHalfOpen)
	} else {
		b.recordSuccess(inHalfOpen)
	}
	b.mu.Unlock()

	if tripped && b.onTrip != nil {
		b.onTrip()
	}
	return err
}

// recordFailure handles failure accounting. Must be called with b.mu held.
// Returns true the moment the breaker transitions into StateOpen, so the
// caller can fire onTrip after releasing the lock.
func (b *Breaker) recordFailure(inHalfOpen bool) bool {
	if inHalfOpen {
		b.state = StateOpen
		b.openedAt = b.clock.Now()
		b.consecutiveFail = b.threshold
		slog.Warn("breaker re-opened from half-open probe failure", "name", b.name)
		return true
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.clock.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.consecutiveFail)
		return true
	}
	return false
}

// RecordFailure manually records one failure without running a call
// through Execute. It exists for health probes that gate an
// Execute-wrapped call but must not themselves be able to reset the
// breaker on success — only the call that actually runs through Execute
// may do that. A probe failure still counts toward consecutiveFailures
// and can open (or re-open, from half-open) the breaker like any other
// failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	tripped := b.recordFailure(b.state == StateHalfOpen)
	b.mu.Unlock()

	if tripped && b.onTrip != nil {
		b.onTrip()
	}
}

// recordSuccess handles success accounting. Must be called with b.mu held.
func (b *Breaker) recordSuccess(inHalfOpen bool) {
	if inHalfOpen {
		b.state = StateClosed
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.consecutiveFail = 0
}

// State returns the current effective [State] without mutating the breaker.
// If the breaker is open and the cooldown has elapsed, the effective state
// is [StateHalfOpen] — the actual transition happens on the next [Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFail
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
	b.probeInFlight = false
	slog.Info("breaker manually reset", "name", b.name)
}
