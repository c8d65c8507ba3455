package reliability

import (
	"context"
	"fmt"
	"time"
)

// Policy configures the Retry/Timeout Executor. Zero values are replaced
// with the spec's defaults (2 retries, 10s per-attempt timeout, [2s, 4s]
// backoff).
type Policy struct {
	// MaxRetries is the number of retries after the first attempt (total
	// attempts = 1 + MaxRetries). Default: 2.
	MaxRetries int

	// PerAttemptTimeout bounds each individual attempt. Default: 10s.
	PerAttemptTimeout time.Duration

	// BackoffSchedule gives the sleep before each retry, indexed by retry
	// number (BackoffSchedule[0] before attempt 2, etc). Default: [2s, 4s].
	// If shorter than MaxRetries, the last entry is reused.
	BackoffSchedule []time.Duration
}

// DefaultPolicy returns the ReliabilityPolicy defaults from spec §3.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        2,
		PerAttemptTimeout: 10 * time.Second,
		BackoffSchedule:   []time.Duration{2 * time.Second, 4 * time.Second},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.PerAttemptTimeout <= 0 {
		p.PerAttemptTimeout = def.PerAttemptTimeout
	}
	if len(p.BackoffSchedule) == 0 {
		p.BackoffSchedule = def.BackoffSchedule
	}
	return p
}

func (p Policy) backoffFor(retryIndex int) time.Duration {
	if len(p.BackoffSchedule) == 0 {
		return 0
	}
	if retryIndex < len(p.BackoffSchedule) {
		return p.BackoffSchedule[retryIndex]
	}
	return p.BackoffSchedule[len(p.BackoffSchedule)-1]
}

// Executor wraps an operation with a per-attempt deadline and bounded,
// cancellable backoff between attempts.
type Executor struct {
	clock Clock
}

// NewExecutor creates an [Executor] using clock for deadlines and sleeps.
// A nil clock defaults to [SystemClock].
func NewExecutor(clock Clock) *Executor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Executor{clock: clock}
}

// Run attempts op up to 1+policy.MaxRetries times. Each attempt runs under a
// context bounded by policy.PerAttemptTimeout; a deadline miss is treated as
// a retryable failure. Between attempts it sleeps according to
// policy.BackoffSchedule, cancellable via ctx. An error classified as
// [Terminal] by [Classify] is returned immediately without further retries.
// Exhausting all attempts on a retryable error returns [ErrRetriesExhausted]
// wrapping the last error.
func (e *Executor) Run(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	policy = policy.withDefaults()
	attempts := 1 + policy.MaxRetries

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, policy.PerAttemptTimeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if Classify(err) == Terminal {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		if sleepErr := e.clock.Sleep(ctx, policy.backoffFor(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}
