// Package turn implements the Turn Orchestrator (C8): the nine-step
// handleUtterance algorithm that selects a generation path, runs it under
// the reliability envelope, validates the result, and guarantees a
// non-empty, validated reply is always published.
//
// Lock-then-release-before-I/O: State is only ever touched under its own
// mutex for the brief read/append operations; every fallible call
// (transport publish, memory/LLM calls) happens without holding it,
// mirroring the teacher's route-then-release idiom.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/fastpath"
	"github.com/MrWong99/voiceagentcore/internal/memoryloader"
	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/internal/validator"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	"github.com/MrWong99/voiceagentcore/pkg/transport"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Mode selects whether the fast path may ever be used.
type Mode string

const (
	ModeHybrid     Mode = "hybrid"
	ModeMemoryOnly Mode = "memory-only"
)

// SyncEnqueuer is the Background Sync Worker's (C9) intake, narrowed to
// the one method the Orchestrator needs. Defined here rather than
// imported from internal/syncworker to avoid a package import cycle
// (syncworker imports this package for [Turn]).
type SyncEnqueuer interface {
	Enqueue(t Turn)
}

// Config configures an Orchestrator. Zero-value durations fall back to
// the spec §3 ReliabilityPolicy defaults.
type Config struct {
	Mode                    Mode
	AgentID                 string
	MemoryRefreshEveryTurns int
	HealthProbeTimeout      time.Duration
	Policy                  reliability.Policy
}

func (c Config) withDefaults() Config {
	if c.MemoryRefreshEveryTurns <= 0 {
		c.MemoryRefreshEveryTurns = 5
	}
	if c.HealthProbeTimeout <= 0 {
		c.HealthProbeTimeout = 2 * time.Second
	}
	return c
}

// Orchestrator implements C8. One instance backs one SessionState.
type Orchestrator struct {
	cfg Config

	loader       *memoryloader.Loader
	memoryClient memory.Client
	fastGen      *fastpath.Generator // nil disables the fast path entirely

	fastBreaker   *reliability.Breaker
	memoryBreaker *reliability.Breaker
	executor      *reliability.Executor
	clock         reliability.Clock

	syncWorker SyncEnqueuer
	conn       transport.Connection
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// New creates an Orchestrator. fastGen may be nil, in which case the fast
// path is never selected regardless of cfg.Mode.
func New(
	cfg Config,
	loader *memoryloader.Loader,
	memoryClient memory.Client,
	fastGen *fastpath.Generator,
	fastBreaker *reliability.Breaker,
	memoryBreaker *reliability.Breaker,
	executor *reliability.Executor,
	clock reliability.Clock,
	syncWorker SyncEnqueuer,
	conn transport.Connection,
	logger *slog.Logger,
	metrics *observe.Metrics,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:           cfg.withDefaults(),
		loader:        loader,
		memoryClient:  memoryClient,
		fastGen:       fastGen,
		fastBreaker:   fastBreaker,
		memoryBreaker: memoryBreaker,
		executor:      executor,
		clock:         clock,
		syncWorker:    syncWorker,
		conn:          conn,
		logger:        logger,
		metrics:       metrics,
	}
}

// HandleUtterance runs the full handleUtterance algorithm for one
// finalized user transcript. state is the session's conversational
// state; HandleUtterance must be called serially per session (the caller
// — the Session Controller — guarantees single-flight).
func (o *Orchestrator) HandleUtterance(ctx context.Context, state *State, userText string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "turn.handle_utterance")
	defer span.End()
	logger := observe.Logger(ctx)

	start := o.clock.Now()
	now := start

	// Step 1: publish the user transcript immediately, without waiting
	// for a reply.
	if err := o.conn.PublishTranscript(ctx, types.TranscriptEvent{
		Role: types.RoleUser, Text: userText, Timestamp: now,
	}); err != nil {
		logger.Warn("turn: publish user transcript failed", "error", err)
	}

	// Step 2: trigger an asynchronous memory reload every N turns.
	if state.TurnCounter()%o.cfg.MemoryRefreshEveryTurns == 0 {
		o.loader.Reload(context.WithoutCancel(ctx), o.cfg.AgentID)
	}

	history := state.History()

	candidate, path, fallbackText := o.runGeneration(ctx, history, userText)

	assistantText := candidate
	validated := fallbackText == ""
	if fallbackText == "" {
		if verr := validator.Validate(candidate); verr != nil {
			logger.Info("turn: validation rejected candidate", "error", verr)
			assistantText = validator.Fallback(verr)
			path = PathFallback
			validated = false
		} else {
			validated = true
		}
	} else {
		assistantText = fallbackText
	}

	if err := o.conn.PublishTranscript(ctx, types.TranscriptEvent{
		Role: types.RoleAssistant, Text: assistantText, Timestamp: o.clock.Now(),
	}); err != nil {
		logger.Warn("turn: publish assistant transcript failed", "error", err)
	}

	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, string(path), validated, o.clock.Now().Sub(start).Seconds())
	}

	t := Turn{UserText: userText, AssistantText: assistantText, Path: path, Validated: validated}
	o.syncWorker.Enqueue(t)
	state.append(userText, assistantText)

	return assistantText, nil
}

// runGeneration selects and runs a path, returning either a candidate
// reply (to be validated by the caller) or a pre-validated fallback text
// (fallbackText != "") when the path failed terminally.
func (o *Orchestrator) runGeneration(ctx context.Context, history []types.Message, userText string) (candidate string, path Path, fallbackText string) {
	fastAllowed := o.cfg.Mode == ModeHybrid && o.fastGen != nil
	if fastAllowed && (o.fastBreaker.State() == reliability.StateClosed || o.fastBreaker.State() == reliability.StateHalfOpen) {
		snap, ok := o.loader.Current()
		systemPrompt := ""
		if ok {
			systemPrompt = snap.SystemPrompt
		}

		text, err := o.runFastPath(ctx, systemPrompt, history, userText)
		if err == nil {
			return text, PathFast, ""
		}
		o.logger.Info("turn: fast path failed, falling back to memory path", "error", err)
	}

	return o.runMemoryPath(ctx, userText)
}

func (o *Orchestrator) runFastPath(ctx context.Context, systemPrompt string, history []types.Message, userText string) (string, error) {
	start := o.clock.Now()
	var text string
	err := o.fastBreaker.Execute(func() error {
		return o.executor.Run(ctx, o.cfg.Policy, func(attemptCtx context.Context) error {
			var genErr error
			text, genErr = o.fastGen.Generate(attemptCtx, systemPrompt, history, userText)
			return genErr
		})
	})
	if o.metrics != nil {
		o.metrics.LLMCallDuration.Record(ctx, o.clock.Now().Sub(start).Seconds())
	}
	return text, err
}

// runMemoryPath implements step 5: probe, then ask under the reliability
// envelope. Any probe or ask failure is converted directly into a
// fallback (bypassing step 6 validation, since the fallback text is
// known-good by construction).
//
// The probe runs outside the breaker's Execute: a probe only ever
// contributes a failure (via Breaker.RecordFailure), never a success —
// otherwise an always-healthy probe paired with a failing ask would keep
// resetting consecutiveFailures to 0 every turn and the breaker could
// never reach its threshold. Only ask() runs through Execute, so it is
// the sole call that can close (or hold closed) the breaker.
func (o *Orchestrator) runMemoryPath(ctx context.Context, userText string) (candidate string, path Path, fallbackText string) {
	if o.memoryBreaker.State() == reliability.StateOpen {
		return "", PathFallback, fallbackFor(ReasonBreakerOpen)
	}

	probeStart := o.clock.Now()
	probeCtx, cancel := context.WithTimeout(ctx, o.cfg.HealthProbeTimeout)
	probeErr := o.memoryClient.Probe(probeCtx)
	cancel()
	if o.metrics != nil {
		o.metrics.RecordMemoryCall(ctx, "probe", o.clock.Now().Sub(probeStart).Seconds())
	}

	if probeErr != nil {
		o.memoryBreaker.RecordFailure()
		return "", PathFallback, fallbackFor(ReasonHealthCheckFailed)
	}

	askStart := o.clock.Now()
	var text string
	askErr := o.memoryBreaker.Execute(func() error {
		return o.executor.Run(ctx, o.cfg.Policy, func(attemptCtx context.Context) error {
			var err error
			text, err = o.memoryClient.Ask(attemptCtx, o.cfg.AgentID, userText)
			return err
		})
	})
	if o.metrics != nil {
		o.metrics.RecordMemoryCall(ctx, "ask", o.clock.Now().Sub(askStart).Seconds())
	}
	if askErr != nil {
		return "", PathFallback, fallbackFor(reasonFor(askErr, ReasonDependencyError))
	}

	return text, PathMemory, ""
}

// reasonFor classifies err into a FallbackReason, defaulting to def when
// no more specific classification applies.
func reasonFor(err error, def FallbackReason) FallbackReason {
	switch {
	case errors.Is(err, reliability.ErrBreakerOpen):
		return ReasonBreakerOpen
	case errors.Is(err, reliability.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, reliability.ErrRetriesExhausted):
		return ReasonTimeout
	default:
		return def
	}
}
