package memoryloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
)

// SnapshotCache is the optional local fallback store (pkg/memory/localcache)
// consulted only when a live getAgent call fails and no snapshot has ever
// been loaded this process. It is never a substitute for the memory
// service, only a cold-start fallback.
type SnapshotCache interface {
	Put(ctx context.Context, agentID string, rec memory.AgentRecord, personaEmbedding []float32) error
	Get(ctx context.Context, agentID string) (memory.AgentRecord, bool, error)
}

// Loader implements the Memory Loader (C7). One Loader instance backs one
// agent binding's snapshot for the lifetime of a session.
type Loader struct {
	client   memory.Client
	executor *reliability.Executor
	breaker  *reliability.Breaker
	policy   reliability.Policy
	cache    SnapshotCache
	clock    reliability.Clock
	logger   *slog.Logger

	current atomic.Pointer[AgentSnapshot]
}

// Option configures a Loader.
type Option func(*Loader)

// WithCache attaches an optional local fallback cache.
func WithCache(cache SnapshotCache) Option {
	return func(l *Loader) { l.cache = cache }
}

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a Loader. breaker and executor back the memory-path
// reliability envelope (C3+C4) for getAgent calls; policy configures the
// executor's retry/timeout behavior for this loader.
func New(client memory.Client, executor *reliability.Executor, breaker *reliability.Breaker, policy reliability.Policy, clock reliability.Clock, opts ...Option) *Loader {
	l := &Loader{
		client:   client,
		executor: executor,
		breaker:  breaker,
		policy:   policy,
		clock:    clock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load calls getAgent under the reliability envelope, composes the
// system prompt, and publishes the result as the current snapshot. On a
// terminal reliability failure it falls back to the last-published
// snapshot if one exists or, failing that, to the local cache (if any).
func (l *Loader) Load(ctx context.Context, agentID string) (AgentSnapshot, error) {
	var rec memory.AgentRecord
	err := l.breaker.Execute(func() error {
		return l.executor.Run(ctx, l.policy, func(attemptCtx context.Context) error {
			var callErr error
			rec, callErr = l.client.GetAgent(attemptCtx, agentID)
			return callErr
		})
	})

	if err == nil {
		snap := newSnapshot(agentID, rec, l.clock.Now(), false)
		l.current.Store(&snap)
		if l.cache != nil {
			if putErr := l.cache.Put(ctx, agentID, rec, nil); putErr != nil {
				l.logger.Warn("memoryloader: cache put failed", "agent_id", agentID, "error", putErr)
			}
		}
		return snap, nil
	}

	l.logger.Warn("memoryloader: getAgent failed, attempting fallback", "agent_id", agentID, "error", err)

	if existing := l.current.Load(); existing != nil {
		return *existing, nil
	}

	if cached, ok, cacheErr := l.tryCache(ctx, agentID); ok {
		return cached, nil
	} else if cacheErr != nil {
		l.logger.Warn("memoryloader: cache fallback failed", "agent_id", agentID, "error", cacheErr)
	}

	return AgentSnapshot{}, fmt.Errorf("memoryloader: load %q: %w", agentID, err)
}

func (l *Loader) tryCache(ctx context.Context, agentID string) (AgentSnapshot, bool, error) {
	if l.cache == nil {
		return AgentSnapshot{}, false, nil
	}
	rec, ok, err := l.cache.Get(ctx, agentID)
	if err != nil {
		return AgentSnapshot{}, false, err
	}
	if !ok {
		return AgentSnapshot{}, false, nil
	}
	snap := newSnapshot(agentID, rec, l.clock.Now(), true)
	l.current.Store(&snap)
	return snap, true, nil
}

// Current returns the most recently published snapshot, if any.
func (l *Loader) Current() (AgentSnapshot, bool) {
	p := l.current.Load()
	if p == nil {
		return AgentSnapshot{}, false
	}
	return *p, true
}

// Reload triggers an asynchronous refresh, used by the Turn Orchestrator
// every memoryRefreshEveryTurns user turns. It does not block the caller;
// failures are logged and the current snapshot remains in use.
func (l *Loader) Reload(ctx context.Context, agentID string) {
	go func() {
		if _, err := l.Load(ctx, agentID); err != nil {
			l.logger.Warn("memoryloader: background reload failed", "agent_id", agentID, "error", err)
		}
	}()
}
