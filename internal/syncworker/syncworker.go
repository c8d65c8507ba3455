// Package syncworker implements the Background Sync Worker (C9): a
// detached consumer of completed Turns that appends each to the memory
// service's durable history, absorbing all of its own errors so the
// user-facing turn is never affected by sync outcome.
package syncworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/internal/turn"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
)

// queueDepth bounds the number of pending sync jobs before Enqueue starts
// dropping (logged, not surfaced — the durable store remains consistent
// with what it has already acknowledged, per spec §4.10).
const queueDepth = 64

// Worker implements C9 for one session. One Worker instance owns one
// breaker, separate from the memory path's turn-facing breaker, per
// Design Notes §9 ("two breakers, not one").
type Worker struct {
	client    memory.Client
	executor  *reliability.Executor
	breaker   *reliability.Breaker
	policy    reliability.Policy
	agentID   string
	sessionID string
	logger    *slog.Logger
	metrics   *observe.Metrics

	turnIndex atomic.Int64

	jobs chan turn.Turn
	done chan struct{}
}

// New creates a Worker. Call Start to begin consuming enqueued turns.
// metrics may be nil, in which case sync outcomes and queue depth are not
// recorded.
func New(client memory.Client, executor *reliability.Executor, breaker *reliability.Breaker, policy reliability.Policy, agentID, sessionID string, logger *slog.Logger, metrics *observe.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:    client,
		executor:  executor,
		breaker:   breaker,
		policy:    policy,
		agentID:   agentID,
		sessionID: sessionID,
		logger:    logger,
		metrics:   metrics,
		jobs:      make(chan turn.Turn, queueDepth),
		done:      make(chan struct{}),
	}
}

// Start launches the consumer loop in its own goroutine and returns
// immediately. The loop exits once ctx is cancelled (after a best-effort
// drain of already-enqueued jobs) or once Stop has closed the queue and
// the remaining jobs have been processed.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case t, ok := <-w.jobs:
				if !ok {
					return
				}
				w.process(ctx, t)
			case <-ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

// drain best-effort processes whatever is already queued without
// blocking past the caller's own bounded grace period (enforced by the
// Session Controller's Stop, not here).
func (w *Worker) drain() {
	for {
		select {
		case t, ok := <-w.jobs:
			if !ok {
				return
			}
			// Use a short-lived background context: the outer ctx is
			// already cancelled, but a best-effort flush still attempts
			// the append once.
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			w.process(flushCtx, t)
			cancel()
		default:
			return
		}
	}
}

// Enqueue hands off a completed Turn for background append. Non-blocking:
// if the queue is full, the turn is dropped and logged rather than
// blocking the caller, since the sync worker is explicitly detached from
// the user-facing turn.
func (w *Worker) Enqueue(t turn.Turn) {
	select {
	case w.jobs <- t:
		if w.metrics != nil {
			w.metrics.SyncQueueDepth.Add(context.Background(), 1)
		}
	default:
		w.logger.Warn("syncworker: queue full, dropping turn", "session_id", w.sessionID)
		if w.metrics != nil {
			w.metrics.RecordSyncAppend(context.Background(), "dropped")
		}
	}
}

// Stop signals no more turns will be enqueued and waits up to
// gracePeriod for in-flight and already-queued work to finish.
func (w *Worker) Stop(gracePeriod time.Duration) {
	close(w.jobs)
	select {
	case <-w.done:
	case <-time.After(gracePeriod):
		w.logger.Warn("syncworker: grace period elapsed, forcing shutdown", "session_id", w.sessionID)
	}
}

func (w *Worker) process(ctx context.Context, t turn.Turn) {
	if w.metrics != nil {
		w.metrics.SyncQueueDepth.Add(ctx, -1)
	}

	idx := w.turnIndex.Add(1)
	turnKey := fmt.Sprintf("%s:%d", w.sessionID, idx)

	err := w.breaker.Execute(func() error {
		return w.executor.Run(ctx, w.policy, func(attemptCtx context.Context) error {
			return w.client.Append(attemptCtx, w.agentID, turnKey, t.UserText, t.AssistantText)
		})
	})
	if err != nil {
		w.logger.Warn("syncworker: append failed, durable history may lag this turn",
			"session_id", w.sessionID, "turn_key", turnKey, "error", err)
		if w.metrics != nil {
			w.metrics.RecordSyncAppend(ctx, "error")
		}
		return
	}
	if w.metrics != nil {
		w.metrics.RecordSyncAppend(ctx, "ok")
	}
}
