// Package session implements the Session Controller (C10): the state
// machine owning one room assignment's lifecycle, from agent-snapshot
// preload through participant monitoring, idle teardown, and the
// reset-on-reconnect contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voiceagentcore/internal/memoryloader"
	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/internal/registry"
	"github.com/MrWong99/voiceagentcore/internal/syncworker"
	"github.com/MrWong99/voiceagentcore/internal/turn"
	"github.com/MrWong99/voiceagentcore/pkg/transport"
)

// State is one point in the Session Controller's lifecycle.
type State int32

const (
	StateInitializing State = iota
	StateReady
	StateServing
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateServing:
		return "SERVING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type drainReason string

const (
	drainReasonConflict drainReason = "conflict"
	drainReasonIdle     drainReason = "idle_timeout"
	drainReasonShutdown drainReason = "shutdown"
)

const idleCheckInterval = 5 * time.Second

// Config configures a Controller. Zero-value durations fall back to the
// spec §6 configuration defaults.
type Config struct {
	RoomName         string
	AgentID          string
	SessionID        string
	IdleTimeout      time.Duration
	DrainGracePeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	if c.DrainGracePeriod <= 0 {
		c.DrainGracePeriod = 5 * time.Second
	}
	return c
}

// Controller implements C10. One Controller backs one RoomAssignment.
type Controller struct {
	cfg Config

	room       transport.Room
	loader     *memoryloader.Loader
	orch       *turn.Orchestrator
	turnState  *turn.State
	syncWorker *syncworker.Worker
	reg        *registry.Registry
	logger     *slog.Logger
	metrics    *observe.Metrics

	state atomic.Int32

	mu                 sync.Mutex
	lastActivityAt     time.Time
	humanCount         int
	nonLocalAgentCount int

	closeCh chan struct{}
	cancel  context.CancelFunc
}

// New creates a Controller. Call Run to bring it up through its full
// lifecycle; Run blocks until the session reaches CLOSED.
func New(cfg Config, room transport.Room, loader *memoryloader.Loader, orch *turn.Orchestrator, turnState *turn.State, syncWorker *syncworker.Worker, reg *registry.Registry, logger *slog.Logger, metrics *observe.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg.withDefaults(),
		room:       room,
		loader:     loader,
		orch:       orch,
		turnState:  turnState,
		syncWorker: syncWorker,
		reg:        reg,
		logger:     logger,
		metrics:    metrics,
		closeCh:    make(chan struct{}, 1),
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Run preloads the agent snapshot, brings the session to READY, and then
// serves participant events and finalized transcripts until the session
// drains, either because the caller's ctx is cancelled or an internal
// drain condition (conflict, idle timeout) fires. It never returns an
// error for a normal drain; only a genuine preload failure is returned.
func (c *Controller) Run(ctx context.Context) error {
	if _, err := c.loader.Load(ctx, c.cfg.AgentID); err != nil {
		return fmt.Errorf("session: preload agent snapshot: %w", err)
	}
	c.state.Store(int32(StateReady))
	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(ctx, 1)
		defer c.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.syncWorker.Start(sessionCtx)

	g, gctx := errgroup.WithContext(sessionCtx)
	g.Go(func() error { return c.watchParticipants(gctx) })
	g.Go(func() error { return c.watchTranscripts(gctx) })
	g.Go(func() error { return c.watchIdle(gctx) })

	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("session: background task error during drain", "session_id", c.cfg.SessionID, "error", err)
		}
	case <-time.After(c.cfg.DrainGracePeriod):
		c.logger.Warn("session: drain grace period elapsed, forcing teardown", "session_id", c.cfg.SessionID)
	}

	c.syncWorker.Stop(c.cfg.DrainGracePeriod)
	if err := c.room.Close(context.Background()); err != nil {
		c.logger.Warn("session: room close error", "session_id", c.cfg.SessionID, "error", err)
	}
	c.reg.Release(c.cfg.RoomName)
	c.state.Store(int32(StateClosed))
	c.logger.Info("session: closed", "session_id", c.cfg.SessionID, "room", c.cfg.RoomName)

	return nil
}

// Shutdown requests an explicit, non-reversible drain.
func (c *Controller) Shutdown() {
	c.drain(drainReasonShutdown)
}

func (c *Controller) watchParticipants(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.room.Events():
			if !ok {
				return nil
			}
			c.onParticipantEvent(ctx, ev)
		}
	}
}

func (c *Controller) onParticipantEvent(ctx context.Context, ev transport.ParticipantEvent) {
	if c.metrics != nil && !ev.IsAgent {
		if ev.Joined {
			c.metrics.ActiveParticipants.Add(ctx, 1)
		} else {
			c.metrics.ActiveParticipants.Add(ctx, -1)
		}
	}

	c.mu.Lock()
	wasHuman := c.humanCount
	if ev.IsAgent {
		if ev.Joined {
			c.nonLocalAgentCount++
		} else if c.nonLocalAgentCount > 0 {
			c.nonLocalAgentCount--
		}
	} else {
		if ev.Joined {
			c.humanCount++
		} else if c.humanCount > 0 {
			c.humanCount--
		}
	}
	agents := c.nonLocalAgentCount
	humans := c.humanCount
	c.mu.Unlock()

	if agents > 1 {
		c.logger.Warn("session: multiple agent identities in room, conflict eviction",
			"session_id", c.cfg.SessionID, "room", c.cfg.RoomName, "agent_count", agents)
		c.drain(drainReasonConflict)
		return
	}

	// Reset-on-reconnect: the last human just left, but the RoomAssignment
	// and this Controller survive. Clear conversational state immediately;
	// teardown (if nobody returns) is left to the idle timer, since an
	// empty room produces no further transcripts to reset lastActivityAt.
	if wasHuman > 0 && humans == 0 && !ev.IsAgent && !ev.Joined {
		c.resetForReconnect(ctx)
	}
}

func (c *Controller) resetForReconnect(ctx context.Context) {
	c.turnState.Reset()
	c.loader.Reload(context.WithoutCancel(ctx), c.cfg.AgentID)
	c.logger.Info("session: reset on reconnect (last human left, assignment retained)",
		"session_id", c.cfg.SessionID, "room", c.cfg.RoomName)
}

func (c *Controller) watchTranscripts(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-c.room.Transcripts():
			if !ok {
				return nil
			}
			c.onTranscript(ctx, text)
		}
	}
}

func (c *Controller) onTranscript(ctx context.Context, text string) {
	c.state.CompareAndSwap(int32(StateReady), int32(StateServing))

	c.mu.Lock()
	c.lastActivityAt = time.Now()
	c.mu.Unlock()

	if _, err := c.orch.HandleUtterance(ctx, c.turnState, text); err != nil {
		c.logger.Warn("session: handleUtterance failed", "session_id", c.cfg.SessionID, "error", err)
	}
}

func (c *Controller) watchIdle(ctx context.Context) error {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastActivityAt) >= c.cfg.IdleTimeout
			c.mu.Unlock()
			if idle && c.State() == StateServing {
				c.logger.Info("session: idle timeout elapsed", "session_id", c.cfg.SessionID, "idle_timeout", c.cfg.IdleTimeout)
				c.drain(drainReasonIdle)
				return nil
			}
		}
	}
}

// drain moves the controller into DRAINING, from either READY or SERVING,
// and signals Run to begin teardown. A no-op if already draining/closed.
func (c *Controller) drain(reason drainReason) {
	if !c.state.CompareAndSwap(int32(StateServing), int32(StateDraining)) &&
		!c.state.CompareAndSwap(int32(StateReady), int32(StateDraining)) {
		return
	}
	c.logger.Info("session: draining", "session_id", c.cfg.SessionID, "reason", reason)
	select {
	case c.closeCh <- struct{}{}:
	default:
	}
}
