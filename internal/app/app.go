// Package app wires the orchestration core's components into a running
// process: one process-wide Dispatch Gate and Room Registry in front of
// any number of concurrently served sessions, each with its own Session
// Controller and its own reliability primitives per spec §5 ("one
// breaker instance per (session, dependency) pair").
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/dispatch"
	"github.com/MrWong99/voiceagentcore/internal/fastpath"
	"github.com/MrWong99/voiceagentcore/internal/memoryloader"
	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/internal/registry"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/internal/session"
	"github.com/MrWong99/voiceagentcore/internal/syncworker"
	"github.com/MrWong99/voiceagentcore/internal/turn"
	"github.com/MrWong99/voiceagentcore/pkg/llm"
	"github.com/MrWong99/voiceagentcore/pkg/llm/anyllm"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	"github.com/MrWong99/voiceagentcore/pkg/memory/httpclient"
	"github.com/MrWong99/voiceagentcore/pkg/transport"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Config configures an App. Zero-value durations and counters fall back
// to the spec §6 configuration defaults.
type Config struct {
	PrimaryAgentID       string
	PrimaryAgentName     string
	MemoryServiceBaseURL string

	// Mode selects whether the fast path may ever be used. Default per
	// spec §6 is memory-only.
	Mode turn.Mode

	// LLMProviderName and LLMModel select the any-llm-go backend for the
	// fast path. Ignored when Mode is memory-only or an LLM provider was
	// injected via [WithLLMProvider].
	LLMProviderName string
	LLMModel        string

	IdleTimeout             time.Duration
	DrainGracePeriod        time.Duration
	MemoryRefreshEveryTurns int
	HistoryWindow           int
	HealthProbeTimeout      time.Duration

	Policy           reliability.Policy
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = turn.ModeMemoryOnly
	}
	if c.MemoryRefreshEveryTurns <= 0 {
		c.MemoryRefreshEveryTurns = 5
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	if c.DrainGracePeriod <= 0 {
		c.DrainGracePeriod = 5 * time.Second
	}
	if c.HealthProbeTimeout <= 0 {
		c.HealthProbeTimeout = 2 * time.Second
	}
	return c
}

// Option configures an App at construction time, overriding what [New]
// would otherwise build from Config. Used to inject test doubles.
type Option func(*App)

// WithMemoryClient injects a [memory.Client], bypassing the httpclient
// built from Config.MemoryServiceBaseURL.
func WithMemoryClient(client memory.Client) Option {
	return func(a *App) { a.memoryClient = client }
}

// WithLLMProvider injects an [llm.Provider], bypassing the any-llm-go
// backend built from Config.LLMProviderName/LLMModel.
func WithLLMProvider(provider llm.Provider) Option {
	return func(a *App) { a.fastGen = fastpath.New(provider) }
}

// WithSnapshotCache attaches the optional local fallback cache consulted
// by every session's Memory Loader.
func WithSnapshotCache(cache memoryloader.SnapshotCache) Option {
	return func(a *App) { a.cache = cache }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithMetrics attaches the process-wide [observe.Metrics] instance. When
// unset, no metrics are recorded.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(a *App) { a.metrics = metrics }
}

// App is the top-level wiring for one process: one AgentBinding, one
// Room Registry, one Dispatch Gate, and zero or more concurrently
// running sessions.
type App struct {
	cfg     Config
	binding types.AgentBinding

	registry *registry.Registry
	gate     *dispatch.Gate

	memoryClient memory.Client
	fastGen      *fastpath.Generator // nil disables the fast path entirely
	cache        memoryloader.SnapshotCache

	logger  *slog.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*session.Controller

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds an App from cfg, applying opts after the Config-derived
// wiring so injected collaborators always win.
func New(cfg Config, opts ...Option) (*App, error) {
	cfg = cfg.withDefaults()
	if cfg.PrimaryAgentID == "" || cfg.PrimaryAgentName == "" {
		return nil, fmt.Errorf("app: PrimaryAgentID and PrimaryAgentName are required")
	}

	a := &App{
		cfg:      cfg,
		binding:  types.AgentBinding{AgentID: cfg.PrimaryAgentID, AgentName: cfg.PrimaryAgentName},
		registry: registry.New(),
		logger:   slog.Default(),
		sessions: make(map[string]*session.Controller),
	}

	// 1. Memory Client — the one durable dependency every session shares.
	if cfg.MemoryServiceBaseURL != "" {
		a.memoryClient = httpclient.New(cfg.MemoryServiceBaseURL, nil)
	}

	// 2. Fast-Path Generator — only wired in hybrid mode, and only ever
	// from the any-llm-go backend here; WithLLMProvider overrides below.
	if cfg.Mode == turn.ModeHybrid && cfg.LLMProviderName != "" {
		provider, err := anyllm.New(cfg.LLMProviderName, cfg.LLMModel)
		if err != nil {
			return nil, fmt.Errorf("app: build llm provider: %w", err)
		}
		a.fastGen = fastpath.New(provider)
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.memoryClient == nil {
		return nil, fmt.Errorf("app: no memory client configured (set MemoryServiceBaseURL or use WithMemoryClient)")
	}

	// 3. Dispatch Gate — guards every session's entry point.
	a.gate = dispatch.New(a.binding, a.registry, a.logger, a.metrics)

	return a, nil
}

// Dispatch runs the Dispatch Gate for one incoming job request. On
// [dispatch.Accepted], it builds a fresh Session Controller — with its
// own reliability primitives, per spec §5 — and runs it in the
// background until the session drains. The caller owns room's lifetime
// until Dispatch returns [dispatch.Accepted]; thereafter the session
// owns room and will close it on teardown.
func (a *App) Dispatch(ctx context.Context, room transport.Room, req dispatch.JobRequest) dispatch.Outcome {
	outcome := a.gate.Accept(req, time.Now())
	if outcome != dispatch.Accepted {
		return outcome
	}

	ctrl := a.newController(room, req)

	a.mu.Lock()
	a.sessions[req.RoomName] = ctrl
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.untrack(req.RoomName)
		if err := ctrl.Run(ctx); err != nil {
			a.logger.Error("app: session run failed", "room", req.RoomName, "session_id", req.SessionID, "error", err)
		}
	}()

	return dispatch.Accepted
}

// newController assembles one session's full collaborator graph: its own
// Circuit Breakers (loader, fast-path, memory, sync), its own Retry/
// Timeout Executor, its own Memory Loader, Turn Orchestrator, Background
// Sync Worker and conversational State, and the Session Controller that
// owns them all.
func (a *App) newController(room transport.Room, req dispatch.JobRequest) *session.Controller {
	clock := reliability.SystemClock{}
	executor := reliability.NewExecutor(clock)

	breakerCfg := func(name string) reliability.BreakerConfig {
		fullName := fmt.Sprintf("%s:%s", req.SessionID, name)
		var onTrip func()
		if a.metrics != nil {
			onTrip = func() { a.metrics.RecordBreakerTrip(context.Background(), fullName) }
		}
		return reliability.BreakerConfig{
			Name:      fullName,
			Threshold: a.cfg.BreakerThreshold,
			Cooldown:  a.cfg.BreakerCooldown,
			Clock:     clock,
			OnTrip:    onTrip,
		}
	}

	loaderBreaker := reliability.NewBreaker(breakerCfg("loader"))
	fastBreaker := reliability.NewBreaker(breakerCfg("fastpath"))
	memoryBreaker := reliability.NewBreaker(breakerCfg("memory"))
	syncBreaker := reliability.NewBreaker(breakerCfg("sync"))

	loader := memoryloader.New(a.memoryClient, executor, loaderBreaker, a.cfg.Policy, clock,
		memoryloader.WithCache(a.cache), memoryloader.WithLogger(a.logger))

	syncWorker := syncworker.New(a.memoryClient, executor, syncBreaker, a.cfg.Policy, req.AgentID, req.SessionID, a.logger, a.metrics)

	orchCfg := turn.Config{
		Mode:                    a.cfg.Mode,
		AgentID:                 req.AgentID,
		MemoryRefreshEveryTurns: a.cfg.MemoryRefreshEveryTurns,
		HealthProbeTimeout:      a.cfg.HealthProbeTimeout,
		Policy:                  a.cfg.Policy,
	}
	orch := turn.New(orchCfg, loader, a.memoryClient, a.fastGen, fastBreaker, memoryBreaker, executor, clock, syncWorker, room, a.logger, a.metrics)

	turnState := turn.NewState(a.cfg.HistoryWindow)

	sessCfg := session.Config{
		RoomName:         req.RoomName,
		AgentID:          req.AgentID,
		SessionID:        req.SessionID,
		IdleTimeout:      a.cfg.IdleTimeout,
		DrainGracePeriod: a.cfg.DrainGracePeriod,
	}
	return session.New(sessCfg, room, loader, orch, turnState, syncWorker, a.registry, a.logger, a.metrics)
}

func (a *App) untrack(roomName string) {
	a.mu.Lock()
	delete(a.sessions, roomName)
	a.mu.Unlock()
}

// ActiveSessions returns the number of sessions currently being served.
func (a *App) ActiveSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Run blocks until ctx is cancelled, then waits for every currently
// running session to finish draining (each session's own
// DrainGracePeriod already bounds that wait).
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()
	a.wg.Wait()
	return ctx.Err()
}

// Shutdown requests an explicit drain of every active session and
// blocks until they have all torn down or shutdownCtx's deadline
// elapses, whichever comes first.
func (a *App) Shutdown(shutdownCtx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		controllers := make([]*session.Controller, 0, len(a.sessions))
		for _, ctrl := range a.sessions {
			controllers = append(controllers, ctrl)
		}
		a.mu.Unlock()

		for _, ctrl := range controllers {
			ctrl.Shutdown()
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("app: shutdown complete", "sessions_drained", len(controllers))
		case <-shutdownCtx.Done():
			a.logger.Warn("app: shutdown deadline exceeded, sessions may still be tearing down",
				"sessions_remaining", a.ActiveSessions())
			err = shutdownCtx.Err()
		}
	})
	return err
}
