package session

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/memoryloader"
	"github.com/MrWong99/voiceagentcore/internal/registry"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/internal/syncworker"
	"github.com/MrWong99/voiceagentcore/internal/turn"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	memmock "github.com/MrWong99/voiceagentcore/pkg/memory/mock"
	"github.com/MrWong99/voiceagentcore/pkg/transport"
	transportmock "github.com/MrWong99/voiceagentcore/pkg/transport/mock"
)

func agentJoined(identity string) transport.ParticipantEvent {
	return transport.ParticipantEvent{Identity: identity, Joined: true, IsAgent: true}
}

func humanJoined(identity string) transport.ParticipantEvent {
	return transport.ParticipantEvent{Identity: identity, Joined: true, IsAgent: false}
}

func humanLeft(identity string) transport.ParticipantEvent {
	return transport.ParticipantEvent{Identity: identity, Joined: false, IsAgent: false}
}

func newTestController(t *testing.T, memClient *memmock.Client, cfg Config) (*Controller, *transportmock.Room) {
	t.Helper()

	loaderClient := &memmock.Client{GetAgentResult: memory.AgentRecord{Persona: "an assistant"}}
	loaderBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "loader-test", Clock: reliability.SystemClock{}})
	loader := memoryloader.New(loaderClient, reliability.NewExecutor(reliability.SystemClock{}), loaderBreaker, reliability.DefaultPolicy(), reliability.SystemClock{})

	fastBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "fast-test", Clock: reliability.SystemClock{}})
	memoryBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "memory-test", Clock: reliability.SystemClock{}})
	executor := reliability.NewExecutor(reliability.SystemClock{})

	room := transportmock.New(cfg.RoomName, 8)
	turnState := turn.NewState(10)

	syncBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "sync-test", Clock: reliability.SystemClock{}})
	worker := syncworker.New(memClient, reliability.NewExecutor(reliability.SystemClock{}), syncBreaker, reliability.DefaultPolicy(), cfg.AgentID, cfg.SessionID, nil, nil)

	orchCfg := turn.Config{
		Mode:                    turn.ModeMemoryOnly,
		AgentID:                 cfg.AgentID,
		MemoryRefreshEveryTurns: 5,
		HealthProbeTimeout:      2 * time.Second,
		Policy:                  reliability.DefaultPolicy(),
	}
	orch := turn.New(orchCfg, loader, memClient, nil, fastBreaker, memoryBreaker, executor, reliability.SystemClock{}, worker, room, nil, nil)

	reg := registry.New()
	if err := reg.TryAcquire(cfg.RoomName, cfg.AgentID, cfg.SessionID, time.Now()); err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}

	ctrl := New(cfg, room, loader, orch, turnState, worker, reg, nil, nil)
	return ctrl, room
}

func TestRun_PreloadFailureReturnsError(t *testing.T) {
	loaderClient := &memmock.Client{GetAgentErr: reliability.ErrTimeout}
	loaderBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "loader-fail", Clock: reliability.SystemClock{}})
	loader := memoryloader.New(loaderClient, reliability.NewExecutor(reliability.SystemClock{}), loaderBreaker, reliability.DefaultPolicy(), reliability.SystemClock{})

	room := transportmock.New("room-1", 4)
	turnState := turn.NewState(10)
	memClient := &memmock.Client{}
	worker := syncworker.New(memClient, reliability.NewExecutor(reliability.SystemClock{}), reliability.NewBreaker(reliability.BreakerConfig{Name: "s", Clock: reliability.SystemClock{}}), reliability.DefaultPolicy(), "agent-1", "sess-1", nil, nil)
	reg := registry.New()

	cfg := Config{RoomName: "room-1", AgentID: "agent-1", SessionID: "sess-1"}
	ctrl := New(cfg, room, loader, nil, turnState, worker, reg, nil, nil)

	err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want preload failure propagated")
	}
	if ctrl.State() != StateInitializing {
		t.Fatalf("state = %v, want still INITIALIZING on preload failure", ctrl.State())
	}
}

func TestRun_FirstTranscriptTransitionsToServingAndClosesOnShutdown(t *testing.T) {
	memClient := &memmock.Client{AskResult: "an answer"}
	cfg := Config{RoomName: "room-1", AgentID: "agent-1", SessionID: "sess-1", DrainGracePeriod: 200 * time.Millisecond}
	ctrl, room := newTestController(t, memClient, cfg)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	room.TranscriptsCh <- "hello"
	deadline := time.After(time.Second)
	for ctrl.State() != StateServing {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for SERVING")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	ctrl.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Shutdown")
	}

	if ctrl.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED", ctrl.State())
	}
	if _, ok := ctrl.reg.Lookup("room-1"); ok {
		t.Fatal("room assignment still present after close")
	}
}

func TestRun_ConflictDrainsOnSecondAgentIdentity(t *testing.T) {
	memClient := &memmock.Client{AskResult: "ok"}
	cfg := Config{RoomName: "room-1", AgentID: "agent-1", SessionID: "sess-1", DrainGracePeriod: 200 * time.Millisecond}
	ctrl, room := newTestController(t, memClient, cfg)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	room.EventsCh <- agentJoined("npc-a")
	room.EventsCh <- agentJoined("npc-b")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after conflict")
	}
	if ctrl.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after conflict drain", ctrl.State())
	}
}

// Reset-on-reconnect: history is cleared in place when the last human
// leaves and the assignment survives.
func TestOnParticipantEvent_LastHumanLeaveResetsHistoryInPlace(t *testing.T) {
	memClient := &memmock.Client{AskResult: "an answer"}
	cfg := Config{RoomName: "room-1", AgentID: "agent-1", SessionID: "sess-1"}
	ctrl, _ := newTestController(t, memClient, cfg)

	ctx := context.Background()
	ctrl.onParticipantEvent(ctx, humanJoined("user-1"))
	ctrl.turnState.Reset() // start from a clean slate before simulating a turn
	if _, err := ctrl.orch.HandleUtterance(ctx, ctrl.turnState, "Remember that my favorite color is blue."); err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}
	if len(ctrl.turnState.History()) == 0 {
		t.Fatal("expected history to be populated before reconnect")
	}

	ctrl.onParticipantEvent(ctx, humanLeft("user-1"))

	if got := ctrl.turnState.History(); len(got) != 0 {
		t.Fatalf("history length = %d after last human left, want 0 (reset on reconnect)", len(got))
	}
}
