package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/app"
	"github.com/MrWong99/voiceagentcore/internal/dispatch"
	"github.com/MrWong99/voiceagentcore/internal/turn"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	memorymock "github.com/MrWong99/voiceagentcore/pkg/memory/mock"
	transportmock "github.com/MrWong99/voiceagentcore/pkg/transport/mock"
)

func testConfig() app.Config {
	return app.Config{
		PrimaryAgentID:   "agent-1",
		PrimaryAgentName: "Aria",
		Mode:             turn.ModeMemoryOnly,
		DrainGracePeriod: 200 * time.Millisecond,
	}
}

func TestNew_RequiresMemoryClient(t *testing.T) {
	t.Parallel()

	_, err := app.New(testConfig())
	if err == nil {
		t.Fatal("New() error = nil, want error for missing memory client")
	}
}

func TestNew_RequiresAgentBinding(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PrimaryAgentID = ""
	memClient := &memorymock.Client{}

	_, err := app.New(cfg, app.WithMemoryClient(memClient))
	if err == nil {
		t.Fatal("New() error = nil, want error for missing agent binding")
	}
}

func TestDispatch_AcceptsFirstJobAndRejectsDuplicateRoom(t *testing.T) {
	t.Parallel()

	memClient := &memorymock.Client{GetAgentResult: memory.AgentRecord{Persona: "an assistant"}, AskResult: "ok"}
	a, err := app.New(testConfig(), app.WithMemoryClient(memClient))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	room := transportmock.New("room-1", 8)
	req := dispatch.JobRequest{RoomName: "room-1", AgentID: "agent-1", AgentName: "Aria", SessionID: "session-1"}

	if got := a.Dispatch(context.Background(), room, req); got != dispatch.Accepted {
		t.Fatalf("Dispatch() = %v, want Accepted", got)
	}

	deadline := time.After(time.Second)
	for a.ActiveSessions() != 1 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for session to start")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	second := transportmock.New("room-1", 8)
	dupReq := dispatch.JobRequest{RoomName: "room-1", AgentID: "agent-1", AgentName: "Aria", SessionID: "session-2"}
	if got := a.Dispatch(context.Background(), second, dupReq); got != dispatch.RejectedDuplicate {
		t.Fatalf("Dispatch() = %v, want RejectedDuplicate", got)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := a.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions() after Shutdown = %d, want 0", got)
	}
}

func TestDispatch_RejectsWrongAgentWithoutStartingASession(t *testing.T) {
	t.Parallel()

	memClient := &memorymock.Client{}
	a, err := app.New(testConfig(), app.WithMemoryClient(memClient))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	room := transportmock.New("room-1", 8)
	req := dispatch.JobRequest{RoomName: "room-1", AgentID: "agent-1", AgentName: "SomeoneElse", SessionID: "session-1"}

	if got := a.Dispatch(context.Background(), room, req); got != dispatch.RejectedWrongAgent {
		t.Fatalf("Dispatch() = %v, want RejectedWrongAgent", got)
	}
	if got := a.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions() = %d, want 0 after a rejected dispatch", got)
	}
}

func TestShutdown_DrainsRunningSessions(t *testing.T) {
	t.Parallel()

	memClient := &memorymock.Client{GetAgentResult: memory.AgentRecord{Persona: "an assistant"}, AskResult: "ok"}
	a, err := app.New(testConfig(), app.WithMemoryClient(memClient))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	room := transportmock.New("room-1", 8)
	req := dispatch.JobRequest{RoomName: "room-1", AgentID: "agent-1", AgentName: "Aria", SessionID: "session-1"}
	if got := a.Dispatch(context.Background(), room, req); got != dispatch.Accepted {
		t.Fatalf("Dispatch() = %v, want Accepted", got)
	}

	room.TranscriptsCh <- "hello"

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := a.ActiveSessions(); got != 0 {
		t.Fatalf("ActiveSessions() after Shutdown = %d, want 0", got)
	}
	if !room.Closed {
		t.Fatal("room was not closed by session teardown")
	}
}

func TestRun_ReturnsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	memClient := &memorymock.Client{}
	a, err := app.New(testConfig(), app.WithMemoryClient(memClient))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}
