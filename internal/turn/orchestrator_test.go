package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/fastpath"
	"github.com/MrWong99/voiceagentcore/internal/memoryloader"
	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	memmock "github.com/MrWong99/voiceagentcore/pkg/memory/mock"
	"github.com/MrWong99/voiceagentcore/pkg/transport"
	transportmock "github.com/MrWong99/voiceagentcore/pkg/transport/mock"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// fakeClock advances only when Sleep is called, so backoff never costs
// real wall-clock time in tests while still recording how much simulated
// time elapsed.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type stubSyncWorker struct {
	mu    sync.Mutex
	turns []Turn
}

func (w *stubSyncWorker) Enqueue(t Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, t)
}

func newTestOrchestrator(t *testing.T, mode Mode, memClient memory.Client, fastGen *fastpath.Generator, clock *fakeClock) (*Orchestrator, *transportmock.Room, *stubSyncWorker) {
	t.Helper()

	loaderClient := &memmock.Client{GetAgentResult: memory.AgentRecord{Persona: "an assistant"}}
	loaderBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "loader-test", Clock: clock})
	loader := memoryloader.New(loaderClient, reliability.NewExecutor(clock), loaderBreaker, reliability.DefaultPolicy(), clock)
	if _, err := loader.Load(context.Background(), "agent-1"); err != nil {
		t.Fatalf("preload failed: %v", err)
	}

	fastBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "fast-test", Clock: clock})
	memoryBreaker := reliability.NewBreaker(reliability.BreakerConfig{Name: "memory-test", Clock: clock})
	executor := reliability.NewExecutor(clock)
	room := transportmock.New("room-1", 8)
	sync := &stubSyncWorker{}

	cfg := Config{
		Mode:                    mode,
		AgentID:                 "agent-1",
		MemoryRefreshEveryTurns: 5,
		HealthProbeTimeout:      2 * time.Second,
		Policy:                  reliability.DefaultPolicy(),
	}

	var conn transport.Connection = room
	o := New(cfg, loader, memClient, fastGen, fastBreaker, memoryBreaker, executor, clock, sync, conn, nil, nil)
	return o, room, sync
}

// Scenario 1: happy memory-path turn.
func TestHandleUtterance_HappyMemoryPath(t *testing.T) {
	clock := newFakeClock()
	memClient := &memmock.Client{AskResult: "The current time is 3:28 PM."}
	o, room, sync := newTestOrchestrator(t, ModeMemoryOnly, memClient, nil, clock)
	state := NewState(10)

	got, err := o.HandleUtterance(context.Background(), state, "What time is it?")
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}
	if got != "The current time is 3:28 PM." {
		t.Fatalf("got = %q", got)
	}

	if len(room.PublishCalls) != 2 {
		t.Fatalf("PublishCalls = %d, want 2 (user then assistant)", len(room.PublishCalls))
	}
	if room.PublishCalls[0].Role != types.RoleUser || room.PublishCalls[0].Text != "What time is it?" {
		t.Fatalf("first publish = %+v, want user transcript", room.PublishCalls[0])
	}
	if room.PublishCalls[1].Role != types.RoleAssistant || room.PublishCalls[1].Text != got {
		t.Fatalf("second publish = %+v, want assistant transcript", room.PublishCalls[1])
	}

	if len(sync.turns) != 1 {
		t.Fatalf("sync turns = %d, want 1", len(sync.turns))
	}
	if sync.turns[0].UserText != "What time is it?" || sync.turns[0].AssistantText != got {
		t.Fatalf("sync turn = %+v", sync.turns[0])
	}
}

// Scenario 2: memory service down, fast path disabled.
func TestHandleUtterance_MemoryDownHealthCheckFallback(t *testing.T) {
	clock := newFakeClock()
	memClient := &memmock.Client{ProbeErr: reliability.ErrTimeout}
	o, _, sync := newTestOrchestrator(t, ModeMemoryOnly, memClient, nil, clock)
	state := NewState(10)

	got, err := o.HandleUtterance(context.Background(), state, "Hello")
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}
	want := "I can't connect to my processing system. Please check if the Letta server is running."
	if got != want {
		t.Fatalf("got = %q, want %q", got, want)
	}
	if len(memClient.AskCalls) != 0 {
		t.Fatalf("AskCalls = %d, want 0 (ask must never be called when probe fails)", len(memClient.AskCalls))
	}
	if sync.turns[0].AssistantText != want {
		t.Fatalf("sync turn assistant = %q", sync.turns[0].AssistantText)
	}
}

// Scenario 3: three consecutive memory failures open the breaker; a
// fourth utterance fails fast.
func TestHandleUtterance_ThreeFailuresOpenBreakerFourthFailsFast(t *testing.T) {
	clock := newFakeClock()
	memClient := &memmock.Client{AskErr: reliability.ErrTimeout}
	o, _, _ := newTestOrchestrator(t, ModeMemoryOnly, memClient, nil, clock)
	state := NewState(10)

	for i, text := range []string{"one", "two", "three"} {
		got, err := o.HandleUtterance(context.Background(), state, text)
		if err != nil {
			t.Fatalf("utterance %d: HandleUtterance() error = %v", i, err)
		}
		if got == "" {
			t.Fatalf("utterance %d: got empty fallback", i)
		}
	}

	if breakerState := o.memoryBreaker.State(); breakerState != reliability.StateOpen {
		t.Fatalf("breaker state = %v, want OPEN after three failures", breakerState)
	}

	callsBefore := len(memClient.AskCalls)
	got, err := o.HandleUtterance(context.Background(), state, "four")
	if err != nil {
		t.Fatalf("fourth utterance error = %v", err)
	}
	want := "I'm currently unable to process your request. Please try again shortly."
	if got != want {
		t.Fatalf("fourth utterance fallback = %q, want %q", got, want)
	}
	if len(memClient.AskCalls) != callsBefore {
		t.Fatalf("ask was called while breaker is open")
	}
}

// Scenario 4: empty-response validation; background sync still scheduled
// with the fallback text.
func TestHandleUtterance_EmptyResponseValidationFallback(t *testing.T) {
	clock := newFakeClock()
	memClient := &memmock.Client{AskResult: "   "}
	o, _, sync := newTestOrchestrator(t, ModeMemoryOnly, memClient, nil, clock)
	state := NewState(10)

	got, err := o.HandleUtterance(context.Background(), state, "ping")
	if err != nil {
		t.Fatalf("HandleUtterance() error = %v", err)
	}
	want := "I didn't generate a response. Could you rephrase that?"
	if got != want {
		t.Fatalf("got = %q, want %q", got, want)
	}
	if len(sync.turns) != 1 || sync.turns[0].AssistantText != want {
		t.Fatalf("sync turns = %+v, want one turn with fallback assistant text", sync.turns)
	}
}
