package dispatch

import (
	"testing"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/registry"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

func newGate() (*Gate, *registry.Registry) {
	reg := registry.New()
	binding := types.AgentBinding{AgentID: "agent-1", AgentName: "Aria"}
	return New(binding, reg, nil, nil), reg
}

func TestAccept_FirstRequestAccepted(t *testing.T) {
	g, _ := newGate()
	req := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-1"}

	got := g.Accept(req, time.Unix(0, 0))
	if got != Accepted {
		t.Fatalf("Accept() = %v, want Accepted", got)
	}
}

// TestAccept_SecondRequestSameRoomRejectedDuplicate covers the "two jobs
// race for the same room" scenario: the first is accepted, a second job
// for the same room (even from a different session) is rejected.
func TestAccept_SecondRequestSameRoomRejectedDuplicate(t *testing.T) {
	g, _ := newGate()
	first := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-1"}
	if got := g.Accept(first, time.Unix(0, 0)); got != Accepted {
		t.Fatalf("first Accept() = %v, want Accepted", got)
	}

	second := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-2"}
	got := g.Accept(second, time.Unix(1, 0))
	if got != RejectedDuplicate {
		t.Fatalf("second Accept() = %v, want RejectedDuplicate", got)
	}
}

func TestAccept_WrongAgentRejected(t *testing.T) {
	g, _ := newGate()
	req := JobRequest{RoomName: "room-1", AgentName: "SomeoneElse", SessionID: "session-1"}

	got := g.Accept(req, time.Unix(0, 0))
	if got != RejectedWrongAgent {
		t.Fatalf("Accept() = %v, want RejectedWrongAgent", got)
	}
}

func TestAccept_DuplicateCheckedBeforeWrongAgent(t *testing.T) {
	g, _ := newGate()
	first := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-1"}
	if got := g.Accept(first, time.Unix(0, 0)); got != Accepted {
		t.Fatalf("first Accept() = %v, want Accepted", got)
	}

	wrongAgent := JobRequest{RoomName: "room-1", AgentName: "Nope", SessionID: "session-2"}
	got := g.Accept(wrongAgent, time.Unix(1, 0))
	if got != RejectedDuplicate {
		t.Fatalf("Accept() = %v, want RejectedDuplicate even for a mismatched agent, per spec §4.1's check order", got)
	}
}

func TestAccept_AfterReleaseRoomIsAvailableAgain(t *testing.T) {
	g, reg := newGate()
	req := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-1"}
	if got := g.Accept(req, time.Unix(0, 0)); got != Accepted {
		t.Fatalf("Accept() = %v, want Accepted", got)
	}

	reg.Release("room-1")

	again := JobRequest{RoomName: "room-1", AgentName: "Aria", SessionID: "session-2"}
	got := g.Accept(again, time.Unix(1, 0))
	if got != Accepted {
		t.Fatalf("Accept() after release = %v, want Accepted", got)
	}
}
