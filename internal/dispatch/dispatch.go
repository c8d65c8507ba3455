// Package dispatch implements the Dispatch Gate (C11): per-room job
// acceptance. It locks the Room Registry, validates the requested agent
// against the process's configured primary, and rejects duplicate or
// mismatched jobs before a Session Controller is ever started.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/voiceagentcore/internal/observe"
	"github.com/MrWong99/voiceagentcore/internal/registry"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// ErrWrongAgent is returned when the requested agentName does not match
// the process's configured primary agent.
var ErrWrongAgent = errors.New("dispatch: requested agent does not match configured primary")

// Outcome is the result of a JobRequest, per spec §4.1.
type Outcome int

const (
	// Accepted means a RoomAssignment was created and the caller should
	// bring up a SessionState.
	Accepted Outcome = iota
	// RejectedDuplicate means roomName already has a live RoomAssignment.
	RejectedDuplicate
	// RejectedWrongAgent means the requested agentName does not match the
	// process's configured primary agent.
	RejectedWrongAgent
)

// String returns the human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "ACCEPTED"
	case RejectedDuplicate:
		return "REJECTED_DUPLICATE"
	case RejectedWrongAgent:
		return "REJECTED_WRONG_AGENT"
	default:
		return "UNKNOWN"
	}
}

// metricLabel returns the low-cardinality attribute value
// observe.Metrics.DispatchOutcomes expects.
func (o Outcome) metricLabel() string {
	switch o {
	case Accepted:
		return "accepted"
	case RejectedDuplicate:
		return "rejected_duplicate"
	case RejectedWrongAgent:
		return "rejected_wrong_agent"
	default:
		return "unknown"
	}
}

// JobRequest is a request to serve a room with a named agent.
type JobRequest struct {
	RoomName  string
	AgentID   string
	AgentName string
	SessionID string
}

// Gate implements the Dispatch Gate (C11) for one process-wide
// AgentBinding and Room Registry.
type Gate struct {
	binding  types.AgentBinding
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *observe.Metrics
}

// New creates a Gate bound to the process's configured primary agent.
// metrics may be nil, in which case dispatch outcomes are not recorded.
func New(binding types.AgentBinding, reg *registry.Registry, logger *slog.Logger, metrics *observe.Metrics) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{binding: binding, registry: reg, logger: logger, metrics: metrics}
}

// Accept runs the spec §4.1 contract: reject duplicate room, reject
// wrong agent, otherwise create the RoomAssignment via the Room
// Registry. acquiredAt is supplied by the caller's Clock so this package
// never reads wall-clock time itself.
func (g *Gate) Accept(req JobRequest, acquiredAt time.Time) (outcome Outcome) {
	defer func() {
		if g.metrics != nil {
			g.metrics.RecordDispatchOutcome(context.Background(), outcome.metricLabel())
		}
	}()

	if existing, ok := g.registry.Lookup(req.RoomName); ok {
		g.logger.Info("dispatch: rejected duplicate room",
			"room", req.RoomName, "existing_agent_id", existing.AgentID, "existing_session_id", existing.SessionID)
		return RejectedDuplicate
	}

	if req.AgentName != g.binding.AgentName {
		g.logger.Warn("dispatch: rejected wrong agent",
			"room", req.RoomName, "requested_agent", req.AgentName, "configured_agent", g.binding.AgentName)
		return RejectedWrongAgent
	}

	if err := g.registry.TryAcquire(req.RoomName, g.binding.AgentID, req.SessionID, acquiredAt); err != nil {
		g.logger.Info("dispatch: rejected duplicate room (race)", "room", req.RoomName, "error", err)
		return RejectedDuplicate
	}

	g.logger.Info("dispatch: accepted", "room", req.RoomName, "agent_id", g.binding.AgentID, "session_id", req.SessionID)
	return Accepted
}
