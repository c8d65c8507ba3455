// Package memory defines the Memory Client boundary (C1): typed calls to the
// external memory service that stores agent persona, memory blocks and
// conversation history.
//
// This package is interface-only. Concrete transports live in subpackages:
// [github.com/MrWong99/voiceagentcore/pkg/memory/httpclient] for the real
// HTTP/JSON boundary described in spec §6, and
// [github.com/MrWong99/voiceagentcore/pkg/memory/mock] for tests.
package memory

import (
	"context"

	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// AgentRecord is what the memory service returns for an agent: its persona
// text and its memory blocks, in the order the service returned them. The
// Memory Loader (C7) composes this into an [AgentSnapshot]; this package
// does not cache or compose — it only speaks the wire contract.
type AgentRecord struct {
	Name    string
	Persona string
	Blocks  []types.Block
}

// Client is the Memory Client boundary (C1). Implementations translate HTTP
// or other wire errors into the reliability package's dependency error
// taxonomy (UNREACHABLE, TIMEOUT, PROTOCOL, SERVER_ERROR, NOT_FOUND) so the
// Retry/Timeout Executor and Circuit Breaker can classify them uniformly.
type Client interface {
	// Probe performs a health check. It must return promptly (the caller is
	// expected to bound it with a short deadline) and must not be retried
	// internally — probe() gates the full call, per spec §4.5.
	Probe(ctx context.Context) error

	// GetAgent returns the persona and ordered memory blocks for agentID.
	GetAgent(ctx context.Context, agentID string) (AgentRecord, error)

	// Ask performs a synchronous request/response turn through the memory
	// service, with the full tool/memory capability set enabled. The
	// returned text must be non-empty on success.
	Ask(ctx context.Context, agentID string, userText string) (string, error)

	// Append idempotently appends a (user, assistant) turn to the agent's
	// durable conversation history. turnKey is a synthetic idempotency hint
	// (sessionId:turnIndex); implementations may ignore it. A "duplicate
	// turn" rejection from the service must be treated as success.
	Append(ctx context.Context, agentID, turnKey, userText, assistantText string) error
}
