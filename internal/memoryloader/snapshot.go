// Package memoryloader implements the Memory Loader (C7): it calls the
// Memory Client under the reliability envelope, composes the system
// prompt, and caches the result as an [AgentSnapshot] that is swapped
// atomically on refresh rather than mutated in place.
package memoryloader

import (
	"strings"
	"time"

	"github.com/MrWong99/voiceagentcore/pkg/memory"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// AgentSnapshot is what the Memory Loader caches for one agent. It is
// immutable once published; a reload produces a new value and the caller
// swaps the pointer, it never mutates an existing AgentSnapshot's fields.
type AgentSnapshot struct {
	AgentID      string
	Persona      string
	Blocks       []types.Block
	LoadedAt     time.Time
	SystemPrompt string

	// Degraded is set when this snapshot was served from the local
	// Postgres fallback cache instead of a live getAgent response. It
	// never affects SystemPrompt composition, only observability.
	Degraded bool
}

// composeSystemPrompt concatenates, in this fixed order: persona text,
// then each memory block in the order the memory service returned it,
// each prefixed by its label. An empty persona and zero blocks still
// yields a non-empty, minimal fallback string.
func composeSystemPrompt(persona string, blocks []types.Block) string {
	var sb strings.Builder

	if persona != "" {
		sb.WriteString(persona)
	}
	for _, b := range blocks {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.Label)
		sb.WriteString(": ")
		sb.WriteString(b.Value)
	}

	if sb.Len() == 0 {
		return "You are a helpful voice assistant."
	}
	return sb.String()
}

func newSnapshot(agentID string, rec memory.AgentRecord, loadedAt time.Time, degraded bool) AgentSnapshot {
	return AgentSnapshot{
		AgentID:      agentID,
		Persona:      rec.Persona,
		Blocks:       rec.Blocks,
		LoadedAt:     loadedAt,
		SystemPrompt: composeSystemPrompt(rec.Persona, rec.Blocks),
		Degraded:     degraded,
	}
}
