// Package registry implements the Room Registry (C6): the process-wide
// source of truth for which room is served by which agent, and which
// session currently owns a given agent. It enforces at most one
// RoomAssignment per room and at most one live session per agent.
package registry

import (
	"errors"
	"sync"
	"time"
)

// ErrDuplicateRoom is returned by TryAcquire when roomName already has a
// live RoomAssignment.
var ErrDuplicateRoom = errors.New("registry: room already assigned")

// ErrMultipleAgentsInRoom is returned by TryAcquire when the same agent
// already has a live assignment under a different session; the Dispatch
// Gate reports it as a rejected duplicate.
var ErrMultipleAgentsInRoom = errors.New("registry: agent already has a live session")

// Assignment records "room X is currently served by agent A in session S".
type Assignment struct {
	RoomName   string
	AgentID    string
	SessionID  string
	AcquiredAt time.Time
}

// Registry holds the two mappings described in spec §4.11, guarded by one
// mutex so an acquire/release is atomic across both.
type Registry struct {
	mu               sync.Mutex
	roomToAssignment map[string]Assignment
	agentToSession   map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		roomToAssignment: make(map[string]Assignment),
		agentToSession:   make(map[string]string),
	}
}

// TryAcquire atomically creates a RoomAssignment for roomName if and only
// if roomName has no live assignment and agentID has no other live
// session. acquiredAt is supplied by the caller (the Clock) so this
// package never reads wall-clock time itself.
func (r *Registry) TryAcquire(roomName, agentID, sessionID string, acquiredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roomToAssignment[roomName]; exists {
		return ErrDuplicateRoom
	}
	if existingSession, exists := r.agentToSession[agentID]; exists && existingSession != sessionID {
		return ErrMultipleAgentsInRoom
	}

	r.roomToAssignment[roomName] = Assignment{
		RoomName:   roomName,
		AgentID:    agentID,
		SessionID:  sessionID,
		AcquiredAt: acquiredAt,
	}
	r.agentToSession[agentID] = sessionID
	return nil
}

// Release removes the assignment for roomName, if any, and frees the
// associated agent's live-session slot.
func (r *Registry) Release(roomName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	assignment, ok := r.roomToAssignment[roomName]
	if !ok {
		return
	}
	delete(r.roomToAssignment, roomName)
	if r.agentToSession[assignment.AgentID] == assignment.SessionID {
		delete(r.agentToSession, assignment.AgentID)
	}
}

// Lookup returns the current assignment for roomName, if any.
func (r *Registry) Lookup(roomName string) (Assignment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.roomToAssignment[roomName]
	return a, ok
}
