// Package mock provides an in-memory test double for [memory.Client].
//
// All fields are safe to set before calling any method; mutating them during
// a concurrent call is the caller's responsibility for the *Result/*Err
// fields, but calls are recorded under a mutex.
//
// Example:
//
//	c := &mock.Client{
//	    GetAgentResult: memory.AgentRecord{Persona: "a sage"},
//	}
//	rec, err := c.GetAgent(ctx, "agent-1")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceagentcore/pkg/memory"
)

// AppendCall records a single invocation of Append.
type AppendCall struct {
	AgentID, TurnKey, UserText, AssistantText string
}

// Client is a mock implementation of [memory.Client].
type Client struct {
	mu sync.Mutex

	// ProbeErr is returned by Probe.
	ProbeErr error

	// GetAgentResult and GetAgentErr are returned by GetAgent.
	GetAgentResult memory.AgentRecord
	GetAgentErr    error

	// AskResult and AskErr are returned by Ask.
	AskResult string
	AskErr    error

	// AppendErr is returned by Append.
	AppendErr error

	// --- Call records (read after test) ---

	ProbeCallCount int
	GetAgentCalls  []string
	AskCalls       []string
	AppendCalls    []AppendCall
}

func (c *Client) Probe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ProbeCallCount++
	return c.ProbeErr
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (memory.AgentRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetAgentCalls = append(c.GetAgentCalls, agentID)
	return c.GetAgentResult, c.GetAgentErr
}

func (c *Client) Ask(ctx context.Context, agentID, userText string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AskCalls = append(c.AskCalls, userText)
	return c.AskResult, c.AskErr
}

func (c *Client) Append(ctx context.Context, agentID, turnKey, userText, assistantText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AppendCalls = append(c.AppendCalls, AppendCall{agentID, turnKey, userText, assistantText})
	return c.AppendErr
}

var _ memory.Client = (*Client)(nil)
