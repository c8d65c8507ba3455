// Package httpclient implements the memory service's HTTP/JSON boundary
// described in spec §6: GET /agents/{id}, POST /agents/{id}/messages, and
// GET /health.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/voiceagentcore/internal/reliability"
	"github.com/MrWong99/voiceagentcore/pkg/memory"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Client is an HTTP implementation of [memory.Client].
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a [Client] talking to baseURL. httpClient may be nil, in which
// case http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// blockWire is the wire shape of a single memory block.
type blockWire struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// memoryWire is the "blocks" shape of the agent's memory field.
type memoryWire struct {
	Blocks []blockWire `json:"blocks"`
}

// agentResponse is the wire shape of GET /agents/{id}.
//
// The memory service's `memory` field is dynamically shaped: either an
// object carrying an ordered block list, or a bare list of blocks. Decode
// raw, then resolve the tagged variant once at this boundary (Design Notes
// §9) so the rest of the core only ever sees []types.Block.
type agentResponse struct {
	Name    string          `json:"name"`
	Persona string          `json:"persona"`
	Memory  json.RawMessage `json:"memory"`
}

func decodeMemoryShape(raw json.RawMessage) ([]types.Block, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var blocksShape memoryWire
	if err := json.Unmarshal(raw, &blocksShape); err == nil && blocksShape.Blocks != nil {
		return toBlocks(blocksShape.Blocks), nil
	}

	var inlineShape []blockWire
	if err := json.Unmarshal(raw, &inlineShape); err == nil {
		return toBlocks(inlineShape), nil
	}

	return nil, fmt.Errorf("%w: unrecognized memory shape", reliability.ErrProtocol)
}

func toBlocks(wire []blockWire) []types.Block {
	blocks := make([]types.Block, len(wire))
	for i, b := range wire {
		blocks[i] = types.Block{Label: b.Label, Value: b.Value}
	}
	return blocks
}

// messageWire is the wire shape of a single chat message.
type messageWire struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Messages []messageWire `json:"messages"`
}

type messagesResponse struct {
	Message messageWire `json:"message"`
}

// Probe performs GET {base}/health. Success means 2xx.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", reliability.ErrUnreachable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyNetErr(ctx, err)
	}
	defer resp.Body.Close()
	return classifyStatus(resp.StatusCode)
}

// GetAgent performs GET {base}/agents/{agentId}.
func (c *Client) GetAgent(ctx context.Context, agentID string) (memory.AgentRecord, error) {
	url := fmt.Sprintf("%s/agents/%s", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return memory.AgentRecord{}, fmt.Errorf("%w: %v", reliability.ErrUnreachable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return memory.AgentRecord{}, classifyNetErr(ctx, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return memory.AgentRecord{}, err
	}

	var wire agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return memory.AgentRecord{}, fmt.Errorf("%w: decode agent response: %v", reliability.ErrProtocol, err)
	}
	blocks, err := decodeMemoryShape(wire.Memory)
	if err != nil {
		return memory.AgentRecord{}, err
	}
	return memory.AgentRecord{Name: wire.Name, Persona: wire.Persona, Blocks: blocks}, nil
}

// Ask performs POST {base}/agents/{agentId}/messages with the single user
// message and returns the assistant reply text.
func (c *Client) Ask(ctx context.Context, agentID, userText string) (string, error) {
	body := messagesRequest{Messages: []messageWire{{Role: string(types.RoleUser), Content: userText}}}
	return c.postMessage(ctx, agentID, body)
}

// Append performs POST {base}/agents/{agentId}/messages with the
// (user, assistant) pair already resolved, so the memory service's history
// reflects both sides of the turn. turnKey is not part of the documented
// wire contract and is therefore not sent; deduplication is the service's
// responsibility, per spec §4.5.
func (c *Client) Append(ctx context.Context, agentID, turnKey, userText, assistantText string) error {
	body := messagesRequest{Messages: []messageWire{
		{Role: string(types.RoleUser), Content: userText},
		{Role: string(types.RoleAssistant), Content: assistantText},
	}}
	_, err := c.postMessage(ctx, agentID, body)
	if err != nil && isDuplicateTurn(err) {
		return nil
	}
	return err
}

func (c *Client) postMessage(ctx context.Context, agentID string, body messagesRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", reliability.ErrProtocol, err)
	}
	url := fmt.Sprintf("%s/agents/%s/messages", c.baseURL, agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", reliability.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyNetErr(ctx, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return "", err
	}

	var wire messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return "", fmt.Errorf("%w: decode messages response: %v", reliability.ErrProtocol, err)
	}
	return wire.Message.Content, nil
}

// isDuplicateTurn reports whether err represents the memory service's
// "duplicate turn" rejection, which the background sync must treat as
// success (spec §4.5, Design Notes §9).
func isDuplicateTurn(err error) bool {
	var de *duplicateTurnError
	return errors.As(err, &de)
}

type duplicateTurnError struct{ status int }

func (e *duplicateTurnError) Error() string { return "memory: duplicate turn" }

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return reliability.ErrNotFound
	case status == http.StatusConflict:
		return &duplicateTurnError{status: status}
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d", reliability.ErrProtocol, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", reliability.ErrServerError, status)
	default:
		return fmt.Errorf("%w: unexpected status %d", reliability.ErrProtocol, status)
	}
}

func classifyNetErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", reliability.ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%w: %v", reliability.ErrUnreachable, err)
}

var _ memory.Client = (*Client)(nil)
