// Package mock provides an in-memory test double for [llm.Provider].
//
// Example:
//
//	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "hi"}, {FinishReason: "stop"}}}
//	ch, err := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceagentcore/pkg/llm"
)

// Provider is a mock implementation of [llm.Provider].
type Provider struct {
	mu sync.Mutex

	// StreamChunks is sent on the returned channel in order, then the
	// channel is closed. StreamErr, if non-nil, is returned by
	// StreamCompletion instead of starting a stream.
	StreamChunks []llm.Chunk
	StreamErr    error

	// CapabilitiesResult is returned by Capabilities.
	CapabilitiesResult llm.Capabilities

	// --- Call records (read after test) ---

	StreamCalls []llm.CompletionRequest
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, req)
	p.mu.Unlock()

	if p.StreamErr != nil {
		return nil, p.StreamErr
	}

	ch := make(chan llm.Chunk, len(p.StreamChunks))
	for _, c := range p.StreamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *Provider) Capabilities() llm.Capabilities {
	return p.CapabilitiesResult
}

var _ llm.Provider = (*Provider)(nil)
