// Package llm defines the Fast-Path Generator's LLM boundary (C2): a single
// streaming chat-completion call, assembled into a complete text reply by
// the caller. No tool/function calling crosses this boundary — the fast
// path is tool-blind per spec §9.
package llm

import (
	"context"

	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// CompletionRequest is the input to [Provider.StreamCompletion].
//
// SystemPrompt is the Memory Loader's composed prompt. History is the
// last historyWindow turns, user/assistant interleaved. UserText is the
// new utterance.
type CompletionRequest struct {
	SystemPrompt string
	History      []types.Message
	UserText     string
}

// Chunk is one fragment of a streamed completion. FinishReason is set only
// on the final chunk of a stream.
type Chunk struct {
	Text         string
	FinishReason string
}

// Capabilities describes what a model backing a Provider supports. The
// fast path currently never branches on these fields, but they give a
// typed place for a future tool-calling extension to check
// SupportsToolCalling before selecting the fast path.
type Capabilities struct {
	SupportsToolCalling bool
	SupportsStreaming   bool
	ContextWindow       int
	MaxOutputTokens     int
}

// Provider is the Fast-Path Generator's LLM boundary. Implementations
// translate backend errors into the reliability package's dependency
// error taxonomy so the Retry/Timeout Executor and fast-path Circuit
// Breaker can classify them uniformly.
type Provider interface {
	// StreamCompletion issues a streaming chat-completion call and returns
	// a channel of chunks. The channel is closed when the stream ends,
	// whether by completion, error, or ctx cancellation; a chunk carrying
	// a non-empty FinishReason of "error" signals a backend failure.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Capabilities reports what the backing model supports.
	Capabilities() Capabilities
}
