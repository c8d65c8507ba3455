// Package fastpath implements the Fast-Path Generator (C2): a direct
// streaming call to the LLM provider with the Memory Loader's composed
// persona/memory context injected as the system prompt, assembled into a
// complete assistant reply.
package fastpath

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voiceagentcore/pkg/llm"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Generator runs C2 against a single [llm.Provider].
type Generator struct {
	provider llm.Provider
}

// New creates a Generator backed by provider.
func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate issues a streaming completion call and assembles the streamed
// chunks into a complete assistant text string. Streaming is an
// implementation concern only — callers always see the full text.
//
// history is the last historyWindow turns, user/assistant interleaved, from
// SessionState.history; it carries no tool-call content, since the fast
// path never performs tool/function execution.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, history []types.Message, userText string) (string, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		History:      history,
		UserText:     userText,
	}

	chunks, err := g.provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("fastpath: stream completion: %w", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			return "", fmt.Errorf("fastpath: provider stream error: %s", chunk.Text)
		}
		sb.WriteString(chunk.Text)
		if ctx.Err() != nil {
			return "", fmt.Errorf("fastpath: %w", ctx.Err())
		}
	}

	return sb.String(), nil
}
