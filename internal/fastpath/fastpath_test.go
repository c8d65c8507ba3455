package fastpath

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voiceagentcore/pkg/llm"
	"github.com/MrWong99/voiceagentcore/pkg/llm/mock"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

func TestGenerate_AssemblesChunks(t *testing.T) {
	provider := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "The weather "},
			{Text: "today is sunny."},
			{FinishReason: "stop"},
		},
	}
	g := New(provider)

	got, err := g.Generate(context.Background(), "a helpful agent", nil, "what's the weather?")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "The weather today is sunny."
	if got != want {
		t.Fatalf("Generate() = %q, want %q", got, want)
	}

	if len(provider.StreamCalls) != 1 {
		t.Fatalf("StreamCalls = %d, want 1", len(provider.StreamCalls))
	}
	call := provider.StreamCalls[0]
	if call.SystemPrompt != "a helpful agent" {
		t.Errorf("SystemPrompt = %q, want %q", call.SystemPrompt, "a helpful agent")
	}
	if call.UserText != "what's the weather?" {
		t.Errorf("UserText = %q", call.UserText)
	}
}

func TestGenerate_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("provider unreachable")
	provider := &mock.Provider{StreamErr: wantErr}
	g := New(provider)

	_, err := g.Generate(context.Background(), "", nil, "hi")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Generate() error = %v, want wrapping %v", err, wantErr)
	}
}

func TestGenerate_StreamErrorChunkFails(t *testing.T) {
	provider := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "partial"},
			{FinishReason: "error", Text: "upstream timeout"},
		},
	}
	g := New(provider)

	_, err := g.Generate(context.Background(), "", nil, "hi")
	if err == nil {
		t.Fatal("Generate() error = nil, want non-nil")
	}
}

func TestGenerate_CarriesHistory(t *testing.T) {
	provider := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "ok"}}}
	g := New(provider)

	history := []types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello"},
	}
	if _, err := g.Generate(context.Background(), "", history, "bye"); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(provider.StreamCalls[0].History) != 2 {
		t.Fatalf("History len = %d, want 2", len(provider.StreamCalls[0].History))
	}
}
