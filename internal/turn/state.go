package turn

import (
	"sync"

	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Turn is one user utterance and its reply, as produced by the
// Orchestrator and consumed by the Background Sync Worker.
type Turn struct {
	UserText      string
	AssistantText string
	Path          Path
	Validated     bool
}

// Path identifies which generator produced a Turn's AssistantText.
type Path string

const (
	PathFast     Path = "fast"
	PathMemory   Path = "memory"
	PathFallback Path = "fallback"
)

// State is the per-session conversational state the Turn Orchestrator
// mutates: the bounded recent-history window and the turn counter. It is
// owned by the Session Controller (C10), mutated by the Orchestrator's
// serialized handleUtterance loop and cleared by the Session Controller
// via Reset; every access goes through the State's own mutex.
type State struct {
	mu sync.Mutex

	history     []types.Message
	historyCap  int
	turnCounter int
}

// NewState creates a State whose recentHistory window holds at most
// historyWindow turns (2*historyWindow messages, user+assistant
// interleaved).
func NewState(historyWindow int) *State {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	return &State{historyCap: historyWindow * 2}
}

// Reset clears history and the turn counter, per the reset-on-reconnect
// contract in spec §4.2. Durable memory in the memory service is
// untouched — this concerns only in-process state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.turnCounter = 0
}

// History returns a copy of the current recent-history window.
func (s *State) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// TurnCounter returns the current turn count.
func (s *State) TurnCounter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnCounter
}

// append records a completed turn's (user, assistant) pair into history,
// trimming to historyCap, and increments the turn counter. Returns the
// new turn counter.
func (s *State) append(userText, assistantText string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history,
		types.Message{Role: types.RoleUser, Content: userText},
		types.Message{Role: types.RoleAssistant, Content: assistantText},
	)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = s.history[over:]
	}
	s.turnCounter++
	return s.turnCounter
}
