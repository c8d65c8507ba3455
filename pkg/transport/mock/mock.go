// Package mock provides an in-memory test double for [transport.Room].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceagentcore/pkg/transport"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// Room is a mock implementation of [transport.Room]. Tests drive it by
// sending on EventsCh / TranscriptsCh directly.
type Room struct {
	mu sync.Mutex

	RoomName      string
	EventsCh      chan transport.ParticipantEvent
	TranscriptsCh chan string

	PublishErr error
	SpeakErr   error
	CloseErr   error

	PublishCalls []types.TranscriptEvent
	SpeakCalls   []string
	Closed       bool
}

// New creates a Room with open event/transcript channels of the given
// buffer size.
func New(name string, bufSize int) *Room {
	return &Room{
		RoomName:     name,
		EventsCh:     make(chan transport.ParticipantEvent, bufSize),
		TranscriptsCh: make(chan string, bufSize),
	}
}

func (r *Room) Name() string { return r.RoomName }

func (r *Room) Participants() []string { return nil }

func (r *Room) Events() <-chan transport.ParticipantEvent { return r.EventsCh }

func (r *Room) Transcripts() <-chan string { return r.TranscriptsCh }

func (r *Room) PublishTranscript(ctx context.Context, event types.TranscriptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PublishCalls = append(r.PublishCalls, event)
	return r.PublishErr
}

func (r *Room) Speak(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SpeakCalls = append(r.SpeakCalls, text)
	return r.SpeakErr
}

func (r *Room) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	close(r.EventsCh)
	close(r.TranscriptsCh)
	return r.CloseErr
}

var _ transport.Room = (*Room)(nil)
