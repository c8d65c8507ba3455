// Package transport defines the collaborator boundary the core consumes
// for room membership, finalized transcripts, and spoken output. Concrete
// WebRTC/audio transports are out of scope; this package only declares
// the contract a transport implementation must satisfy.
package transport

import (
	"context"

	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// ParticipantEvent is a join/leave notification from a Room.
type ParticipantEvent struct {
	Identity string
	Joined   bool
	// IsAgent distinguishes a non-local agent identity (counted toward the
	// "more than one agent in room" conflict check, spec §4.2) from a
	// human participant.
	IsAgent bool
}

// Room is one joined room: a source of participant events and finalized
// user transcripts, and a sink for transcript publication and spoken
// output.
type Room interface {
	// Name returns the room's identifier.
	Name() string

	// Participants returns the identities currently present.
	Participants() []string

	// Events returns a channel of participant join/leave notifications.
	// The channel is closed when the room connection ends.
	Events() <-chan ParticipantEvent

	// Transcripts returns a channel of finalized user utterances. The
	// channel is closed when the room connection ends.
	Transcripts() <-chan string

	Connection
}

// Connection is the publication half of the transport boundary: emitting
// structured transcript events and speaking assistant text back into the
// room.
type Connection interface {
	// PublishTranscript emits a structured transcript event (user,
	// assistant, or system) to the room's transcript channel.
	PublishTranscript(ctx context.Context, event types.TranscriptEvent) error

	// Speak sends assistant text to the room's TTS sink. The collaborator
	// is responsible for synthesis; the core only ever produces text.
	Speak(ctx context.Context, text string) error

	// Close releases the room connection.
	Close(ctx context.Context) error
}
