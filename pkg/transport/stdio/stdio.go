// Package stdio provides a minimal [transport.Room] implementation backed
// by the process's standard input and output. It stands in for a real
// WebRTC transport so cmd/voiceagentcore can exercise the orchestration
// core end to end without one: every line typed on stdin becomes a
// finalized user transcript, and every assistant reply is printed to
// stdout.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MrWong99/voiceagentcore/pkg/transport"
	"github.com/MrWong99/voiceagentcore/pkg/types"
)

// localParticipant is the identity reported for the one human participant
// a stdio room ever has.
const localParticipant = "local-user"

// Room reads finalized transcripts from an io.Reader (normally os.Stdin)
// and writes transcript/spoken-text output to an io.Writer (normally
// os.Stdout). One Room models one single-participant room.
type Room struct {
	name string
	out  io.Writer

	mu     sync.Mutex
	closed bool

	events      chan transport.ParticipantEvent
	transcripts chan string
	done        chan struct{}
}

// New starts scanning in for lines and returns a ready-to-use Room. Call
// Close to stop the scan goroutine and release the room.
func New(name string, in io.Reader, out io.Writer) *Room {
	r := &Room{
		name:        name,
		out:         out,
		events:      make(chan transport.ParticipantEvent, 1),
		transcripts: make(chan string, 16),
		done:        make(chan struct{}),
	}
	r.events <- transport.ParticipantEvent{Identity: localParticipant, Joined: true}
	go r.scan(in)
	return r
}

func (r *Room) scan(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case r.transcripts <- line:
		case <-r.done:
			return
		}
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if !closed {
		r.emitLeave()
	}
}

func (r *Room) emitLeave() {
	select {
	case r.events <- transport.ParticipantEvent{Identity: localParticipant, Joined: false}:
	case <-r.done:
	}
}

func (r *Room) Name() string { return r.name }

func (r *Room) Participants() []string { return []string{localParticipant} }

func (r *Room) Events() <-chan transport.ParticipantEvent { return r.events }

func (r *Room) Transcripts() <-chan string { return r.transcripts }

func (r *Room) PublishTranscript(ctx context.Context, event types.TranscriptEvent) error {
	_, err := fmt.Fprintf(r.out, "[%s] %s\n", event.Role, event.Text)
	return err
}

func (r *Room) Speak(ctx context.Context, text string) error {
	_, err := fmt.Fprintf(r.out, "%s\n", text)
	return err
}

func (r *Room) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)
	close(r.events)
	close(r.transcripts)
	return nil
}

var _ transport.Room = (*Room)(nil)

// NewStdRoom is a convenience constructor using os.Stdin and os.Stdout.
func NewStdRoom(name string) *Room {
	return New(name, os.Stdin, os.Stdout)
}
