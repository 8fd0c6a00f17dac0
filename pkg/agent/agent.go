// Package agent defines the duplex channel contract to the remote
// conversational agent.
//
// The agent is an opaque collaborator: it accepts a one-time session
// configuration (voice identity plus persona instructions) and a stream of
// encoded pcm16 frames, and emits speech chunks, interruption signals, and
// lifecycle events in return. The central abstraction is [Session]: a
// bidirectional channel whose inbound side is a single typed event stream, so
// the call state machine consumes every remote occurrence as a message
// through one dispatch point.
//
// All implementations must be safe for concurrent use.
package agent

import (
	"context"
	"errors"

	"github.com/voicewire/voicewire/pkg/audio"
)

// ErrSessionClosed reports a send on a session that has already been closed.
var ErrSessionClosed = errors.New("agent: session closed")

// ErrTransport wraps channel open/send/receive failures. Retryable by
// restarting the session.
var ErrTransport = errors.New("agent: transport error")

// SessionConfig is the one-time configuration sent when the channel opens.
type SessionConfig struct {
	// Voice selects the voice identity the agent speaks with.
	Voice string

	// Instructions is the persona prompt the agent should adopt for the call.
	Instructions string
}

// EventType classifies inbound events emitted by a [Session].
type EventType int

const (
	// EventSpeech carries one decoded chunk of synthesised agent speech.
	EventSpeech EventType = iota

	// EventInterrupted signals that the user began speaking while the agent's
	// audio was still playing; queued playback must be cancelled immediately.
	EventInterrupted

	// EventClosed signals a clean remote hang-up.
	EventClosed

	// EventError signals a fatal channel failure; Err carries the cause.
	EventError
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventSpeech:
		return "SPEECH"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventClosed:
		return "CLOSED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound occurrence on the channel.
type Event struct {
	// Type classifies the event.
	Type EventType

	// PCM holds the decoded speech samples for [EventSpeech].
	PCM []int16

	// SampleRate is the rate of PCM (24000 per the agent contract).
	SampleRate int

	// Err carries the failure for [EventError].
	Err error
}

// Session is an open duplex channel to the agent.
//
// The session is the hot path of the call — SendFrame must return quickly and
// consumers must drain Events promptly to keep the receive loop from
// stalling. Callers must call Close when the session is no longer needed.
type Session interface {
	// SendFrame delivers one encoded capture frame to the agent.
	// Fire-and-forget: there is no acknowledgement or retry.
	// Returns [ErrSessionClosed] after Close.
	SendFrame(pkt audio.EncodedPacket) error

	// Events returns the inbound event stream. The channel is closed when the
	// session ends, after a final [EventClosed] or [EventError] where one
	// applies. Malformed inbound payloads are dropped, never surfaced here.
	Events() <-chan Event

	// Close terminates the session and closes the Events channel.
	// Idempotent.
	Close() error
}

// Dialer opens sessions to an agent backend.
//
// Implementations must be safe for concurrent use.
type Dialer interface {
	// Dial opens a new session configured with cfg. The supplied ctx bounds
	// the connection attempt only; the session then lives until Close.
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}
