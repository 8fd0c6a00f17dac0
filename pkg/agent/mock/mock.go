// Package mock provides in-memory implementations of the [agent.Dialer] and
// [agent.Session] interfaces for use in unit tests.
//
// The mock session records every SendFrame call and exposes an Emit helper so
// tests can script inbound events (speech chunks, interruption, close, error)
// without a live channel.
package mock

import (
	"context"
	"sync"

	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/audio"
)

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [agent.Session].
type Session struct {
	mu sync.Mutex

	// SendFrameErr is returned by SendFrame.
	SendFrameErr error

	// SentFrames records every packet passed to SendFrame.
	SentFrames []audio.EncodedPacket

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan agent.Event
	closed bool
}

// NewSession creates a mock session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan agent.Event, 64)}
}

// SendFrame implements [agent.Session]. Records the packet.
func (s *Session) SendFrame(pkt audio.EncodedPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return agent.ErrSessionClosed
	}
	if s.SendFrameErr != nil {
		return s.SendFrameErr
	}
	s.SentFrames = append(s.SentFrames, pkt)
	return nil
}

// Events implements [agent.Session].
func (s *Session) Events() <-chan agent.Event { return s.events }

// Close implements [agent.Session]. Closes the event channel. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Emit delivers ev on the session's event channel. It is a no-op after Close.
func (s *Session) Emit(ev agent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Frames returns a snapshot of all recorded SendFrame packets.
func (s *Session) Frames() []audio.EncodedPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.EncodedPacket, len(s.SentFrames))
	copy(out, s.SentFrames)
	return out
}

// ─── Dialer ───────────────────────────────────────────────────────────────────

// DialCall records the arguments of a single [Dialer.Dial] invocation.
type DialCall struct {
	// Config is the session configuration passed to Dial.
	Config agent.SessionConfig
}

// Dialer is a mock implementation of [agent.Dialer].
type Dialer struct {
	mu sync.Mutex

	// Session is returned by Dial when DialErr is nil.
	Session *Session

	// DialErr is returned by Dial.
	DialErr error

	// DialCalls records all Dial invocations.
	DialCalls []DialCall
}

// Dial implements [agent.Dialer]. Records the call.
func (d *Dialer) Dial(_ context.Context, cfg agent.SessionConfig) (agent.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls = append(d.DialCalls, DialCall{Config: cfg})
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Session, nil
}
