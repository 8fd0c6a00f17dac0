// Package realtime implements the agent channel contract over a WebSocket.
//
// The wire protocol is JSON text frames. On connect the client sends a
// session.start message carrying the voice identity, persona instructions,
// and the fixed outbound audio format (pcm16, 16 kHz, mono). Capture frames
// travel as input_audio.append messages with base64 payloads. Inbound events
// are speech_chunk (base64 pcm16 at 24 kHz), interrupted, closed, and error.
// Malformed inbound payloads are logged and dropped — a single corrupt frame
// must not end an otherwise-healthy call.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/audio"
)

// Compile-time assertions that Dialer and session satisfy the agent interfaces.
var _ agent.Dialer = (*Dialer)(nil)
var _ agent.Session = (*session)(nil)

// defaultEventBuf is the buffer depth of the inbound event channel.
const defaultEventBuf = 64

// ── Options ───────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithEventBuffer sets the buffer capacity of the session event channel.
// Larger buffers absorb bursts of speech chunks when the consumer briefly
// lags. The default is 64.
func WithEventBuffer(n int) Option {
	return func(d *Dialer) {
		if n > 0 {
			d.eventBuf = n
		}
	}
}

// ── Dialer ────────────────────────────────────────────────────────────────────

// Dialer implements [agent.Dialer] against a WebSocket agent endpoint.
type Dialer struct {
	url      string
	apiKey   string
	eventBuf int
}

// New creates a Dialer for the given WebSocket URL and API key.
func New(url, apiKey string, opts ...Option) *Dialer {
	d := &Dialer{
		url:      url,
		apiKey:   apiKey,
		eventBuf: defaultEventBuf,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial implements [agent.Dialer]. It opens the WebSocket, sends the
// session.start configuration, and starts the receive loop.
func (d *Dialer) Dial(ctx context.Context, cfg agent.SessionConfig) (agent.Session, error) {
	var header http.Header
	if d.apiKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + d.apiKey}}
	}

	conn, _, err := websocket.Dial(ctx, d.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", agentErr(err))
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan agent.Event, d.eventBuf),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionStart(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session start failed")
		return nil, fmt.Errorf("realtime: session start: %w", agentErr(err))
	}

	go sess.receiveLoop()

	return sess, nil
}

// agentErr wraps err so callers can match it with [agent.ErrTransport].
func agentErr(err error) error {
	return fmt.Errorf("%w: %w", agent.ErrTransport, err)
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionStartMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice        string      `json:"voice,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
	InputFormat  audioFormat `json:"input_audio_format"`
}

type audioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded pcm16
	MIME  string `json:"mime,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// speech_chunk
	Audio      string `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

type serverErrorDetail struct {
	Message string `json:"message"`
}

// ── session ───────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan agent.Event

	mu     sync.Mutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionStart sends the one-time session configuration. The outbound
// audio format is fixed by the wire contract.
func (s *session) sendSessionStart(cfg agent.SessionConfig) error {
	return s.writeJSON(sessionStartMessage{
		Type: "session.start",
		Session: sessionParams{
			Voice:        cfg.Voice,
			Instructions: cfg.Instructions,
			InputFormat: audioFormat{
				Encoding:   "pcm16",
				SampleRate: audio.WireSampleRate,
				Channels:   1,
			},
		},
	})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them. It owns
// the events channel: it closes it when it exits.
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.emit(agent.Event{Type: agent.EventError, Err: agentErr(err)})
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("realtime: dropping malformed event", "err", err)
			continue
		}

		if done := s.handleServerEvent(&evt); done {
			return
		}
	}
}

// handleServerEvent dispatches one decoded event. It returns true when the
// receive loop should exit (terminal event received).
func (s *session) handleServerEvent(evt *serverEvent) bool {
	switch evt.Type {
	case "speech_chunk":
		if evt.Audio == "" {
			return false
		}
		pcm, err := audio.DecodePacket(evt.Audio)
		if err != nil || len(pcm) == 0 {
			slog.Debug("realtime: dropping undecodable speech chunk", "err", err)
			return false
		}
		rate := evt.SampleRate
		if rate <= 0 {
			rate = audio.AgentSampleRate
		}
		s.emit(agent.Event{Type: agent.EventSpeech, PCM: pcm, SampleRate: rate})

	case "interrupted":
		s.emit(agent.Event{Type: agent.EventInterrupted})

	case "closed":
		s.emit(agent.Event{Type: agent.EventClosed})
		return true

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(agent.Event{Type: agent.EventError, Err: fmt.Errorf("%w: remote: %s", agent.ErrTransport, msg)})
		return true

	default:
		slog.Debug("realtime: ignoring unknown event type", "type", evt.Type)
	}
	return false
}

// emit delivers ev unless the session is shutting down.
func (s *session) emit(ev agent.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// ── Session methods ───────────────────────────────────────────────────────────

// SendFrame delivers one encoded capture frame as an input_audio.append
// message.
func (s *session) SendFrame(pkt audio.EncodedPacket) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return agent.ErrSessionClosed
	}
	s.mu.Unlock()

	if err := s.writeJSON(appendAudioMessage{
		Type:  "input_audio.append",
		Audio: pkt.Data,
		MIME:  pkt.MIME,
	}); err != nil {
		return fmt.Errorf("realtime: send frame: %w", agentErr(err))
	}
	return nil
}

// Events returns the inbound event stream.
func (s *session) Events() <-chan agent.Event { return s.events }

// Close terminates the session and releases the connection. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
