// Package call implements the voice-call session: the lifecycle state
// machine, the outward-facing controller that UI surfaces use to start, end,
// and mute a call, and the waveform feed.
//
// The controller mediates between the capture pipeline, the playback
// scheduler, and the remote agent channel. Its three asynchronous event
// sources — the capture frame callback, the agent receive loop, and the
// duration/visualizer ticker — all funnel into one mutex-protected state
// object, because lifecycle transitions are not commutative (a flush racing a
// close must not reorder). A generation counter lets EndCall interrupt a
// StartCall that is still blocked in permission acquisition or dialing.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voicewire/voicewire/internal/call/capture"
	"github.com/voicewire/voicewire/internal/call/playback"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/pkg/agent"
	"github.com/voicewire/voicewire/pkg/audio"
)

// ErrCallEnded reports that the user hung up while StartCall was still
// acquiring resources. Everything acquired so far has been released.
var ErrCallEnded = errors.New("call: ended during setup")

// vizTickInterval is the idle decay cadence of the waveform feed.
const vizTickInterval = 100 * time.Millisecond

// Persona is the configured voice and identity the remote agent adopts for
// one call.
type Persona struct {
	// Voice selects the agent's voice identity.
	Voice string

	// Instructions is the persona prompt sent once at session open.
	Instructions string
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithFrameSize sets the capture block size in samples. The default is
// [capture.DefaultFrameSize].
func WithFrameSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.frameSize = n
		}
	}
}

// WithMetrics overrides the metrics instance. Tests use this with a custom
// MeterProvider to avoid cross-test pollution; the default is
// [observe.Default].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller is the outward-facing call object. One Controller manages at
// most one call at a time and is reusable across consecutive calls.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	devices   audio.DeviceProvider
	dialer    agent.Dialer
	metrics   *observe.Metrics
	frameSize int

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped on every teardown; stale generations abandon their work
	errMsg    string
	callID    string
	startedAt time.Time
	capture   *capture.Pipeline
	wave      *waveform
	done      chan struct{}
	closers   []func() error
	onState   func(State)

	duration atomic.Int64
	speaking atomic.Bool
}

// New creates a Controller over the given device provider and agent dialer.
func New(devices audio.DeviceProvider, dialer agent.Dialer, opts ...Option) *Controller {
	c := &Controller{
		devices:   devices,
		dialer:    dialer,
		frameSize: capture.DefaultFrameSize,
		state:     StateIdle,
		wave:      newWaveform(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.Default()
	}
	return c
}

// ─── Observers ────────────────────────────────────────────────────────────────

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the human-readable diagnostic captured by the most
// recent transition into [StateError], or "" if none.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// CallID returns the ID of the current (or most recent) call.
func (c *Controller) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// DurationSeconds returns the elapsed call time in whole seconds. It ticks
// at 1 Hz while the call is Active and resets on the next StartCall.
func (c *Controller) DurationSeconds() int64 {
	return c.duration.Load()
}

// IsRemoteSpeaking reports whether agent speech is currently queued or
// playing.
func (c *Controller) IsRemoteSpeaking() bool {
	return c.speaking.Load()
}

// Waveform returns a copy of the current amplitude sequence
// ([WaveformLen] values in [0, 100]).
func (c *Controller) Waveform() []int {
	c.mu.Lock()
	w := c.wave
	c.mu.Unlock()
	return w.snapshot()
}

// Muted reports the current mute flag. Always false when no call is active.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	pipe := c.capture
	c.mu.Unlock()
	return pipe != nil && pipe.Muted()
}

// OnStateChange registers fn as the callback invoked after every state
// transition. Only one callback may be registered at a time; subsequent
// calls replace the previous registration. fn is invoked without the
// controller lock held and must not block.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// ToggleMute flips the mute flag and returns the new value. Takes effect on
// the next capture frame boundary. A no-op returning false when no call is
// active.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	pipe := c.capture
	c.mu.Unlock()
	if pipe == nil {
		return false
	}
	muted := !pipe.Muted()
	pipe.SetMuted(muted)
	return muted
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

// StartCall runs the call setup sequence: request the input device, open the
// output device, dial the agent channel, then go Active. It blocks until the
// call is Active or setup has failed. Allowed from Idle, Denied (user retry
// after refusal), and Error (retry after failure).
//
// The controller mutex is released around the two blocking steps (permission
// acquisition and dialing), so EndCall remains possible throughout; if it
// wins, StartCall releases whatever it had acquired and returns
// [ErrCallEnded].
func (c *Controller) StartCall(ctx context.Context, persona Persona) error {
	c.mu.Lock()
	if !c.state.startable() {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("call: cannot start from state %s", state)
	}
	gen := c.gen
	callID := uuid.NewString()
	c.callID = callID
	c.errMsg = ""
	notify := c.setStateLocked(StateRequestingPermission)
	c.mu.Unlock()
	notify()

	setupStart := time.Now()
	ctx, span := observe.StartSpan(ctx, "call.start")
	defer span.End()

	log := slog.With("call_id", callID)
	log.Info("call starting", "voice", persona.Voice)

	// ── Permission ────────────────────────────────────────────────────────────
	in, err := c.devices.RequestInput(ctx)
	if err != nil {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return ErrCallEnded
		}
		var to State
		if errors.Is(err, audio.ErrPermissionDenied) {
			to = StateDenied
			c.errMsg = ""
		} else {
			to = StateError
			c.errMsg = err.Error()
		}
		notify = c.setStateLocked(to)
		c.mu.Unlock()
		notify()
		log.Warn("input device request failed", "err", err)
		return fmt.Errorf("call: request input device: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = in.Close()
		return ErrCallEnded
	}
	notify = c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	// ── Devices + channel ─────────────────────────────────────────────────────
	out, err := c.devices.OpenOutput(audio.AgentSampleRate)
	if err != nil {
		_ = in.Close()
		return c.setupFailed(gen, log, fmt.Errorf("call: open output device: %w", err))
	}

	sess, err := c.dialer.Dial(ctx, agent.SessionConfig{
		Voice:        persona.Voice,
		Instructions: persona.Instructions,
	})
	if err != nil {
		_ = out.Close()
		_ = in.Close()
		return c.setupFailed(gen, log, fmt.Errorf("call: dial agent: %w", err))
	}

	// ── Go Active ─────────────────────────────────────────────────────────────
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = sess.Close()
		_ = out.Close()
		_ = in.Close()
		return ErrCallEnded
	}

	wave := newWaveform()
	sched := playback.New(out, playback.WithOnDrained(func() {
		c.speaking.Store(false)
	}))

	pipe, err := capture.Start(capture.Config{
		Device:    in,
		FrameSize: c.frameSize,
		OnFrame: func(pkt audio.EncodedPacket) {
			if sendErr := sess.SendFrame(pkt); sendErr != nil {
				if errors.Is(sendErr, agent.ErrSessionClosed) {
					return
				}
				// Off the capture goroutine: failure handling takes the lock.
				go c.failFromEvent(gen, "send", sendErr)
				return
			}
			c.metrics.FramesSent.Add(context.Background(), 1)
		},
		OnError: func(capErr error) {
			go c.failFromEvent(gen, "capture", capErr)
		},
	})
	if err != nil {
		c.mu.Unlock()
		_ = sched.Close()
		_ = sess.Close()
		_ = in.Close()
		return c.setupFailed(gen, log, fmt.Errorf("call: start capture: %w", err))
	}

	done := make(chan struct{})
	c.done = done
	c.capture = pipe
	c.wave = wave
	c.startedAt = time.Now()
	c.duration.Store(0)
	c.speaking.Store(false)

	// Acquisition order; teardown runs these in reverse.
	c.closers = []func() error{
		in.Close,
		out.Close,
		sess.Close,
		sched.Close,
		func() error {
			pipe.Stop()
			c.metrics.FramesMuted.Add(context.Background(), pipe.MutedFrames())
			return nil
		},
	}

	notify = c.setStateLocked(StateActive)
	c.mu.Unlock()
	notify()

	go c.eventLoop(gen, done, sess.Events(), sched, wave, log)
	go c.tickLoop(done, wave)

	c.metrics.ActiveCalls.Add(ctx, 1)
	c.metrics.CallSetupDuration.Record(ctx, time.Since(setupStart).Seconds())
	log.Info("call active", "setup", time.Since(setupStart))

	return nil
}

// EndCall hangs up. Allowed from any state: it tears down whatever resources
// are currently held, in reverse order of acquisition, and returns with
// device I/O stopped. From Idle it is a no-op.
func (c *Controller) EndCall() {
	c.mu.Lock()
	notify := c.teardownLocked(StateIdle, "")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// ─── Internals ────────────────────────────────────────────────────────────────

// setStateLocked transitions to next and returns the notification closure to
// run after the lock is released. Must be called with c.mu held.
func (c *Controller) setStateLocked(next State) (notify func()) {
	prev := c.state
	c.state = next
	fn := c.onState
	if fn == nil || prev == next {
		return func() {}
	}
	return func() { fn(next) }
}

// setupFailed transitions to Error (unless the call was ended or superseded
// meanwhile) and returns the error for StartCall to propagate.
func (c *Controller) setupFailed(gen uint64, log *slog.Logger, err error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrCallEnded
	}
	c.errMsg = err.Error()
	notify := c.setStateLocked(StateError)
	c.mu.Unlock()
	notify()

	c.metrics.TransportErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stage", "setup")))
	log.Error("call setup failed", "err", err)
	return err
}

// failFromEvent handles a fatal mid-call failure reported by one of the
// asynchronous event sources. Stale generations (the call already ended) are
// ignored.
func (c *Controller) failFromEvent(gen uint64, stage string, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	callID := c.callID
	notify := c.teardownLocked(StateError, err.Error())
	c.mu.Unlock()
	if notify != nil {
		notify()
	}

	c.metrics.TransportErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stage", stage)))
	slog.Error("call failed", "call_id", callID, "stage", stage, "err", err)
}

// remoteClosed handles a clean remote hang-up.
func (c *Controller) remoteClosed(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	callID := c.callID
	notify := c.teardownLocked(StateIdle, "")
	c.mu.Unlock()
	if notify != nil {
		notify()
	}
	slog.Info("call ended by remote", "call_id", callID)
}

// teardownLocked releases the current call and transitions to `to`. It
// returns a closure that runs the closers (in reverse acquisition order),
// records call metrics, and fires the state callback; the caller invokes it
// after releasing c.mu. Returns nil when there is nothing to do (already
// Idle, no resources). Must be called with c.mu held.
//
// Every terminal transition funnels through here so resource release happens
// exactly once regardless of which error path was taken.
func (c *Controller) teardownLocked(to State, errMsg string) (notify func()) {
	if c.state == to && c.closers == nil {
		return nil
	}

	c.gen++
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	closers := c.closers
	c.closers = nil
	c.capture = nil

	wasActive := !c.startedAt.IsZero()
	started := c.startedAt
	c.startedAt = time.Time{}
	c.speaking.Store(false)
	c.errMsg = errMsg

	stateNotify := c.setStateLocked(to)

	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("call: closer error", "index", i, "err", err)
			}
		}
		if wasActive {
			c.metrics.CallDuration.Record(context.Background(), time.Since(started).Seconds())
			c.metrics.ActiveCalls.Add(context.Background(), -1)
		}
		stateNotify()
	}
}

// eventLoop consumes the agent's inbound event stream and feeds each
// occurrence into the state machine. It exits when the call is torn down or
// the stream ends.
func (c *Controller) eventLoop(gen uint64, done <-chan struct{}, events <-chan agent.Event, sched *playback.Scheduler, wave *waveform, log *slog.Logger) {
	for {
		select {
		case <-done:
			go audio.Drain(events)
			return

		case ev, ok := <-events:
			if !ok {
				// Stream ended without a terminal event: if the call is still
				// live this is a transport failure, otherwise our own Close.
				c.failFromEvent(gen, "receive", fmt.Errorf("call: event stream ended: %w", agent.ErrTransport))
				return
			}

			switch ev.Type {
			case agent.EventSpeech:
				c.speaking.Store(true)
				wave.excite()
				c.metrics.ChunksScheduled.Add(context.Background(), 1)
				if err := sched.Enqueue(playback.Chunk{PCM: ev.PCM, SampleRate: ev.SampleRate}); err != nil {
					log.Warn("enqueue speech chunk", "err", err)
				}

			case agent.EventInterrupted:
				// Barge-in: stop the half-spoken utterance mid-syllable.
				// State stays Active.
				sched.Flush()
				c.speaking.Store(false)
				c.metrics.PlaybackFlushes.Add(context.Background(), 1)
				log.Debug("barge-in: playback flushed")

			case agent.EventClosed:
				c.remoteClosed(gen)
				return

			case agent.EventError:
				c.failFromEvent(gen, "transport", ev.Err)
				return
			}
		}
	}
}

// tickLoop multiplexes the 1 Hz duration counter and the waveform decay tick
// until the call is torn down.
func (c *Controller) tickLoop(done <-chan struct{}, wave *waveform) {
	durTicker := time.NewTicker(time.Second)
	defer durTicker.Stop()
	vizTicker := time.NewTicker(vizTickInterval)
	defer vizTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-durTicker.C:
			c.duration.Add(1)
		case <-vizTicker.C:
			if !c.speaking.Load() {
				wave.decay()
			}
		}
	}
}
