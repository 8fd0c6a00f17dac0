// Package mock provides in-memory implementations of the audio device
// contracts for use in unit tests.
//
// All mocks are safe for concurrent use. The [OutputDevice] clock is advanced
// manually with [OutputDevice.Advance], which fires completion callbacks for
// any playback whose scheduled end has passed — tests control time instead of
// sleeping. Mocks record every call so tests can assert on counts and
// arguments.
//
// Typical usage:
//
//	in := mock.NewInputDevice(16000)
//	out := mock.NewOutputDevice(24000)
//	provider := &mock.DeviceProvider{Input: in, Output: out}
//	in.PushFrame(samples)      // capture delivers one block
//	out.Advance(time.Second)   // playback clock moves forward
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

// ─── DeviceProvider ───────────────────────────────────────────────────────────

// DeviceProvider is a mock [audio.DeviceProvider]. Set the exported fields
// before use; inspect the call counters after.
type DeviceProvider struct {
	mu sync.Mutex

	// Input is returned by RequestInput when RequestInputErr is nil.
	Input *InputDevice

	// Output is returned by OpenOutput when OpenOutputErr is nil.
	Output *OutputDevice

	// RequestInputErr is returned by RequestInput.
	RequestInputErr error

	// OpenOutputErr is returned by OpenOutput.
	OpenOutputErr error

	// CallCountRequestInput records how many times RequestInput was called.
	CallCountRequestInput int

	// OpenOutputRates records the sampleRate argument of each OpenOutput call.
	OpenOutputRates []int
}

// RequestInput implements [audio.DeviceProvider].
func (p *DeviceProvider) RequestInput(_ context.Context) (audio.InputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountRequestInput++
	if p.RequestInputErr != nil {
		return nil, p.RequestInputErr
	}
	return p.Input, nil
}

// OpenOutput implements [audio.DeviceProvider].
func (p *DeviceProvider) OpenOutput(sampleRate int) (audio.OutputDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenOutputRates = append(p.OpenOutputRates, sampleRate)
	if p.OpenOutputErr != nil {
		return nil, p.OpenOutputErr
	}
	return p.Output, nil
}

// ─── InputDevice ──────────────────────────────────────────────────────────────

// InputDevice is a mock [audio.InputDevice] fed by [InputDevice.PushFrame].
type InputDevice struct {
	rate   int
	frames chan []float32

	mu        sync.Mutex
	closed    bool
	readErr   error
	callReads int
}

// NewInputDevice creates an input device reporting the given sample rate.
func NewInputDevice(sampleRate int) *InputDevice {
	return &InputDevice{
		rate:   sampleRate,
		frames: make(chan []float32, 64),
	}
}

// PushFrame queues one capture block for delivery to the next ReadFrame call.
func (d *InputDevice) PushFrame(samples []float32) {
	d.frames <- samples
}

// FailNext makes the next ReadFrame call return err.
func (d *InputDevice) FailNext(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
	// Unblock a reader waiting on the frame channel.
	select {
	case d.frames <- nil:
	default:
	}
}

// SampleRate implements [audio.InputDevice].
func (d *InputDevice) SampleRate() int { return d.rate }

// ReadFrame implements [audio.InputDevice]. It blocks until a pushed frame is
// available, an injected error fires, or the device is closed.
func (d *InputDevice) ReadFrame(buf []float32) (int, error) {
	d.mu.Lock()
	d.callReads++
	if d.closed {
		d.mu.Unlock()
		return 0, fmt.Errorf("mock input: read after close: %w", audio.ErrDeviceUnavailable)
	}
	if err := d.readErr; err != nil {
		d.readErr = nil
		d.mu.Unlock()
		return 0, err
	}
	d.mu.Unlock()

	frame, ok := <-d.frames
	if !ok {
		return 0, fmt.Errorf("mock input: device closed: %w", audio.ErrDeviceUnavailable)
	}

	if frame == nil {
		// Sentinel pushed by FailNext to unblock a waiting reader.
		d.mu.Lock()
		err := d.readErr
		d.readErr = nil
		d.mu.Unlock()
		if err == nil {
			err = audio.ErrDeviceUnavailable
		}
		return 0, err
	}

	n := copy(buf, frame)
	return n, nil
}

// ReadCount reports how many times ReadFrame was called.
func (d *InputDevice) ReadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callReads
}

// Closed reports whether Close has been called.
func (d *InputDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close implements [audio.InputDevice]. Idempotent.
func (d *InputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.frames)
	return nil
}

// ─── OutputDevice ─────────────────────────────────────────────────────────────

// ScheduledPlay records one PlayAt invocation.
type ScheduledPlay struct {
	// PCM is the chunk passed to PlayAt.
	PCM []int16

	// Start is the requested device-clock start time.
	Start time.Duration

	// End is Start plus the chunk duration at the device rate.
	End time.Duration

	stopped bool
	done    bool
	onDone  func()
}

// Handle is the [audio.PlaybackHandle] returned by the mock output device.
type Handle struct {
	dev *OutputDevice
	idx int
}

// Stop implements [audio.PlaybackHandle].
func (h *Handle) Stop() {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	h.dev.plays[h.idx].stopped = true
}

// OutputDevice is a mock [audio.OutputDevice] with a manually advanced clock.
type OutputDevice struct {
	rate int

	mu     sync.Mutex
	now    time.Duration
	plays  []ScheduledPlay
	closed bool

	// PlayErr, when non-nil, is returned by PlayAt.
	PlayErr error
}

// NewOutputDevice creates an output device at the given sample rate with its
// clock at zero.
func NewOutputDevice(sampleRate int) *OutputDevice {
	return &OutputDevice{rate: sampleRate}
}

// SampleRate implements [audio.OutputDevice].
func (d *OutputDevice) SampleRate() int { return d.rate }

// Now implements [audio.OutputDevice].
func (d *OutputDevice) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// PlayAt implements [audio.OutputDevice]. The chunk is recorded; its
// completion callback fires when [OutputDevice.Advance] moves the clock past
// the chunk's end.
func (d *OutputDevice) PlayAt(pcm []int16, start time.Duration, onDone func()) (audio.PlaybackHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("mock output: play after close: %w", audio.ErrDeviceUnavailable)
	}
	if d.PlayErr != nil {
		return nil, d.PlayErr
	}
	dur := time.Duration(len(pcm)) * time.Second / time.Duration(d.rate)
	d.plays = append(d.plays, ScheduledPlay{
		PCM:    pcm,
		Start:  start,
		End:    start + dur,
		onDone: onDone,
	})
	return &Handle{dev: d, idx: len(d.plays) - 1}, nil
}

// Advance moves the device clock forward by dt and fires the completion
// callback of every unstopped chunk whose end time has passed. Callbacks run
// without the device lock held, in schedule order.
func (d *OutputDevice) Advance(dt time.Duration) {
	d.mu.Lock()
	d.now += dt
	var fire []func()
	for i := range d.plays {
		p := &d.plays[i]
		if !p.done && !p.stopped && p.End <= d.now {
			p.done = true
			if p.onDone != nil {
				fire = append(fire, p.onDone)
			}
		}
	}
	d.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Plays returns a snapshot of all recorded PlayAt calls.
func (d *OutputDevice) Plays() []ScheduledPlay {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ScheduledPlay, len(d.plays))
	copy(out, d.plays)
	return out
}

// Stopped reports whether the i-th scheduled chunk was cancelled.
func (d *OutputDevice) Stopped(i int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plays[i].stopped
}

// Closed reports whether Close has been called.
func (d *OutputDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close implements [audio.OutputDevice]. Idempotent.
func (d *OutputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
