// Package stream adapts plain io.Reader/io.Writer byte streams to the audio
// device contracts, paced against the wall clock.
//
// It exists so a full call can run end-to-end without OS audio bindings: feed
// raw little-endian pcm16 into the input reader (a file, a pipe, another
// process) and collect the agent's speech from the output writer. The
// adapter honours the same timing contract as a hardware device — capture
// blocks are released at the source sample rate, and playback bytes are
// written when their scheduled device-clock time arrives.
package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

// Provider implements [audio.DeviceProvider] over a reader/writer pair.
type Provider struct {
	// In supplies raw little-endian pcm16 capture audio. When nil,
	// RequestInput reports [audio.ErrPermissionDenied].
	In io.Reader

	// InRate is the capture sample rate. Defaults to [audio.WireSampleRate].
	InRate int

	// Out receives raw little-endian pcm16 playback audio. When nil,
	// playback is scheduled and timed but discarded.
	Out io.Writer
}

// RequestInput implements [audio.DeviceProvider].
func (p *Provider) RequestInput(_ context.Context) (audio.InputDevice, error) {
	if p.In == nil {
		return nil, fmt.Errorf("stream: no input source configured: %w", audio.ErrPermissionDenied)
	}
	rate := p.InRate
	if rate <= 0 {
		rate = audio.WireSampleRate
	}
	return &inputDevice{
		src:    p.In,
		rate:   rate,
		opened: time.Now(),
		done:   make(chan struct{}),
	}, nil
}

// OpenOutput implements [audio.DeviceProvider].
func (p *Provider) OpenOutput(sampleRate int) (audio.OutputDevice, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("stream: invalid output sample rate %d: %w", sampleRate, audio.ErrDeviceUnavailable)
	}
	return &outputDevice{
		sink:   p.Out,
		rate:   sampleRate,
		opened: time.Now(),
		done:   make(chan struct{}),
	}, nil
}

// ─── input ────────────────────────────────────────────────────────────────────

type inputDevice struct {
	src    io.Reader
	rate   int
	opened time.Time
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	consumed time.Duration // audio time handed out so far, for pacing
}

func (d *inputDevice) SampleRate() int { return d.rate }

// ReadFrame reads one full block from the source and paces delivery so the
// stream flows at real-time rate even when the source is a fast file.
//
// The blocking read runs on its own goroutine so Close can unblock a parked
// ReadFrame; an io.Reader cannot be cancelled, so an abandoned read exits
// only when the source next yields or errors, and its result is discarded.
func (d *inputDevice) ReadFrame(buf []float32) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, fmt.Errorf("stream: read after close: %w", audio.ErrDeviceUnavailable)
	}
	d.mu.Unlock()

	raw := make([]byte, len(buf)*2)
	res := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(d.src, raw)
		res <- err
	}()

	select {
	case err := <-res:
		if err != nil {
			return 0, fmt.Errorf("stream: read source: %w", audio.ErrDeviceUnavailable)
		}
	case <-d.done:
		return 0, fmt.Errorf("stream: device closed: %w", audio.ErrDeviceUnavailable)
	}

	samples := audio.BytesToSamples(raw)
	for i, s := range samples {
		buf[i] = audio.PCMToFloat(s)
	}

	frameDur := time.Duration(len(buf)) * time.Second / time.Duration(d.rate)

	d.mu.Lock()
	d.consumed += frameDur
	due := d.opened.Add(d.consumed)
	d.mu.Unlock()

	// Pace: do not release the frame before its real-time due point.
	if wait := time.Until(due); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-d.done:
			return 0, fmt.Errorf("stream: device closed: %w", audio.ErrDeviceUnavailable)
		}
	}
	return len(buf), nil
}

func (d *inputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.done) // unblocks a ReadFrame in flight
	return nil
}

// ─── output ───────────────────────────────────────────────────────────────────

type outputDevice struct {
	sink   io.Writer
	rate   int
	opened time.Time

	mu      sync.Mutex
	writeMu sync.Mutex
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func (d *outputDevice) SampleRate() int { return d.rate }

func (d *outputDevice) Now() time.Duration { return time.Since(d.opened) }

// PlayAt waits until the device clock reaches start, then writes the chunk to
// the sink in one piece. One goroutine per chunk; Stop cancels the wait.
func (d *outputDevice) PlayAt(pcm []int16, start time.Duration, onDone func()) (audio.PlaybackHandle, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, fmt.Errorf("stream: play after close: %w", audio.ErrDeviceUnavailable)
	}
	h := &playback{cancel: make(chan struct{})}
	d.wg.Add(1)
	d.mu.Unlock()

	dur := time.Duration(len(pcm)) * time.Second / time.Duration(d.rate)

	go func() {
		defer d.wg.Done()

		wait := start - d.Now()
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-h.cancel:
				return
			case <-d.done:
				return
			}
		}

		select {
		case <-h.cancel:
			return
		case <-d.done:
			return
		default:
		}

		if d.sink != nil {
			d.writeMu.Lock()
			_, _ = d.sink.Write(audio.SamplesToBytes(pcm))
			d.writeMu.Unlock()
		}

		// Hold until the chunk's play time has elapsed so onDone fires at the
		// audible end, not at write time.
		end := time.NewTimer(dur)
		defer end.Stop()
		select {
		case <-end.C:
		case <-h.cancel:
			return
		case <-d.done:
			return
		}

		if onDone != nil {
			onDone()
		}
	}()

	return h, nil
}

func (d *outputDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

type playback struct {
	once   sync.Once
	cancel chan struct{}
}

func (p *playback) Stop() {
	p.once.Do(func() { close(p.cancel) })
}
