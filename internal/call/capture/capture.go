// Package capture turns a live audio input device into a steady stream of
// outbound encoded packets.
//
// The [Pipeline] pulls fixed-size float32 blocks from the device at its
// native rate, gates them on the mute flag, converts float → pcm16 → base64,
// and hands each packet to the OnFrame callback. Devices running at a rate
// other than the 16 kHz wire rate are resampled before encoding, so every
// outbound packet matches the format declared at session open. Muted frames
// are produced and discarded — silence is never sent. The per-frame path does
// no blocking work of its own; a slow OnFrame callback is the caller's
// responsibility.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/voicewire/voicewire/pkg/audio"
)

// DefaultFrameSize is the capture block size in samples (256 ms at 16 kHz).
const DefaultFrameSize = 4096

// Config holds the dependencies and callbacks for a [Pipeline].
type Config struct {
	// Device is the input device to pull frames from. Required.
	Device audio.InputDevice

	// FrameSize is the block size in samples. Defaults to [DefaultFrameSize].
	FrameSize int

	// OnFrame receives each encoded packet. Required. Called from the capture
	// goroutine; must not block.
	OnFrame func(pkt audio.EncodedPacket)

	// OnError receives the terminal capture failure (device unavailable,
	// permission revoked mid-call). Called at most once, from the capture
	// goroutine, after which the pipeline stops pulling frames. Optional.
	OnError func(err error)
}

// Pipeline is the capture half of a call. Create one per session with
// [Start]; it owns the input device until [Pipeline.Stop].
type Pipeline struct {
	dev       audio.InputDevice
	frameSize int
	srcRate   int
	mime      string
	onFrame   func(audio.EncodedPacket)
	onError   func(error)

	muted      atomic.Bool
	mutedCount atomic.Int64
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// Start validates cfg and begins pulling frames on a background goroutine.
func Start(cfg Config) (*Pipeline, error) {
	if cfg.Device == nil {
		return nil, errors.New("capture: device is required")
	}
	if cfg.OnFrame == nil {
		return nil, errors.New("capture: OnFrame is required")
	}
	frameSize := cfg.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}

	p := &Pipeline{
		dev:       cfg.Device,
		frameSize: frameSize,
		srcRate:   cfg.Device.SampleRate(),
		mime:      audio.MIMEForRate(audio.WireSampleRate),
		onFrame:   cfg.OnFrame,
		onError:   cfg.OnError,
		done:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.loop()

	return p, nil
}

// SetMuted sets the mute flag. Takes effect on the next frame boundary.
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports the current mute flag.
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// MutedFrames reports how many frames the mute gate has discarded.
func (p *Pipeline) MutedFrames() int64 {
	return p.mutedCount.Load()
}

// Stop disconnects the device tap and releases the input device. It blocks
// until the capture goroutine has exited, so no frame callback fires after
// Stop returns. Idempotent and safe to call from any goroutine.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		_ = p.dev.Close() // unblocks a ReadFrame in flight
	})
	p.wg.Wait()
}

// loop is the capture goroutine: pull, gate, convert, encode, forward.
func (p *Pipeline) loop() {
	defer p.wg.Done()

	buf := make([]float32, p.frameSize)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := p.dev.ReadFrame(buf)
		if err != nil {
			select {
			case <-p.done:
				// Stop closed the device; not a capture failure.
				return
			default:
			}
			if p.onError != nil {
				p.onError(fmt.Errorf("capture: read frame: %w", err))
			}
			return
		}
		if n == 0 {
			continue
		}

		// Mute gate: the frame was produced, now discard it. Nothing is sent.
		if p.muted.Load() {
			p.mutedCount.Add(1)
			continue
		}

		pcm := audio.FloatsToPCM(buf[:n])
		if p.srcRate != audio.WireSampleRate {
			pcm = audio.ResampleMono(pcm, p.srcRate, audio.WireSampleRate)
		}
		p.onFrame(audio.EncodedPacket{
			Data: audio.EncodeFrame(pcm),
			MIME: p.mime,
		})
	}
}
