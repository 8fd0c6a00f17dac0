// Package playback renders inbound agent speech with no audible gaps or
// overlaps despite chunks arriving at irregular network-determined intervals.
//
// The [Scheduler] owns the output device. Each chunk is scheduled at
// max(cursor, device clock now): when chunks arrive faster than they play
// they queue back-to-back with no gap; when delivery lags, the schedule
// catches up to the clock instead of placing a chunk in the past. Every
// scheduled chunk is tracked in an active set so a barge-in can cancel all of
// them atomically, mid-syllable.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
)

// Chunk is one decoded block of agent speech ready for scheduled playback.
// The scheduler owns the chunk from Enqueue until its scheduled end.
type Chunk struct {
	// PCM holds mono int16 samples.
	PCM []int16

	// SampleRate is the rate of PCM in Hz.
	SampleRate int
}

// Duration returns the play time of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.PCM)) * time.Second / time.Duration(c.SampleRate)
}

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithOnDrained registers fn to be invoked whenever the active set becomes
// empty — the "agent finished speaking" signal. fn is called without the
// scheduler lock held and must not block.
func WithOnDrained(fn func()) Option {
	return func(s *Scheduler) {
		s.onDrained = fn
	}
}

// Scheduler schedules gapless sequential playback on an output device.
//
// All exported methods are safe for concurrent use. The scheduling cursor is
// mutated only under the scheduler's mutex; it is monotonically
// non-decreasing between flushes.
type Scheduler struct {
	out       audio.OutputDevice
	onDrained func()

	mu        sync.Mutex
	nextStart time.Duration // 0 means unset: recomputed from the clock on next enqueue
	active    map[uint64]audio.PlaybackHandle
	seq       uint64
	closed    bool
}

// New creates a Scheduler that renders chunks on out. The scheduler assumes
// exclusive ownership of the device; Close releases it.
func New(out audio.OutputDevice, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]audio.PlaybackHandle),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules chunk to begin at max(cursor, device clock now) and
// advances the cursor by the chunk's duration. Chunks whose rate differs from
// the device rate are resampled first.
func (s *Scheduler) Enqueue(chunk Chunk) error {
	pcm := chunk.PCM
	if chunk.SampleRate != s.out.SampleRate() {
		pcm = audio.ResampleMono(pcm, chunk.SampleRate, s.out.SampleRate())
	}
	if len(pcm) == 0 {
		return nil
	}
	dur := time.Duration(len(pcm)) * time.Second / time.Duration(s.out.SampleRate())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("playback: enqueue on closed scheduler: %w", audio.ErrDeviceUnavailable)
	}

	start := s.out.Now()
	if s.nextStart > start {
		start = s.nextStart
	}

	s.seq++
	id := s.seq
	// The completion callback re-acquires s.mu; the device contract requires
	// onDone to fire asynchronously, so holding the lock across PlayAt is safe.
	handle, err := s.out.PlayAt(pcm, start, func() { s.complete(id) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("playback: schedule chunk: %w", err)
	}
	s.active[id] = handle
	s.nextStart = start + dur
	s.mu.Unlock()

	return nil
}

// complete removes a finished chunk from the active set and signals the
// drained callback when the set becomes empty.
func (s *Scheduler) complete(id uint64) {
	s.mu.Lock()
	_, tracked := s.active[id]
	delete(s.active, id)
	drained := tracked && len(s.active) == 0 && !s.closed
	fn := s.onDrained
	s.mu.Unlock()

	if drained && fn != nil {
		fn()
	}
}

// Flush stops and discards every chunk in the active set immediately and
// resets the scheduling cursor; the next enqueued chunk starts at the device
// clock, never at the old scheduled end time. Used on barge-in — the
// half-spoken utterance must stop audibly mid-syllable.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	n := s.flushLocked()
	s.mu.Unlock()

	if n > 0 {
		slog.Debug("playback: flushed scheduled chunks", "count", n)
	}
}

// flushLocked cancels all active chunks and resets the cursor.
// Must be called with s.mu held. Returns the number of chunks cancelled.
func (s *Scheduler) flushLocked() int {
	n := len(s.active)
	for id, handle := range s.active {
		handle.Stop()
		delete(s.active, id)
	}
	s.nextStart = 0
	return n
}

// ActiveCount returns the number of chunks currently scheduled or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close flushes all playback and releases the output device. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.flushLocked()
	s.mu.Unlock()

	return s.out.Close()
}
