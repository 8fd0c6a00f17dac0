package playback_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicewire/voicewire/internal/call/playback"
	"github.com/voicewire/voicewire/pkg/audio/mock"
)

// chunkOf builds a chunk of the given duration at the device rate.
func chunkOf(rate int, d time.Duration) playback.Chunk {
	n := int(int64(rate) * int64(d) / int64(time.Second))
	return playback.Chunk{PCM: make([]int16, n), SampleRate: rate}
}

func TestEnqueue_BackToBack(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(24000)
	s := playback.New(out)
	defer s.Close()

	// Three chunks arriving instantly must be scheduled contiguously.
	for range 3 {
		if err := s.Enqueue(chunkOf(24000, 500*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	plays := out.Plays()
	if len(plays) != 3 {
		t.Fatalf("scheduled %d chunks; want 3", len(plays))
	}
	for i, want := range []time.Duration{0, 500 * time.Millisecond, time.Second} {
		if plays[i].Start != want {
			t.Errorf("chunk %d start = %v; want %v", i, plays[i].Start, want)
		}
	}
	// Total span is exactly the sum of durations: no gaps, no overlap.
	if plays[2].End != 1500*time.Millisecond {
		t.Errorf("last chunk end = %v; want 1.5s", plays[2].End)
	}
}

func TestEnqueue_CursorNeverBehindClock(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(24000)
	s := playback.New(out)
	defer s.Close()

	if err := s.Enqueue(chunkOf(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Delivery lags: the clock has moved well past the first chunk's end.
	out.Advance(2 * time.Second)

	if err := s.Enqueue(chunkOf(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	plays := out.Plays()
	if plays[1].Start != 2*time.Second {
		t.Errorf("lagged chunk start = %v; want 2s (clock), not %v (old cursor)", plays[1].Start, plays[0].End)
	}
}

func TestFlush_StopsEverythingAndResetsCursor(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(24000)
	s := playback.New(out)
	defer s.Close()

	for range 3 {
		if err := s.Enqueue(chunkOf(24000, time.Second)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Barge-in mid-first-chunk.
	out.Advance(300 * time.Millisecond)
	s.Flush()

	if n := s.ActiveCount(); n != 0 {
		t.Errorf("active after flush = %d; want 0", n)
	}
	for i := range 3 {
		if !out.Stopped(i) {
			t.Errorf("chunk %d not stopped by flush", i)
		}
	}

	// The next chunk starts at the clock, not at the pre-flush schedule end.
	if err := s.Enqueue(chunkOf(24000, time.Second)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	plays := out.Plays()
	if got := plays[3].Start; got != 300*time.Millisecond {
		t.Errorf("post-flush chunk start = %v; want 300ms", got)
	}
}

func TestEnqueue_ResamplesForeignRate(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(48000)
	s := playback.New(out)
	defer s.Close()

	// 24 kHz chunk on a 48 kHz device: sample count doubles, duration holds.
	if err := s.Enqueue(chunkOf(24000, 500*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	plays := out.Plays()
	if len(plays) != 1 {
		t.Fatalf("scheduled %d chunks; want 1", len(plays))
	}
	if got := len(plays[0].PCM); got != 24000 {
		t.Errorf("resampled length = %d; want 24000", got)
	}
	if plays[0].End != 500*time.Millisecond {
		t.Errorf("duration = %v; want 500ms", plays[0].End)
	}
}

func TestEnqueue_EmptyChunkIsNoop(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(24000)
	s := playback.New(out)
	defer s.Close()

	if err := s.Enqueue(playback.Chunk{SampleRate: 24000}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if n := len(out.Plays()); n != 0 {
		t.Errorf("scheduled %d chunks for empty input; want 0", n)
	}
}

func TestOnDrained_FiresWhenActiveSetEmpties(t *testing.T) {
	t.Parallel()

	var drained atomic.Int32
	out := mock.NewOutputDevice(24000)
	s := playback.New(out, playback.WithOnDrained(func() { drained.Add(1) }))
	defer s.Close()

	_ = s.Enqueue(chunkOf(24000, 100*time.Millisecond))
	_ = s.Enqueue(chunkOf(24000, 100*time.Millisecond))

	out.Advance(100 * time.Millisecond)
	if got := drained.Load(); got != 0 {
		t.Fatalf("drained fired %d times with one chunk still queued", got)
	}

	out.Advance(100 * time.Millisecond)
	if got := drained.Load(); got != 1 {
		t.Errorf("drained fired %d times; want 1", got)
	}
}

func TestOnDrained_NotFiredByFlush(t *testing.T) {
	t.Parallel()

	var drained atomic.Int32
	out := mock.NewOutputDevice(24000)
	s := playback.New(out, playback.WithOnDrained(func() { drained.Add(1) }))
	defer s.Close()

	_ = s.Enqueue(chunkOf(24000, time.Second))
	s.Flush()

	// Advancing past the stopped chunk's end must not fire onDrained: the
	// chunk was cancelled, not finished.
	out.Advance(2 * time.Second)
	if got := drained.Load(); got != 0 {
		t.Errorf("drained fired %d times after flush; want 0", got)
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	out := mock.NewOutputDevice(24000)
	s := playback.New(out)

	_ = s.Enqueue(chunkOf(24000, time.Second))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !out.Closed() {
		t.Error("output device not closed")
	}
	if err := s.Enqueue(chunkOf(24000, time.Second)); err == nil {
		t.Error("Enqueue after Close must fail")
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	c := playback.Chunk{PCM: make([]int16, 12000), SampleRate: 24000}
	if got := c.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v; want 500ms", got)
	}
	if got := (playback.Chunk{}).Duration(); got != 0 {
		t.Errorf("zero chunk Duration = %v; want 0", got)
	}
}
