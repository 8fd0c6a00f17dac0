package call

import (
	"math/rand/v2"
	"sync"
)

const (
	// WaveformLen is the fixed length of the amplitude sequence.
	WaveformLen = 40

	// waveformFloor is the resting amplitude. The decay never reaches zero so
	// the indicator never looks fully dead.
	waveformFloor = 4

	// waveformDecay is the geometric decay factor applied on each idle tick.
	waveformDecay = 0.85

	// exciteBase and exciteJitter bound the amplitudes generated while the
	// agent is speaking: values land in [exciteBase, exciteBase+exciteJitter].
	exciteBase   = 35
	exciteJitter = 65
)

// waveform derives a bounded amplitude sequence for UI display. Values are
// in [0, 100]; exact fidelity to the playing audio is not required, only
// boundedness and responsiveness. Safe for concurrent use.
type waveform struct {
	mu     sync.Mutex
	values [WaveformLen]int
}

func newWaveform() *waveform {
	w := &waveform{}
	for i := range w.values {
		w.values[i] = waveformFloor
	}
	return w
}

// excite regenerates the sequence with speech-level energy plus bounded
// random jitter. Called on each inbound speech chunk.
func (w *waveform) excite() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.values {
		// rand/v2 is concurrency-safe with the global source.
		w.values[i] = exciteBase + rand.IntN(exciteJitter+1)
	}
}

// decay moves every value geometrically toward the floor. Called on each
// idle tick while the agent is not speaking.
func (w *waveform) decay() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, v := range w.values {
		decayed := int(float64(v) * waveformDecay)
		if decayed < waveformFloor {
			decayed = waveformFloor
		}
		w.values[i] = decayed
	}
}

// snapshot returns a copy of the current sequence.
func (w *waveform) snapshot() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int, WaveformLen)
	copy(out, w.values[:])
	return out
}
