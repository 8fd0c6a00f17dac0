package call

import "testing"

func TestWaveform_RestingState(t *testing.T) {
	t.Parallel()

	w := newWaveform()
	vals := w.snapshot()
	if len(vals) != WaveformLen {
		t.Fatalf("length = %d; want %d", len(vals), WaveformLen)
	}
	for i, v := range vals {
		if v != waveformFloor {
			t.Errorf("value %d = %d; want floor %d", i, v, waveformFloor)
		}
	}
}

func TestWaveform_ExciteBounds(t *testing.T) {
	t.Parallel()

	w := newWaveform()
	for range 50 {
		w.excite()
		for i, v := range w.snapshot() {
			if v < exciteBase || v > 100 {
				t.Fatalf("value %d = %d; want within [%d, 100]", i, v, exciteBase)
			}
		}
	}
}

func TestWaveform_DecayReachesFloorAndStays(t *testing.T) {
	t.Parallel()

	w := newWaveform()
	w.excite()

	prev := w.snapshot()
	for range 100 {
		w.decay()
		cur := w.snapshot()
		for i := range cur {
			if cur[i] > prev[i] {
				t.Fatalf("value %d grew during decay: %d → %d", i, prev[i], cur[i])
			}
			if cur[i] < waveformFloor {
				t.Fatalf("value %d = %d fell below floor %d", i, cur[i], waveformFloor)
			}
		}
		prev = cur
	}
	for i, v := range prev {
		if v != waveformFloor {
			t.Errorf("value %d = %d after long decay; want floor %d", i, v, waveformFloor)
		}
	}
}

func TestWaveform_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	w := newWaveform()
	vals := w.snapshot()
	vals[0] = 999
	if got := w.snapshot()[0]; got != waveformFloor {
		t.Errorf("mutating a snapshot leaked into the waveform: %d", got)
	}
}
