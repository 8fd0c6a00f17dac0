package audio_test

import (
	"testing"

	"github.com/voicewire/voicewire/pkg/audio"
)

func TestResampleMono_SameRate(t *testing.T) {
	t.Parallel()

	in := []int16{1, 2, 3, 4}
	out := audio.ResampleMono(in, 24000, 24000)
	if len(out) != len(in) {
		t.Fatalf("length = %d; want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d; want %d", i, out[i], in[i])
		}
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	t.Parallel()

	// 1 second of 24 kHz audio resampled to 16 kHz must yield 16000 samples.
	in := make([]int16, 24000)
	out := audio.ResampleMono(in, 24000, 16000)
	if len(out) != 16000 {
		t.Errorf("length = %d; want 16000", len(out))
	}
}

func TestResampleMono_Upsample(t *testing.T) {
	t.Parallel()

	in := make([]int16, 16000)
	out := audio.ResampleMono(in, 16000, 24000)
	if len(out) != 24000 {
		t.Errorf("length = %d; want 24000", len(out))
	}
}

func TestResampleMono_InterpolatesBetweenSamples(t *testing.T) {
	t.Parallel()

	// Doubling the rate of [0, 100] puts the midpoint sample at 50.
	out := audio.ResampleMono([]int16{0, 100}, 1, 2)
	if len(out) != 4 {
		t.Fatalf("length = %d; want 4", len(out))
	}
	if out[0] != 0 {
		t.Errorf("out[0] = %d; want 0", out[0])
	}
	if out[1] != 50 {
		t.Errorf("out[1] = %d; want 50", out[1])
	}
}

func TestResampleMono_PreservesDCLevel(t *testing.T) {
	t.Parallel()

	in := make([]int16, 2400)
	for i := range in {
		in[i] = 1000
	}
	out := audio.ResampleMono(in, 24000, 16000)
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d; want 1000 (constant signal must survive resampling)", i, s)
		}
	}
}
