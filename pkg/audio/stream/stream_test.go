package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/voicewire/voicewire/pkg/audio"
	"github.com/voicewire/voicewire/pkg/audio/stream"
)

func TestRequestInput_NoSourceIsDenied(t *testing.T) {
	t.Parallel()

	p := &stream.Provider{}
	_, err := p.RequestInput(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Errorf("err = %v; want ErrPermissionDenied", err)
	}
}

func TestInputDevice_ReadsAndConverts(t *testing.T) {
	t.Parallel()

	pcm := []int16{0, 16384, -16384, 32767}
	p := &stream.Provider{In: bytes.NewReader(audio.SamplesToBytes(pcm)), InRate: 16000}

	dev, err := p.RequestInput(context.Background())
	if err != nil {
		t.Fatalf("RequestInput: %v", err)
	}
	defer dev.Close()

	if dev.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d; want 16000", dev.SampleRate())
	}

	buf := make([]float32, 4)
	n, err := dev.ReadFrame(buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d; want 4", n)
	}
	for i, s := range pcm {
		want := audio.PCMToFloat(s)
		if buf[i] != want {
			t.Errorf("sample %d = %v; want %v", i, buf[i], want)
		}
	}
}

func TestInputDevice_SourceExhausted(t *testing.T) {
	t.Parallel()

	p := &stream.Provider{In: bytes.NewReader(nil)}
	dev, err := p.RequestInput(context.Background())
	if err != nil {
		t.Fatalf("RequestInput: %v", err)
	}
	defer dev.Close()

	if _, err := dev.ReadFrame(make([]float32, 4)); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("err = %v; want ErrDeviceUnavailable", err)
	}
}

func TestInputDevice_CloseUnblocksParkedRead(t *testing.T) {
	t.Parallel()

	// A live pipe with no writer: ReadFrame parks in the blocking read.
	pr, pw := io.Pipe()
	defer pw.Close()

	p := &stream.Provider{In: pr}
	dev, err := p.RequestInput(context.Background())
	if err != nil {
		t.Fatalf("RequestInput: %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		_, err := dev.ReadFrame(make([]float32, 4))
		readErr <- err
	}()

	// Give the reader time to park before closing.
	time.Sleep(20 * time.Millisecond)
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-readErr:
		if !errors.Is(err, audio.ErrDeviceUnavailable) {
			t.Errorf("err = %v; want ErrDeviceUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock the in-flight ReadFrame")
	}
}

func TestInputDevice_ReadAfterClose(t *testing.T) {
	t.Parallel()

	p := &stream.Provider{In: bytes.NewReader(make([]byte, 64))}
	dev, err := p.RequestInput(context.Background())
	if err != nil {
		t.Fatalf("RequestInput: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := dev.ReadFrame(make([]float32, 4)); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("err = %v; want ErrDeviceUnavailable", err)
	}
}

func TestOpenOutput_InvalidRate(t *testing.T) {
	t.Parallel()

	p := &stream.Provider{}
	if _, err := p.OpenOutput(0); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("err = %v; want ErrDeviceUnavailable", err)
	}
}

func TestOutputDevice_WritesScheduledChunk(t *testing.T) {
	t.Parallel()

	var sink bytes.Buffer
	p := &stream.Provider{Out: &sink}
	dev, err := p.OpenOutput(24000)
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}

	pcm := []int16{1, 2, 3, 4}
	done := make(chan struct{})
	if _, err := dev.PlayAt(pcm, 0, func() { close(done) }); err != nil {
		t.Fatalf("PlayAt: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone never fired")
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := audio.SamplesToBytes(pcm)
	if !bytes.Equal(sink.Bytes(), want) {
		t.Errorf("sink = %v; want %v", sink.Bytes(), want)
	}
}

func TestOutputDevice_StopSuppressesWrite(t *testing.T) {
	t.Parallel()

	var sink bytes.Buffer
	p := &stream.Provider{Out: &sink}
	dev, err := p.OpenOutput(24000)
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}

	// Scheduled well in the future, then cancelled before its start.
	h, err := dev.PlayAt(make([]int16, 24000), time.Hour, nil)
	if err != nil {
		t.Fatalf("PlayAt: %v", err)
	}
	h.Stop()
	h.Stop() // idempotent

	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.Len() != 0 {
		t.Errorf("sink has %d bytes; want 0 after Stop", sink.Len())
	}
}

func TestOutputDevice_PlayAfterClose(t *testing.T) {
	t.Parallel()

	p := &stream.Provider{}
	dev, err := p.OpenOutput(24000)
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := dev.PlayAt([]int16{1}, 0, nil); !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Errorf("err = %v; want ErrDeviceUnavailable", err)
	}
}
