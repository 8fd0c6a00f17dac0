// Package audio defines the sample types, codec utilities, and device
// contracts for the voicewire call pipeline.
//
// The codec functions are pure: pcm16 samples are transcribed byte-for-byte
// into a base64 text form for the transport, and converted to and from
// float32 for capture devices that produce floating-point blocks. The device
// interfaces at the bottom of the package are implemented by adapter packages
// (audio/stream for io pipes, audio/mock for tests).
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFrameLength reports a frame whose sample count is not a multiple
// of its channel count. This is a caller error, fatal to the call.
var ErrInvalidFrameLength = errors.New("audio: frame length is not a multiple of channel count")

// EncodeFrame transcribes int16 samples into their transport-safe base64
// form (little-endian byte order). An empty input yields an empty string.
func EncodeFrame(samples []int16) string {
	if len(samples) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(SamplesToBytes(samples))
}

// DecodePacket is the exact inverse of [EncodeFrame]. It returns an error if
// the input is not valid base64 or decodes to an odd byte count.
func DecodePacket(data string) ([]int16, error) {
	if data == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("audio: decode packet: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("audio: decode packet: odd byte count %d", len(raw))
	}
	return BytesToSamples(raw), nil
}

// SamplesToBytes packs int16 samples as little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToSamples unpacks little-endian bytes into int16 samples. A trailing
// odd byte is ignored.
func BytesToSamples(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return out
}

// PCMToFloat converts a pcm16 sample to a float32 in [-1, 1).
func PCMToFloat(s int16) float32 {
	return float32(s) / 32768.0
}

// FloatToPCM converts a float32 sample to pcm16. Input is clamped to
// [-1, 1] first so out-of-range floats saturate instead of wrapping.
func FloatToPCM(f float32) int16 {
	if f > 1.0 {
		f = 1.0
	} else if f < -1.0 {
		f = -1.0
	}
	v := math.Round(float64(f) * 32768)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// FloatsToPCM converts a float32 block in place-order to pcm16 samples.
func FloatsToPCM(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		out[i] = FloatToPCM(f)
	}
	return out
}

// Deinterleave splits an interleaved frame into one sample slice per channel.
// The frame length must be a multiple of channels; otherwise
// [ErrInvalidFrameLength] is returned.
func Deinterleave(frame []int16, channels int) ([][]int16, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: deinterleave: channel count %d: %w", channels, ErrInvalidFrameLength)
	}
	if len(frame)%channels != 0 {
		return nil, fmt.Errorf("audio: deinterleave: %d samples across %d channels: %w", len(frame), channels, ErrInvalidFrameLength)
	}
	perChannel := len(frame) / channels
	out := make([][]int16, channels)
	for ch := range out {
		out[ch] = make([]int16, perChannel)
	}
	for i, s := range frame {
		out[i%channels][i/channels] = s
	}
	return out, nil
}
