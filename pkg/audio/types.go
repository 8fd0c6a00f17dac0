package audio

import "time"

// WireSampleRate is the sample rate of outbound capture audio on the wire.
// The remote agent contract fixes capture audio at 16 kHz mono pcm16.
const WireSampleRate = 16000

// AgentSampleRate is the sample rate of inbound agent speech chunks.
const AgentSampleRate = 24000

// Frame is a fixed-duration block of linear-PCM samples pulled from the
// capture device in one pass. Frames are immutable once created; ownership
// passes from the capture pipeline to the transport sender.
type Frame struct {
	// Samples holds interleaved int16 PCM samples.
	Samples []int16

	// SampleRate in Hz (16000 for the wire format).
	SampleRate int

	// Channels: 1 for the wire format.
	Channels int
}

// Duration returns the play time of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := len(f.Samples) / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// EncodedPacket is the transport-safe representation of a [Frame]: the PCM
// payload transcribed to base64 plus a MIME-like tag describing the format.
// Packets are fire-and-forget; they are not retained after send.
type EncodedPacket struct {
	// Data is the base64 transcription of the little-endian pcm16 payload.
	Data string

	// MIME tags the payload format, e.g. "audio/pcm;rate=16000".
	MIME string
}

// MIMEForRate builds the MIME tag for a pcm16 payload at the given rate.
func MIMEForRate(sampleRate int) string {
	return "audio/pcm;rate=" + itoa(sampleRate)
}

// itoa is a minimal non-negative integer formatter so the hot encode path
// does not pull in fmt.
func itoa(n int) string {
	if n <= 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
