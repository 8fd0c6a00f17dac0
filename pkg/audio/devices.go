package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied reports that the user refused access to the input
// device. Recoverable: the caller may retry the permission request.
var ErrPermissionDenied = errors.New("audio: input device permission denied")

// ErrDeviceUnavailable reports that a device is busy, missing, or was
// revoked mid-call.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// DeviceProvider grants access to the host's audio devices.
//
// Implementations must be safe for concurrent use.
type DeviceProvider interface {
	// RequestInput asks for exclusive access to the capture device. It blocks
	// until the user grants or refuses access; refusal is reported as an error
	// wrapping [ErrPermissionDenied]. The supplied ctx bounds the wait.
	RequestInput(ctx context.Context) (InputDevice, error)

	// OpenOutput opens the playback device at the given sample rate.
	OpenOutput(sampleRate int) (OutputDevice, error)
}

// InputDevice is a live capture tap delivering float32 sample blocks.
type InputDevice interface {
	// SampleRate returns the device's native capture rate in Hz.
	SampleRate() int

	// ReadFrame fills buf with the next block of samples, blocking until a
	// full block is available. It returns the sample count written, or an
	// error wrapping [ErrDeviceUnavailable] if the device disappears.
	// ReadFrame unblocks with an error after Close.
	ReadFrame(buf []float32) (int, error)

	// Close disconnects the tap and releases the device. Idempotent.
	Close() error
}

// OutputDevice is a playback sink with its own monotonic clock. Chunks are
// scheduled against that clock so consecutive chunks can be rendered without
// audible gaps or overlaps.
type OutputDevice interface {
	// SampleRate returns the rate the device was opened at.
	SampleRate() int

	// Now returns the device clock: monotonically increasing time since the
	// device was opened.
	Now() time.Duration

	// PlayAt schedules pcm to begin playing at the given device-clock time.
	// onDone, if non-nil, is invoked once when playback finishes naturally;
	// it is not invoked for playback cancelled via the returned handle.
	// Implementations must invoke onDone asynchronously, never from within
	// PlayAt itself: callers may hold locks across the call that the
	// callback re-acquires.
	// Returns an error wrapping [ErrDeviceUnavailable] if the device is closed.
	PlayAt(pcm []int16, start time.Duration, onDone func()) (PlaybackHandle, error)

	// Close stops all scheduled playback and releases the device. Idempotent.
	Close() error
}

// PlaybackHandle cancels one scheduled chunk.
type PlaybackHandle interface {
	// Stop cancels the chunk immediately, whether pending or mid-play.
	// Safe to call more than once.
	Stop()
}
