package audio

import (
	"errors"
)

// Sink and output errors
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrSinkStopped       = errors.New("sink is stopped")
)

// Sink is a single playback channel bound to one output stream on the default device.
// The sink owns its stream: Stop releases both.
type Sink interface {
	// Append attaches a decoded source; audio flows as soon as the sink is not paused
	Append(src Source) error

	// Pause and Resume toggle the underlying stream and are idempotent
	Pause() error
	Resume() error

	// Stop truncates any in-flight audio and releases the stream.
	// The sink cannot be reused afterwards.
	Stop() error

	// IsEmpty reports whether no appended source has audio left
	IsEmpty() bool

	// Err reports a device failure that happened mid-stream
	Err() error

	// FramesPlayed counts frames of real audio handed to the device
	FramesPlayed() uint64
}

// Output opens sinks on one audio backend
type Output interface {
	OpenSink(format Format) (Sink, error)
	Name() string
	Close() error
}
