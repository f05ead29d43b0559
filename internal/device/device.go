// Package device abstracts the audio output hardware behind a narrow
// write/pause/state contract so the output scheduler can be exercised
// against real backends and an in-memory mock alike.
//
// Backends:
//   - oto: portable output through ebitengine/oto (default)
//   - gst: GStreamer appsrc -> autoaudiosink pipeline
//   - mock: in-memory sink for tests and headless runs
package device

import (
	"errors"
	"fmt"
)

// State reports the playback state of an open device.
type State int

const (
	// StateUnknown means the backend cannot determine its state.
	StateUnknown State = iota
	// StateRunning means the device is consuming buffered samples.
	StateRunning
	// StatePaused means playback is suspended.
	StatePaused
	// StateUnderrun means the hardware ran out of buffered samples and
	// must be re-prepared before playback continues cleanly.
	StateUnderrun
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Config fixes the PCM format negotiated with the backend. Samples are
// signed 16-bit little-endian, interleaved.
type Config struct {
	// SampleRate in Hz.
	SampleRate int
	// Channels per PCM frame.
	Channels int
	// PeriodFrames is the number of PCM frames per render call.
	PeriodFrames int
	// BufferPeriods is the hardware buffer depth in periods.
	BufferPeriods int
}

// FrameBytes returns the byte size of one PCM frame.
func (c Config) FrameBytes() int {
	return c.Channels * 2
}

// PeriodBytes returns the byte size of one render period.
func (c Config) PeriodBytes() int {
	return c.PeriodFrames * c.FrameBytes()
}

// BufferBytes returns the byte size of the full hardware buffer.
func (c Config) BufferBytes() int {
	return c.BufferPeriods * c.PeriodBytes()
}

// Validate rejects configurations no backend could satisfy.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("device: invalid sample rate %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("device: invalid channel count %d", c.Channels)
	}
	if c.PeriodFrames <= 0 {
		return fmt.Errorf("device: invalid period size %d", c.PeriodFrames)
	}
	if c.BufferPeriods < 2 {
		return fmt.Errorf("device: buffer depth %d periods is too shallow", c.BufferPeriods)
	}
	return nil
}

// ErrClosed is returned by operations on a device that is not open.
var ErrClosed = errors.New("device: not open")

// Device is the output hardware contract used by the scheduler.
//
// All methods are called from the scheduler goroutine only; backends
// that run their own callback threads must synchronize internally.
type Device interface {
	// Open configures and starts the device.
	Open(cfg Config) error

	// WriteFrames queues interleaved S16LE PCM and returns the number
	// of whole PCM frames accepted, which may be less than offered.
	WriteFrames(pcm []byte) (int, error)

	// AvailFrames returns the free hardware buffer space in PCM frames.
	AvailFrames() (int, error)

	// State reports the current playback state.
	State() State

	// Prepare recovers the device after an underrun, clearing the error
	// condition and resetting its internal position.
	Prepare() error

	// Pause suspends (true) or resumes (false) playback. Backends may
	// refuse; the caller treats refusal as a soft failure.
	Pause(pause bool) error

	// Close releases the device.
	Close() error
}
