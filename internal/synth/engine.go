// Package synth defines the synthesizer engine contract and the bridge
// that feeds it: buffered MIDI bytes in, one rendered PCM frame out.
// The synthesis algorithm itself lives behind the Engine interface; the
// package ships a silence-rendering engine for development and tests.
package synth

import (
	"errors"
	"fmt"
)

// EngineConfig is the fixed render format an engine reports before the
// pipeline sizes its buffers. All pacing math downstream derives from
// these values.
type EngineConfig struct {
	// SampleRate in Hz.
	SampleRate int
	// NumChannels per PCM frame (1 mono, 2 stereo).
	NumChannels int
	// MixBufferSize is the number of PCM frames produced by one Render
	// call. Fixed for the lifetime of the engine.
	MixBufferSize int
	// MaxVoices is the engine's polyphony ceiling.
	MaxVoices int
}

// FrameBytes returns the byte size of one Render call's output.
func (c EngineConfig) FrameBytes() int {
	return c.MixBufferSize * c.NumChannels * 2
}

// Validate rejects configurations the pipeline cannot schedule.
func (c EngineConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("synth: invalid sample rate %d", c.SampleRate)
	}
	if c.NumChannels < 1 || c.NumChannels > 2 {
		return fmt.Errorf("synth: invalid channel count %d", c.NumChannels)
	}
	if c.MixBufferSize <= 0 {
		return fmt.Errorf("synth: invalid mix buffer size %d", c.MixBufferSize)
	}
	return nil
}

// ReverbConfig selects a reverb preset and its wet level.
type ReverbConfig struct {
	Preset int // 0-4; 0 disables
	Wet    int // 0-32767
}

// ChorusConfig selects a chorus preset and its modulation parameters.
type ChorusConfig struct {
	Preset int // 0-4; 0 disables
	Rate   int // 10-50
	Depth  int // 15-60
	Level  int // 0-32767
}

// SampleBank is read-only access to an instrument sample bank. The
// engine addresses it by offset; implementations clamp out-of-range
// reads rather than failing.
type SampleBank interface {
	// ReadAt returns size bytes starting at off, clamped to the bank
	// bounds. The returned slice aliases the bank's backing storage and
	// must not be modified.
	ReadAt(off, size int) []byte

	// Size returns the bank length in bytes.
	Size() int
}

// ErrShortRender is returned when an engine produces fewer bytes than
// its configured frame size.
var ErrShortRender = errors.New("synth: short render")

// Engine is the synthesizer contract. All methods are called from the
// pipeline goroutines under the documented ownership rules: WriteMIDI
// and Render only from the main loop, the rest during staged startup
// and shutdown.
type Engine interface {
	// Config reports the engine's fixed render format. Valid before
	// Init.
	Config() EngineConfig

	// Init allocates the engine. Called once.
	Init() error

	// LoadSampleBank replaces the default instrument set. Optional;
	// engines without bank support return an error.
	LoadSampleBank(bank SampleBank) error

	// SetVolume sets the master volume, 0-100.
	SetVolume(level int) error

	// SetPolyphony caps simultaneous voices at n.
	SetPolyphony(n int) error

	// SetReverb applies a reverb configuration.
	SetReverb(cfg ReverbConfig) error

	// SetChorus applies a chorus configuration.
	SetChorus(cfg ChorusConfig) error

	// OpenStream opens the MIDI input stream. Called once after Init.
	OpenStream() error

	// WriteMIDI feeds raw protocol bytes into the open stream. Partial
	// event sequences are allowed; the engine reassembles internally.
	WriteMIDI(p []byte) error

	// Render synthesizes exactly one frame (MixBufferSize PCM frames of
	// interleaved S16LE) into dst and returns the bytes produced.
	Render(dst []byte) (int, error)

	// CloseStream closes the MIDI input stream.
	CloseStream() error

	// Shutdown releases the engine. The engine is unusable afterwards.
	Shutdown() error
}
