package synth

import (
	"errors"
	"log/slog"
)

// SilentEngine renders digital silence while accepting the full engine
// contract. It exists so the pipeline, scheduler and device backends
// can run end to end on machines without a real synthesizer library.
type SilentEngine struct {
	cfg    EngineConfig
	inited bool
	stream bool

	// MIDI bytes accepted while the stream was open, for tests.
	Received []byte
}

// NewSilentEngine returns a silent engine with the given format.
func NewSilentEngine(cfg EngineConfig) *SilentEngine {
	return &SilentEngine{cfg: cfg}
}

// Config implements Engine.
func (e *SilentEngine) Config() EngineConfig { return e.cfg }

// Init implements Engine.
func (e *SilentEngine) Init() error {
	if e.inited {
		return errors.New("synth: engine already initialized")
	}
	e.inited = true
	slog.Info("synth: silent engine initialized",
		"rate", e.cfg.SampleRate,
		"channels", e.cfg.NumChannels,
		"mix_buffer", e.cfg.MixBufferSize,
	)
	return nil
}

// LoadSampleBank implements Engine. The bank is validated for
// readability and otherwise ignored.
func (e *SilentEngine) LoadSampleBank(bank SampleBank) error {
	if !e.inited {
		return errors.New("synth: engine not initialized")
	}
	if bank.Size() == 0 {
		return errors.New("synth: empty sample bank")
	}
	header := bank.ReadAt(0, 4)
	slog.Info("synth: sample bank accepted", "size", bank.Size(), "header", header)
	return nil
}

// SetVolume implements Engine.
func (e *SilentEngine) SetVolume(level int) error {
	if level < 0 || level > 100 {
		return errors.New("synth: volume out of range")
	}
	return nil
}

// SetPolyphony implements Engine.
func (e *SilentEngine) SetPolyphony(n int) error {
	if n < 1 || n > e.cfg.MaxVoices {
		return errors.New("synth: polyphony out of range")
	}
	return nil
}

// SetReverb implements Engine.
func (e *SilentEngine) SetReverb(cfg ReverbConfig) error { return nil }

// SetChorus implements Engine.
func (e *SilentEngine) SetChorus(cfg ChorusConfig) error { return nil }

// OpenStream implements Engine.
func (e *SilentEngine) OpenStream() error {
	if !e.inited {
		return errors.New("synth: engine not initialized")
	}
	e.stream = true
	return nil
}

// WriteMIDI implements Engine.
func (e *SilentEngine) WriteMIDI(p []byte) error {
	if !e.stream {
		return errors.New("synth: stream not open")
	}
	e.Received = append(e.Received, p...)
	return nil
}

// Render implements Engine.
func (e *SilentEngine) Render(dst []byte) (int, error) {
	if !e.stream {
		return 0, errors.New("synth: stream not open")
	}
	want := e.cfg.FrameBytes()
	if len(dst) < want {
		return 0, ErrShortRender
	}
	for i := 0; i < want; i++ {
		dst[i] = 0
	}
	return want, nil
}

// CloseStream implements Engine.
func (e *SilentEngine) CloseStream() error {
	e.stream = false
	return nil
}

// Shutdown implements Engine.
func (e *SilentEngine) Shutdown() error {
	e.inited = false
	return nil
}
