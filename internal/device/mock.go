package device

import (
	"errors"
	"sync"
)

// Mock is an in-memory Device used by the scheduler tests and by the
// "mock" backend for headless runs. It models a hardware buffer that
// drains only when Drain is called, so tests control time explicitly.
type Mock struct {
	mu sync.Mutex

	cfg      Config
	open     bool
	paused   bool
	underrun bool

	buffered int // PCM frames queued

	// Test knobs.
	PauseErr     error // returned by Pause(true) when set
	UnpauseErr   error // returned by Pause(false) when set
	WriteErr     error // returned by WriteFrames when set
	MaxWrite     int   // cap on frames accepted per WriteFrames call; 0 = unlimited
	PauseCalls   int
	UnpauseCalls int
	PrepareCalls int
	Written      []byte // all accepted PCM
}

// NewMock returns an unopened mock device.
func NewMock() *Mock {
	return &Mock{}
}

// Open implements Device.
func (m *Mock) Open(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.open = true
	m.buffered = 0
	m.underrun = false
	return nil
}

// WriteFrames implements Device.
func (m *Mock) WriteFrames(pcm []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	frames := len(pcm) / m.cfg.FrameBytes()
	space := m.cfg.BufferPeriods*m.cfg.PeriodFrames - m.buffered
	if frames > space {
		frames = space
	}
	if m.MaxWrite > 0 && frames > m.MaxWrite {
		frames = m.MaxWrite
	}
	if frames <= 0 {
		return 0, nil
	}

	m.buffered += frames
	m.Written = append(m.Written, pcm[:frames*m.cfg.FrameBytes()]...)
	return frames, nil
}

// AvailFrames implements Device.
func (m *Mock) AvailFrames() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, ErrClosed
	}
	return m.cfg.BufferPeriods*m.cfg.PeriodFrames - m.buffered, nil
}

// State implements Device.
func (m *Mock) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.open:
		return StateUnknown
	case m.underrun:
		return StateUnderrun
	case m.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Prepare implements Device.
func (m *Mock) Prepare() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrClosed
	}
	m.PrepareCalls++
	m.underrun = false
	m.buffered = 0
	return nil
}

// Pause implements Device.
func (m *Mock) Pause(pause bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrClosed
	}
	if pause {
		m.PauseCalls++
		if m.PauseErr != nil {
			return m.PauseErr
		}
		m.paused = true
		return nil
	}
	m.UnpauseCalls++
	if m.UnpauseErr != nil {
		return m.UnpauseErr
	}
	m.paused = false
	return nil
}

// Close implements Device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return errors.New("device: already closed")
	}
	m.open = false
	return nil
}

// Drain simulates the hardware consuming n PCM frames; draining an
// empty buffer raises the underrun condition.
func (m *Mock) Drain(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n >= m.buffered {
		if m.buffered < n {
			m.underrun = true
		}
		m.buffered = 0
		return
	}
	m.buffered -= n
}

// Buffered returns the frames currently queued.
func (m *Mock) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffered
}

// ForceUnderrun raises the underrun condition directly.
func (m *Mock) ForceUnderrun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.underrun = true
	m.buffered = 0
}
