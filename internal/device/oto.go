package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Oto is the default output backend, built on ebitengine/oto.
//
// oto pulls samples through an io.Reader on its own mixer thread, while
// the scheduler pushes frames at its own cadence. The backend bridges
// the two with a staging buffer sized to the configured hardware depth:
// WriteFrames appends to it, Read drains it. A Read against an empty
// staging buffer after playback has started is the backend's underrun
// condition; silence is substituted so the mixer never blocks.
type Oto struct {
	mu sync.Mutex

	cfg      Config
	ctx      *oto.Context
	player   *oto.Player
	pending  []byte
	started  bool // at least one frame was written
	underrun bool
	paused   bool
	open     bool
}

// NewOto returns an unopened oto-backed device.
func NewOto() *Oto {
	return &Oto{}
}

// Open implements Device.
func (d *Oto) Open(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	bufDur := time.Second * time.Duration(cfg.PeriodFrames) / time.Duration(cfg.SampleRate)
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufDur,
	})
	if err != nil {
		return fmt.Errorf("device: oto context: %w", err)
	}
	<-ready

	d.mu.Lock()
	d.cfg = cfg
	d.ctx = ctx
	d.pending = make([]byte, 0, cfg.BufferBytes())
	d.open = true
	d.mu.Unlock()

	d.player = ctx.NewPlayer(d)
	d.player.Play()

	slog.Info("device: oto output opened",
		"rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"period_frames", cfg.PeriodFrames,
		"buffer_periods", cfg.BufferPeriods,
	)
	return nil
}

// Read feeds the oto mixer thread from the staging buffer, substituting
// silence when it is empty. Never returns an error; a starved mixer is
// recovered by the scheduler through the underrun path.
func (d *Oto) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := copy(p, d.pending)
	d.pending = d.pending[:copy(d.pending, d.pending[n:])]

	if n < len(p) {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		if d.started && !d.paused {
			d.underrun = true
		}
	}
	return len(p), nil
}

// WriteFrames implements Device.
func (d *Oto) WriteFrames(pcm []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrClosed
	}

	frameBytes := d.cfg.FrameBytes()
	space := (cap(d.pending) - len(d.pending)) / frameBytes
	frames := len(pcm) / frameBytes
	if frames > space {
		frames = space
	}
	if frames <= 0 {
		return 0, nil
	}

	d.pending = append(d.pending, pcm[:frames*frameBytes]...)
	d.started = true
	return frames, nil
}

// AvailFrames implements Device.
func (d *Oto) AvailFrames() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrClosed
	}
	return (cap(d.pending) - len(d.pending)) / d.cfg.FrameBytes(), nil
}

// State implements Device.
func (d *Oto) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.open:
		return StateUnknown
	case d.underrun:
		return StateUnderrun
	case d.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Prepare implements Device.
func (d *Oto) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrClosed
	}
	d.underrun = false
	d.started = false
	d.pending = d.pending[:0]
	return nil
}

// Pause implements Device.
func (d *Oto) Pause(pause bool) error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	d.paused = pause
	player := d.player
	d.mu.Unlock()

	if pause {
		player.Pause()
	} else {
		player.Play()
	}
	return nil
}

// Close implements Device.
func (d *Oto) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	d.open = false
	player := d.player
	d.mu.Unlock()

	if player != nil {
		if err := player.Close(); err != nil {
			return fmt.Errorf("device: oto close: %w", err)
		}
	}
	return nil
}
