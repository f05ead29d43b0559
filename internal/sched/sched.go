package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/synthpipe/internal/device"
	"github.com/e7canasta/synthpipe/internal/ring"
	"github.com/e7canasta/synthpipe/internal/synth"
)

const (
	// tickInterval is the render loop cadence.
	tickInterval = 10 * time.Millisecond

	// idleTimeout is how long the event stream must stay silent before
	// playback is paused to release the output device.
	idleTimeout = 60 * time.Second

	// fillThreshold is the multiple of the frame size the device must
	// have free before the fill loop renders.
	fillThreshold = 3
)

// errWriteStalled means the device accepted zero frames mid-write.
var errWriteStalled = errors.New("sched: device write stalled")

// Scheduler drives the render side of the pipeline: each tick it
// checks event activity, applies the idle-pause heuristic, recovers
// underruns and tops up the device from the frame pool. Single
// goroutine; only the ring's consumer index and activity flag are
// shared with the producer.
type Scheduler struct {
	bridge *synth.Bridge
	ring   *ring.Ring
	dev    device.Device
	pool   *FramePool

	frameSamples int // PCM frames per render call
	pcmBytes     int // bytes per single PCM frame

	lastActivity time.Time
	paused       bool

	// now is the clock, injectable for the idle-heuristic tests.
	now func() time.Time

	framesWritten   atomic.Uint64
	underruns       atomic.Uint64
	pauses          atomic.Uint64
	unpauses        atomic.Uint64
	unpausesRefused atomic.Uint64
	renderFails     atomic.Uint64
	pausedFlag      atomic.Bool
}

// New sizes the frame pool for the bridge's render format and returns
// a scheduler over the given device.
func New(bridge *synth.Bridge, r *ring.Ring, dev device.Device) (*Scheduler, error) {
	cfg := bridge.Config()
	frameBytes := cfg.FrameBytes()

	n, err := PoolSize(cfg.SampleRate, cfg.MixBufferSize, frameBytes)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		bridge:       bridge,
		ring:         r,
		dev:          dev,
		pool:         NewFramePool(n, frameBytes),
		frameSamples: cfg.MixBufferSize,
		pcmBytes:     cfg.NumChannels * 2,
		now:          time.Now,
	}
	slog.Info("sched: frame pool sized",
		"slots", n,
		"frame_bytes", frameBytes,
		"rate", cfg.SampleRate,
	)
	return s, nil
}

// PoolLen returns the frame pool slot count.
func (s *Scheduler) PoolLen() int {
	return s.pool.Len()
}

// Prefill queues silence ahead of the first rendered frame so playback
// does not start against an empty device buffer, then pauses output
// until events arrive. The first two slots are held back for the fill
// loop's initial renders.
func (s *Scheduler) Prefill() error {
	for i := 2; i < s.pool.Len(); i++ {
		if err := s.writeFrame(s.pool.Slot(i)); err != nil {
			return fmt.Errorf("sched: prefill: %w", err)
		}
	}
	if err := s.dev.Pause(true); err != nil {
		slog.Warn("sched: initial pause refused", "error", err)
	} else {
		s.paused = true
		s.pausedFlag.Store(true)
	}
	s.lastActivity = s.now()
	return nil
}

// Run ticks the scheduler until ctx is cancelled. Errors inside a tick
// are logged and bounded to that tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sched: stopping", "frames_written", s.framesWritten.Load())
			return
		case <-ticker.C:
			if err := s.tick(); err != nil {
				slog.Error("sched: tick failed", "error", err)
			}
		}
	}
}

// tick runs one scheduling pass.
func (s *Scheduler) tick() error {
	now := s.now()

	if s.ring.TakeActivity() {
		s.lastActivity = now
		if s.paused {
			if err := s.dev.Pause(false); err != nil {
				slog.Warn("sched: unpause refused", "error", err)
				s.unpausesRefused.Add(1)
			} else {
				s.unpauses.Add(1)
			}
			// Best effort: resume rendering either way so buffered
			// events are consumed.
			s.paused = false
			s.pausedFlag.Store(false)
		}
	} else if !s.paused && now.Sub(s.lastActivity) > idleTimeout {
		if err := s.dev.Pause(true); err != nil {
			slog.Warn("sched: idle pause refused", "error", err)
			s.lastActivity = now
		} else {
			s.paused = true
			s.pausedFlag.Store(true)
			s.pauses.Add(1)
			slog.Info("sched: paused after idle period")
		}
	}

	if s.paused {
		return nil
	}

	if s.dev.State() == device.StateUnderrun {
		s.underruns.Add(1)
		slog.Warn("sched: underrun, re-preparing device")
		if err := s.dev.Prepare(); err != nil {
			return fmt.Errorf("sched: prepare: %w", err)
		}
	}

	return s.fill()
}

// fill tops up the device while it has room for a comfortable margin
// of frames. Each iteration drains pending events into the engine,
// renders one frame and writes it. A render failure leaves the slot
// unwritten and ends the pass.
func (s *Scheduler) fill() error {
	for {
		avail, err := s.dev.AvailFrames()
		if err != nil {
			return fmt.Errorf("sched: avail: %w", err)
		}
		if avail < fillThreshold*s.frameSamples {
			return nil
		}

		s.bridge.PumpEvents()

		slot := s.pool.Current()
		if err := s.bridge.RenderFrame(slot); err != nil {
			s.renderFails.Add(1)
			slog.Error("sched: render failed", "error", err)
			return nil
		}
		if err := s.writeFrame(slot); err != nil {
			return err
		}
		s.pool.Advance()
	}
}

// writeFrame pushes one full frame to the device, retrying partial
// writes. The device reports progress in PCM frames, so the byte
// offset advances by the per-PCM-frame size. Zero progress means the
// device contract is broken.
func (s *Scheduler) writeFrame(slot []byte) error {
	for off := 0; off < len(slot); {
		n, err := s.dev.WriteFrames(slot[off:])
		if err != nil {
			return fmt.Errorf("sched: write: %w", err)
		}
		if n <= 0 {
			return errWriteStalled
		}
		off += n * s.pcmBytes
		s.framesWritten.Add(uint64(n))
	}
	return nil
}

// Stats is a snapshot of the scheduler counters. Unpauses counts only
// calls the device accepted; refusals are tallied separately.
type Stats struct {
	FramesWritten   uint64
	Underruns       uint64
	Pauses          uint64
	Unpauses        uint64
	UnpausesRefused uint64
	RenderFails     uint64
	Paused          bool
}

// Stats returns the current counter values. Safe from any goroutine.
func (s *Scheduler) Stats() Stats {
	return Stats{
		FramesWritten:   s.framesWritten.Load(),
		Underruns:       s.underruns.Load(),
		Pauses:          s.pauses.Load(),
		Unpauses:        s.unpauses.Load(),
		UnpausesRefused: s.unpausesRefused.Load(),
		RenderFails:     s.renderFails.Load(),
		Paused:          s.pausedFlag.Load(),
	}
}
