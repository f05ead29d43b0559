// Package pipeline wires the event source, ring, encoder, synth bridge,
// scheduler and output device into one orchestrated lifecycle: staged
// startup with distinct exit codes, exactly two steady-state
// goroutines, and an orderly reverse-order shutdown.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/synthpipe/internal/device"
	"github.com/e7canasta/synthpipe/internal/protocol"
	"github.com/e7canasta/synthpipe/internal/ring"
	"github.com/e7canasta/synthpipe/internal/sched"
	"github.com/e7canasta/synthpipe/internal/source"
	"github.com/e7canasta/synthpipe/internal/synth"
)

// consumerPollInterval paces the consumer's wait for activation.
const consumerPollInterval = 10 * time.Millisecond

// Options configures an orchestrator. Engine, Device and Source are
// required; the rest carries the tuning knobs applied during synth
// initialization.
type Options struct {
	Engine synth.Engine
	Device device.Device
	Source source.Source

	// SampleBank is loaded into the engine when non-nil.
	SampleBank synth.SampleBank

	// Volume 0-100; -1 leaves the engine default.
	Volume int
	// Polyphony cap; -1 leaves the engine default.
	Polyphony int
	// Reverb is applied when Preset > 0.
	Reverb synth.ReverbConfig
	// Chorus is applied when Preset > 0.
	Chorus synth.ChorusConfig

	// AfterReady runs once the consumer is ready, before the hardware
	// opens. Used to drop elevated privileges; failures are logged, not
	// fatal.
	AfterReady func() error
}

// Orchestrator owns the pipeline lifecycle.
type Orchestrator struct {
	opts Options

	ring   *ring.Ring
	bridge *synth.Bridge
	sched  *sched.Scheduler

	// lifecycle is the consumer's activation flag: 0 wait, positive
	// active, negative terminate.
	lifecycle atomic.Int32

	consumerDone chan struct{}
	eventsSeen   atomic.Uint64
}

// New validates the options and builds the pipeline plumbing. The
// engine's render format is checked here so an unschedulable
// configuration fails before anything is initialized.
func New(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil || opts.Device == nil || opts.Source == nil {
		return nil, errors.New("pipeline: engine, device and source are required")
	}

	r := ring.New()
	bridge, err := synth.NewBridge(opts.Engine, r)
	if err != nil {
		return nil, &StageError{Stage: StageSynthInit, Err: err}
	}
	s, err := sched.New(bridge, r, opts.Device)
	if err != nil {
		return nil, &StageError{Stage: StageSynthInit, Err: err}
	}

	return &Orchestrator{
		opts:         opts,
		ring:         r,
		bridge:       bridge,
		sched:        s,
		consumerDone: make(chan struct{}),
	}, nil
}

// Run executes the full lifecycle: staged startup, steady-state
// scheduling until ctx is cancelled, then shutdown. A non-nil error is
// always a *StageError carrying the exit code.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.initSynth(); err != nil {
		return &StageError{Stage: StageSynthInit, Err: err}
	}

	ready := make(chan error, 1)
	go o.consume(ready)

	select {
	case err := <-ready:
		if err != nil {
			o.shutdownSynth()
			return &StageError{Stage: StageConsumerStart, Err: err}
		}
	case <-ctx.Done():
		o.stopConsumer()
		o.shutdownSynth()
		return nil
	}
	slog.Info("pipeline: consumer ready")

	if o.opts.AfterReady != nil {
		if err := o.opts.AfterReady(); err != nil {
			slog.Warn("pipeline: after-ready hook failed", "error", err)
		}
	}

	cfg := o.bridge.Config()
	if err := o.opts.Device.Open(device.Config{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.NumChannels,
		PeriodFrames:  cfg.MixBufferSize,
		BufferPeriods: o.sched.PoolLen(),
	}); err != nil {
		o.stopConsumer()
		o.shutdownSynth()
		return &StageError{Stage: StageDeviceOpen, Err: err}
	}
	if err := o.sched.Prefill(); err != nil {
		o.opts.Device.Close()
		o.stopConsumer()
		o.shutdownSynth()
		return &StageError{Stage: StageDeviceOpen, Err: err}
	}

	if err := o.opts.Source.AdvertisePort(); err != nil {
		o.opts.Device.Close()
		o.stopConsumer()
		o.shutdownSynth()
		return &StageError{Stage: StageSourceOpen, Err: err}
	}

	o.lifecycle.Store(1)
	slog.Info("pipeline: running")
	o.sched.Run(ctx)

	slog.Info("pipeline: terminating")
	o.stopConsumer()
	if err := o.opts.Device.Close(); err != nil {
		slog.Warn("pipeline: device close", "error", err)
	}
	o.shutdownSynth()
	return nil
}

// initSynth performs the SynthInitialized stage: engine allocation,
// sample bank, tuning knobs, MIDI stream.
func (o *Orchestrator) initSynth() error {
	eng := o.opts.Engine
	if err := eng.Init(); err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	if o.opts.SampleBank != nil {
		if err := eng.LoadSampleBank(o.opts.SampleBank); err != nil {
			eng.Shutdown()
			return fmt.Errorf("sample bank: %w", err)
		}
	}
	if o.opts.Volume >= 0 {
		if err := eng.SetVolume(o.opts.Volume); err != nil {
			slog.Warn("pipeline: set volume", "error", err)
		}
	}
	if o.opts.Polyphony >= 0 {
		if err := eng.SetPolyphony(o.opts.Polyphony); err != nil {
			slog.Warn("pipeline: set polyphony", "error", err)
		}
	}
	if o.opts.Reverb.Preset > 0 {
		if err := eng.SetReverb(o.opts.Reverb); err != nil {
			slog.Warn("pipeline: set reverb", "error", err)
		}
	}
	if o.opts.Chorus.Preset > 0 {
		if err := eng.SetChorus(o.opts.Chorus); err != nil {
			slog.Warn("pipeline: set chorus", "error", err)
		}
	}
	if err := eng.OpenStream(); err != nil {
		eng.Shutdown()
		return fmt.Errorf("open stream: %w", err)
	}
	return nil
}

func (o *Orchestrator) shutdownSynth() {
	if err := o.opts.Engine.CloseStream(); err != nil {
		slog.Warn("pipeline: close stream", "error", err)
	}
	if err := o.opts.Engine.Shutdown(); err != nil {
		slog.Warn("pipeline: engine shutdown", "error", err)
	}
}

// stopConsumer flips the lifecycle flag, closes the source to unblock
// a pending receive and waits for the goroutine to drain.
func (o *Orchestrator) stopConsumer() {
	o.lifecycle.Store(-1)
	if err := o.opts.Source.Close(); err != nil {
		slog.Warn("pipeline: source close", "error", err)
	}
	<-o.consumerDone
}

// consume is the consumer goroutine: it connects the source, reports
// readiness, waits for activation and then encodes every received
// event into the ring.
func (o *Orchestrator) consume(ready chan<- error) {
	defer close(o.consumerDone)

	if err := o.opts.Source.Connect(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	for o.lifecycle.Load() == 0 {
		time.Sleep(consumerPollInterval)
	}
	if o.lifecycle.Load() < 0 {
		return
	}

	enc := protocol.NewEncoder(o.ring)
	for o.lifecycle.Load() > 0 {
		ev, err := o.opts.Source.Receive()
		if err != nil {
			if errors.Is(err, source.ErrClosed) {
				return
			}
			slog.Error("pipeline: receive", "error", err)
			continue
		}
		o.eventsSeen.Add(1)
		enc.Encode(ev)
	}
}

// Snapshot aggregates the pipeline counters for telemetry.
type Snapshot struct {
	EventsSeen    uint64 `json:"events_seen"`
	BytesPumped   uint64 `json:"bytes_pumped"`
	FramesWritten uint64 `json:"frames_written"`
	Underruns     uint64 `json:"underruns"`
	RingOverflows uint64 `json:"ring_overflows"`
	Paused        bool   `json:"paused"`
}

// Stats returns a point-in-time snapshot. Safe from any goroutine.
func (o *Orchestrator) Stats() Snapshot {
	bs := o.bridge.Stats()
	ss := o.sched.Stats()
	return Snapshot{
		EventsSeen:    o.eventsSeen.Load(),
		BytesPumped:   bs.BytesPumped,
		FramesWritten: ss.FramesWritten,
		Underruns:     ss.Underruns,
		RingOverflows: o.ring.Overflows(),
		Paused:        ss.Paused,
	}
}
