package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Gst is the GStreamer output backend.
//
// Pipeline structure:
//
//	appsrc -> audioconvert -> audioresample -> autoaudiosink
//
// The appsrc queue is capped at the configured hardware buffer size;
// its fill level is what AvailFrames reports, so the scheduler's pacing
// works the same as against the oto backend. Pipeline bus errors are
// surfaced through State as an underrun-equivalent condition and
// cleared by Prepare.
type Gst struct {
	mu sync.Mutex

	cfg      Config
	pipeline *gst.Pipeline
	src      *app.Source
	open     bool
	paused   bool

	busErr atomic.Bool

	cancelMonitor context.CancelFunc
	monitorDone   chan struct{}
}

// NewGst returns an unopened GStreamer-backed device.
func NewGst() *Gst {
	return &Gst{}
}

// Open implements Device.
func (d *Gst) Open(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("device: gst pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("device: gst appsrc: %w", err)
	}
	capsStr := fmt.Sprintf(
		"audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d",
		cfg.SampleRate, cfg.Channels,
	)
	src.SetCaps(gst.NewCapsFromString(capsStr))
	src.Element.SetProperty("is-live", true)
	src.Element.SetProperty("block", false)
	src.Element.SetProperty("max-bytes", uint64(cfg.BufferBytes()))

	convert, err := gst.NewElement("audioconvert")
	if err != nil {
		return fmt.Errorf("device: gst audioconvert: %w", err)
	}
	resample, err := gst.NewElement("audioresample")
	if err != nil {
		return fmt.Errorf("device: gst audioresample: %w", err)
	}
	sink, err := gst.NewElement("autoaudiosink")
	if err != nil {
		return fmt.Errorf("device: gst autoaudiosink: %w", err)
	}
	sink.SetProperty("sync", true)

	if err := pipeline.AddMany(src.Element, convert, resample, sink); err != nil {
		return fmt.Errorf("device: gst add: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, convert, resample, sink); err != nil {
		return fmt.Errorf("device: gst link: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("device: gst start: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	d.mu.Lock()
	d.cfg = cfg
	d.pipeline = pipeline
	d.src = src
	d.open = true
	d.cancelMonitor = cancel
	d.monitorDone = done
	d.mu.Unlock()

	go d.monitorBus(ctx, done)

	slog.Info("device: gst output opened",
		"rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"caps", capsStr,
	)
	return nil
}

// monitorBus watches the pipeline bus for errors and end-of-stream,
// mirroring the state into busErr for State to report.
func (d *Gst) monitorBus(ctx context.Context, done chan struct{}) {
	defer close(done)

	bus := d.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("device: gst pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			d.busErr.Store(true)
		case gst.MessageEOS:
			slog.Warn("device: gst unexpected end of stream")
			d.busErr.Store(true)
		}
	}
}

// WriteFrames implements Device.
func (d *Gst) WriteFrames(pcm []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrClosed
	}

	frameBytes := d.cfg.FrameBytes()
	avail := d.availBytesLocked() / frameBytes
	frames := len(pcm) / frameBytes
	if frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return 0, nil
	}

	buf := gst.NewBufferFromBytes(pcm[:frames*frameBytes])
	if ret := d.src.PushBuffer(buf); ret != gst.FlowOK {
		return 0, fmt.Errorf("device: gst push rejected: %s", ret)
	}
	return frames, nil
}

func (d *Gst) availBytesLocked() int {
	level, err := d.src.Element.GetProperty("current-level-bytes")
	if err != nil {
		return d.cfg.BufferBytes()
	}
	queued, ok := level.(uint64)
	if !ok {
		return d.cfg.BufferBytes()
	}
	free := d.cfg.BufferBytes() - int(queued)
	if free < 0 {
		free = 0
	}
	return free
}

// AvailFrames implements Device.
func (d *Gst) AvailFrames() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrClosed
	}
	return d.availBytesLocked() / d.cfg.FrameBytes(), nil
}

// State implements Device.
func (d *Gst) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case !d.open:
		return StateUnknown
	case d.busErr.Load():
		return StateUnderrun
	case d.paused:
		return StatePaused
	default:
		return StateRunning
	}
}

// Prepare implements Device.
func (d *Gst) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrClosed
	}
	d.busErr.Store(false)
	// Flush and restart the pipeline to clear the error state.
	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("device: gst reset: %w", err)
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("device: gst restart: %w", err)
	}
	d.paused = false
	return nil
}

// Pause implements Device.
func (d *Gst) Pause(pause bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrClosed
	}

	target := gst.StatePlaying
	if pause {
		target = gst.StatePaused
	}
	if err := d.pipeline.SetState(target); err != nil {
		return fmt.Errorf("device: gst pause(%v): %w", pause, err)
	}
	d.paused = pause
	return nil
}

// Close implements Device.
func (d *Gst) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	d.open = false
	cancel := d.cancelMonitor
	done := d.monitorDone
	pipeline := d.pipeline
	d.mu.Unlock()

	cancel()
	<-done

	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("device: gst stop: %w", err)
	}
	return nil
}
