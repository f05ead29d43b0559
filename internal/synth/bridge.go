package synth

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/synthpipe/internal/ring"
)

// Bridge couples the event ring to an engine: it drains buffered
// protocol bytes into the engine's MIDI stream and renders one frame at
// a time on demand. Main-goroutine only.
type Bridge struct {
	engine Engine
	ring   *ring.Ring
	cfg    EngineConfig

	framesRendered atomic.Uint64
	bytesPumped    atomic.Uint64
	renderErrors   atomic.Uint64
}

// NewBridge validates the engine's reported format and returns a bridge
// over the given ring.
func NewBridge(engine Engine, r *ring.Ring) (*Bridge, error) {
	cfg := engine.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bridge{engine: engine, ring: r, cfg: cfg}, nil
}

// Config returns the engine's render format.
func (b *Bridge) Config() EngineConfig {
	return b.cfg
}

// PumpEvents drains all buffered protocol bytes into the engine and
// returns the byte count. A write error is logged and the remaining
// chunk is dropped; the stream self-corrects at the next full-status
// event.
func (b *Bridge) PumpEvents() int {
	n := b.ring.ReadPending(func(chunk []byte) {
		if err := b.engine.WriteMIDI(chunk); err != nil {
			slog.Error("synth: midi write failed", "bytes", len(chunk), "error", err)
		}
	})
	if n > 0 {
		b.bytesPumped.Add(uint64(n))
	}
	return n
}

// RenderFrame synthesizes exactly one frame into dst. dst must be at
// least Config().FrameBytes() long. A short render is an error; the
// caller must not write dst to the device.
func (b *Bridge) RenderFrame(dst []byte) error {
	want := b.cfg.FrameBytes()
	n, err := b.engine.Render(dst[:want])
	if err != nil {
		b.renderErrors.Add(1)
		return fmt.Errorf("synth: render: %w", err)
	}
	if n != want {
		b.renderErrors.Add(1)
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortRender, n, want)
	}
	b.framesRendered.Add(1)
	return nil
}

// BridgeStats is a snapshot of the bridge counters.
type BridgeStats struct {
	FramesRendered uint64
	BytesPumped    uint64
	RenderErrors   uint64
}

// Stats returns the current counter values.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		FramesRendered: b.framesRendered.Load(),
		BytesPumped:    b.bytesPumped.Load(),
		RenderErrors:   b.renderErrors.Load(),
	}
}
