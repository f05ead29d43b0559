package synth

import (
	"bytes"
	"errors"
	"testing"

	"github.com/e7canasta/synthpipe/internal/ring"
)

func devConfig() EngineConfig {
	return EngineConfig{SampleRate: 22050, NumChannels: 2, MixBufferSize: 128, MaxVoices: 64}
}

func TestBridge_PumpDeliversBufferedBytes(t *testing.T) {
	r := ring.New()
	eng := NewSilentEngine(devConfig())
	if err := eng.Init(); err != nil {
		t.Fatal(err)
	}
	if err := eng.OpenStream(); err != nil {
		t.Fatal(err)
	}
	b, err := NewBridge(eng, r)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte{0x93, 60, 100, 64, 90}
	if err := r.Write(msg); err != nil {
		t.Fatal(err)
	}

	if n := b.PumpEvents(); n != len(msg) {
		t.Errorf("pumped %d bytes, want %d", n, len(msg))
	}
	if !bytes.Equal(eng.Received, msg) {
		t.Errorf("engine received % x, want % x", eng.Received, msg)
	}
	if n := b.PumpEvents(); n != 0 {
		t.Errorf("second pump moved %d bytes, want 0", n)
	}
}

func TestBridge_RenderFrameProducesSilence(t *testing.T) {
	eng := NewSilentEngine(devConfig())
	eng.Init()
	eng.OpenStream()
	b, err := NewBridge(eng, ring.New())
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]byte, b.Config().FrameBytes())
	for i := range dst {
		dst[i] = 0xAA
	}
	if err := b.RenderFrame(dst); err != nil {
		t.Fatal(err)
	}
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("byte %d = %#x, want silence", i, v)
		}
	}
	if s := b.Stats(); s.FramesRendered != 1 {
		t.Errorf("frames rendered = %d, want 1", s.FramesRendered)
	}
}

// shortEngine renders fewer bytes than its configured frame size.
type shortEngine struct {
	SilentEngine
}

func (e *shortEngine) Render(dst []byte) (int, error) {
	return e.cfg.FrameBytes() / 2, nil
}

func TestBridge_ShortRenderIsAnError(t *testing.T) {
	eng := &shortEngine{SilentEngine: *NewSilentEngine(devConfig())}
	eng.Init()
	eng.OpenStream()
	b, err := NewBridge(eng, ring.New())
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]byte, b.Config().FrameBytes())
	err = b.RenderFrame(dst)
	if !errors.Is(err, ErrShortRender) {
		t.Errorf("err = %v, want ErrShortRender", err)
	}
	if s := b.Stats(); s.RenderErrors != 1 || s.FramesRendered != 0 {
		t.Errorf("stats = %+v, want 1 render error, 0 frames", s)
	}
}

func TestBridge_RejectsInvalidEngineConfig(t *testing.T) {
	eng := NewSilentEngine(EngineConfig{SampleRate: 0, NumChannels: 2, MixBufferSize: 128})
	if _, err := NewBridge(eng, ring.New()); err == nil {
		t.Error("zero sample rate accepted")
	}
}
