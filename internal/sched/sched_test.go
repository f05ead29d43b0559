package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/synthpipe/internal/device"
	"github.com/e7canasta/synthpipe/internal/ring"
	"github.com/e7canasta/synthpipe/internal/synth"
)

func TestPoolSize(t *testing.T) {
	cases := []struct {
		name         string
		rate         int
		frameSamples int
		frameBytes   int
		want         int
		wantErr      bool
	}{
		{"reference rate", 11025, 128, 512, 32, false},
		{"double rate doubles slots", 22050, 128, 512, 64, false},
		{"cd rate hits byte budget", 44100, 128, 512, 128, false},
		{"odd frame size", 22050, 100, 400, 81, false},
		{"low rate floors at four", 4000, 512, 2048, 4, false},
		{"giant frame unsupported", 22050, 8192, 32768, 0, true},
		{"zero rate unsupported", 0, 128, 512, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PoolSize(tc.rate, tc.frameSamples, tc.frameBytes)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedConfig) {
					t.Fatalf("err = %v, want ErrUnsupportedConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("slots = %d, want %d", got, tc.want)
			}
		})
	}
}

type fakeClock struct {
	cur time.Time
}

func (c *fakeClock) Now() time.Time { return c.cur }

func (c *fakeClock) advance(d time.Duration) { c.cur = c.cur.Add(d) }

// failRenderEngine errors on every Render call.
type failRenderEngine struct {
	*synth.SilentEngine
}

func (e *failRenderEngine) Render(dst []byte) (int, error) {
	return 0, errors.New("voice allocator corrupt")
}

func newTestScheduler(t *testing.T, eng synth.Engine, bufferPeriods int) (*Scheduler, *device.Mock, *ring.Ring, *fakeClock) {
	t.Helper()

	r := ring.New()
	bridge, err := synth.NewBridge(eng, r)
	if err != nil {
		t.Fatal(err)
	}
	mock := device.NewMock()
	cfg := bridge.Config()
	if err := mock.Open(device.Config{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.NumChannels,
		PeriodFrames:  cfg.MixBufferSize,
		BufferPeriods: bufferPeriods,
	}); err != nil {
		t.Fatal(err)
	}

	s, err := New(bridge, r, mock)
	if err != nil {
		t.Fatal(err)
	}
	clock := &fakeClock{cur: time.Unix(1000, 0)}
	s.now = clock.Now
	s.lastActivity = clock.cur
	return s, mock, r, clock
}

func openSilent(t *testing.T) *synth.SilentEngine {
	t.Helper()
	eng := synth.NewSilentEngine(synth.EngineConfig{
		SampleRate: 22050, NumChannels: 2, MixBufferSize: 128, MaxVoices: 64,
	})
	if err := eng.Init(); err != nil {
		t.Fatal(err)
	}
	if err := eng.OpenStream(); err != nil {
		t.Fatal(err)
	}
	return eng
}

func TestScheduler_PrefillQueuesSilenceThenPauses(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, _ := newTestScheduler(t, eng, 64)

	if err := s.Prefill(); err != nil {
		t.Fatal(err)
	}

	wantFrames := (s.PoolLen() - 2) * 128
	if mock.Buffered() != wantFrames {
		t.Errorf("buffered %d frames after prefill, want %d", mock.Buffered(), wantFrames)
	}
	if mock.PauseCalls != 1 {
		t.Errorf("pause calls = %d, want 1", mock.PauseCalls)
	}
	if !s.Stats().Paused {
		t.Error("scheduler not paused after prefill")
	}
}

func TestScheduler_FillStopsAtThreshold(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, _ := newTestScheduler(t, eng, 4)

	// Buffer holds 512 frames; fill renders while at least 384 are free.
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.Buffered() != 256 {
		t.Errorf("buffered %d frames, want 256", mock.Buffered())
	}

	// A second tick with no drain finds the margin gone.
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.Buffered() != 256 {
		t.Errorf("tick without drain wrote frames: buffered %d", mock.Buffered())
	}

	mock.Drain(128)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.Buffered() != 256 {
		t.Errorf("after drain+tick buffered %d frames, want 256", mock.Buffered())
	}
}

func TestScheduler_IdlePausesExactlyOnce(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, clock := newTestScheduler(t, eng, 4)

	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.PauseCalls != 0 {
		t.Fatal("paused before the idle timeout")
	}

	clock.advance(61 * time.Second)
	for i := 0; i < 5; i++ {
		if err := s.tick(); err != nil {
			t.Fatal(err)
		}
		clock.advance(10 * time.Millisecond)
	}
	if mock.PauseCalls != 1 {
		t.Errorf("pause calls = %d, want exactly 1", mock.PauseCalls)
	}
	if s := s.Stats(); !s.Paused || s.Pauses != 1 {
		t.Errorf("stats = %+v, want paused once", s)
	}
}

func TestScheduler_ActivityResumesPlayback(t *testing.T) {
	eng := openSilent(t)
	s, mock, r, clock := newTestScheduler(t, eng, 4)

	clock.advance(61 * time.Second)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if !s.Stats().Paused {
		t.Fatal("not paused before the event arrives")
	}

	msg := []byte{0x90, 60, 100}
	if err := r.Write(msg); err != nil {
		t.Fatal(err)
	}
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}

	if mock.UnpauseCalls != 1 {
		t.Errorf("unpause calls = %d, want 1", mock.UnpauseCalls)
	}
	if s.Stats().Paused {
		t.Error("still paused after event activity")
	}
	if len(eng.Received) != len(msg) {
		t.Errorf("engine received %d bytes, want %d", len(eng.Received), len(msg))
	}
}

// TestScheduler_RefusedPauseDefersRetry pins the backoff on a backend
// that cannot pause: the idle timer restarts instead of hammering the
// device every tick.
func TestScheduler_RefusedPauseDefersRetry(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, clock := newTestScheduler(t, eng, 4)
	mock.PauseErr = errors.New("pause unsupported")

	clock.advance(61 * time.Second)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.PauseCalls != 1 {
		t.Fatalf("pause calls = %d, want 1", mock.PauseCalls)
	}
	if s.Stats().Paused {
		t.Fatal("paused despite refusal")
	}

	clock.advance(30 * time.Second)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.PauseCalls != 1 {
		t.Errorf("retried pause before the timer elapsed again: %d calls", mock.PauseCalls)
	}

	mock.PauseErr = nil
	clock.advance(31 * time.Second)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.PauseCalls != 2 || !s.Stats().Paused {
		t.Errorf("pause calls = %d, paused = %v; want second attempt to stick", mock.PauseCalls, s.Stats().Paused)
	}
}

func TestScheduler_UnderrunRePreparesBeforeRendering(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, _ := newTestScheduler(t, eng, 4)

	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	mock.ForceUnderrun()

	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.PrepareCalls != 1 {
		t.Errorf("prepare calls = %d, want 1", mock.PrepareCalls)
	}
	if mock.Buffered() == 0 {
		t.Error("no frames written after recovery")
	}
	if s.Stats().Underruns != 1 {
		t.Errorf("underruns = %d, want 1", s.Stats().Underruns)
	}
}

// TestScheduler_RenderFailureSkipsWrite pins that a failed render
// neither writes the stale slot to the device nor advances the pool.
func TestScheduler_RenderFailureSkipsWrite(t *testing.T) {
	eng := &failRenderEngine{SilentEngine: openSilent(t)}
	s, mock, _, _ := newTestScheduler(t, eng, 4)

	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if len(mock.Written) != 0 {
		t.Errorf("wrote %d bytes from a failed render", len(mock.Written))
	}
	if s.pool.next != 0 {
		t.Errorf("pool advanced to slot %d after failed render", s.pool.next)
	}
	if s.Stats().RenderFails == 0 {
		t.Error("render failure not counted")
	}
}

// TestScheduler_PartialWriteRetriesToCompletion pins the retry
// bookkeeping: the device accepts PCM frames, so the resume offset
// must advance by the per-PCM-frame byte size, never by the render
// block size, or the tail of every partially-accepted frame is lost.
func TestScheduler_PartialWriteRetriesToCompletion(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, _ := newTestScheduler(t, eng, 4)
	mock.MaxWrite = 32 // frames per call; one 128-frame render needs 4 calls

	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if mock.Buffered() != 256 {
		t.Errorf("buffered %d frames, want 256 despite partial writes", mock.Buffered())
	}
	if s.Stats().FramesWritten != 256 {
		t.Errorf("frames written = %d, want 256", s.Stats().FramesWritten)
	}
	// 256 stereo S16LE frames, byte for byte.
	if got := len(mock.Written); got != 256*4 {
		t.Errorf("device received %d bytes, want %d", got, 256*4)
	}
}

// TestScheduler_RefusedUnpauseNotCountedAsUnpause verifies telemetry
// reflects what the device did: a refused unpause lands in its own
// counter while rendering still resumes.
func TestScheduler_RefusedUnpauseNotCountedAsUnpause(t *testing.T) {
	eng := openSilent(t)
	s, mock, r, clock := newTestScheduler(t, eng, 4)
	mock.UnpauseErr = errors.New("resume unsupported")

	clock.advance(61 * time.Second)
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}
	if !s.Stats().Paused {
		t.Fatal("not paused before the event arrives")
	}

	if err := r.Write([]byte{0x90, 60, 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.tick(); err != nil {
		t.Fatal(err)
	}

	st := s.Stats()
	if st.Unpauses != 0 || st.UnpausesRefused != 1 {
		t.Errorf("unpauses = %d refused = %d, want 0 and 1", st.Unpauses, st.UnpausesRefused)
	}
	if st.Paused {
		t.Error("refusal kept the scheduler paused")
	}
	if mock.Buffered() == 0 {
		t.Error("rendering did not resume after the refused unpause")
	}
}

func TestScheduler_HardWriteErrorAbortsTick(t *testing.T) {
	eng := openSilent(t)
	s, mock, _, _ := newTestScheduler(t, eng, 4)
	mock.WriteErr = errors.New("device gone")

	if err := s.tick(); err == nil {
		t.Error("tick swallowed a hard write error")
	}
}
