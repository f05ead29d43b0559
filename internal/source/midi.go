package source

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/e7canasta/synthpipe/internal/protocol"
)

// eventQueueDepth bounds the handoff between the driver's callback
// thread and the consumer goroutine. Overflow drops the newest event;
// the driver callback must never block.
const eventQueueDepth = 256

// MIDISource exposes a named virtual MIDI input port and delivers the
// translated event stream. Port lifecycle transitions are surfaced as
// subscription notification events.
type MIDISource struct {
	clientName string

	mu     sync.Mutex
	drv    *rtmididrv.Driver
	in     drivers.In
	stopFn func()
	closed bool

	events chan protocol.Event
	drops  atomic.Uint64
}

// NewMIDISource returns a source that will advertise clientName.
func NewMIDISource(clientName string) *MIDISource {
	return &MIDISource{
		clientName: clientName,
		events:     make(chan protocol.Event, eventQueueDepth),
	}
}

// Connect implements Source.
func (s *MIDISource) Connect() error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("source: midi driver: %w", err)
	}
	s.mu.Lock()
	s.drv = drv
	s.mu.Unlock()
	return nil
}

// AdvertisePort implements Source: it opens the virtual input port and
// starts the driver callback.
func (s *MIDISource) AdvertisePort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil {
		return fmt.Errorf("source: not connected")
	}

	in, err := s.drv.OpenVirtualIn(s.clientName)
	if err != nil {
		return fmt.Errorf("source: open virtual port %q: %w", s.clientName, err)
	}

	stopFn, err := midi.ListenTo(in, s.handle, midi.UseSysEx())
	if err != nil {
		in.Close()
		return fmt.Errorf("source: listen: %w", err)
	}

	s.in = in
	s.stopFn = stopFn
	s.deliver(protocol.Event{Kind: protocol.KindSubscribed, Client: s.clientName})

	slog.Info("source: virtual port open", "client", s.clientName)
	return nil
}

// handle runs on the driver callback thread.
func (s *MIDISource) handle(msg midi.Message, timestampms int32) {
	ev, ok := translate(msg)
	if !ok {
		slog.Debug("source: unhandled message", "type", msg.Type().String())
		return
	}
	s.deliver(ev)
}

func (s *MIDISource) deliver(ev protocol.Event) {
	select {
	case s.events <- ev:
	default:
		if s.drops.Add(1)%100 == 1 {
			slog.Warn("source: event queue full, dropping",
				"kind", ev.Kind.String(),
				"total_drops", s.drops.Load(),
			)
		}
	}
}

// Receive implements Source.
func (s *MIDISource) Receive() (protocol.Event, error) {
	ev, ok := <-s.events
	if !ok {
		return protocol.Event{}, ErrClosed
	}
	return ev, nil
}

// Close implements Source.
func (s *MIDISource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.stopFn != nil {
		s.stopFn()
	}
	if s.in != nil {
		if err := s.in.Close(); err != nil {
			slog.Warn("source: port close", "error", err)
		}
	}
	if s.drv != nil {
		s.drv.Close()
	}
	if s.in != nil {
		s.deliver(protocol.Event{Kind: protocol.KindUnsubscribed, Client: s.clientName})
	}
	close(s.events)

	if d := s.drops.Load(); d > 0 {
		slog.Warn("source: events dropped at queue", "count", d)
	}
	return nil
}

// Drops returns the number of events discarded at the queue boundary.
func (s *MIDISource) Drops() uint64 {
	return s.drops.Load()
}
