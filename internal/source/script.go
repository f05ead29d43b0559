package source

import (
	"sync"

	"github.com/e7canasta/synthpipe/internal/protocol"
)

// Script is an in-memory source that replays a fixed event sequence
// and then blocks until closed. It backs the pipeline tests and
// headless runs.
type Script struct {
	mu         sync.Mutex
	closed     chan struct{}
	once       sync.Once
	pending    chan protocol.Event
	Connected  bool
	Advertised bool

	// Knobs for failure-injection tests.
	ConnectErr   error
	AdvertiseErr error
}

// NewScript returns a source preloaded with events.
func NewScript(events ...protocol.Event) *Script {
	s := &Script{
		closed:  make(chan struct{}),
		pending: make(chan protocol.Event, len(events)+16),
	}
	for _, ev := range events {
		s.pending <- ev
	}
	return s
}

// Push queues one more event.
func (s *Script) Push(ev protocol.Event) {
	select {
	case s.pending <- ev:
	case <-s.closed:
	}
}

// Connect implements Source.
func (s *Script) Connect() error {
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.mu.Lock()
	s.Connected = true
	s.mu.Unlock()
	return nil
}

// AdvertisePort implements Source.
func (s *Script) AdvertisePort() error {
	if s.AdvertiseErr != nil {
		return s.AdvertiseErr
	}
	s.mu.Lock()
	s.Advertised = true
	s.mu.Unlock()
	return nil
}

// Receive implements Source.
func (s *Script) Receive() (protocol.Event, error) {
	select {
	case ev := <-s.pending:
		return ev, nil
	case <-s.closed:
		// Drain anything queued before the close won the race.
		select {
		case ev := <-s.pending:
			return ev, nil
		default:
			return protocol.Event{}, ErrClosed
		}
	}
}

// Close implements Source.
func (s *Script) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
