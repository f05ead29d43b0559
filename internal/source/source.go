// Package source delivers live performance events to the pipeline.
// The production implementation advertises a named virtual MIDI input
// port through gomidi/rtmidi; a scriptable in-memory source backs the
// pipeline tests.
package source

import (
	"errors"

	"github.com/e7canasta/synthpipe/internal/protocol"
)

// ErrClosed is returned by Receive after Close; the consumer treats it
// as the end of the stream.
var ErrClosed = errors.New("source: closed")

// Source is the performance-event input contract.
//
// Connect and Receive are called from the consumer goroutine;
// AdvertisePort and Close from the orchestrator. Close must unblock a
// pending Receive.
type Source interface {
	// Connect prepares the underlying driver without yet accepting
	// events.
	Connect() error

	// AdvertisePort opens the externally visible input port and starts
	// delivering events.
	AdvertisePort() error

	// Receive blocks until the next event or until the source closes.
	Receive() (protocol.Event, error)

	// Close tears the port down and unblocks Receive.
	Close() error
}
