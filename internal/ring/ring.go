// Package ring implements the single-producer/single-consumer byte queue
// that connects the event consumer goroutine to the output scheduler.
//
// The queue is lock-free by construction: the write index is mutated only
// by the producer, the read index only by the reader, and both are
// published through atomics so each side observes the other's progress.
// At most Capacity-1 bytes may be outstanding; the one-byte gap is what
// distinguishes a full queue from an empty one.
package ring

import (
	"errors"
	"sync/atomic"
)

// Capacity is the fixed size of the backing array in bytes.
const Capacity = 65536

// ErrOverflow is returned by Write when an event does not fit into the
// current free space. The write is rejected as a whole; the queue is
// never left with a partial event.
var ErrOverflow = errors.New("ring: event exceeds free space")

// Ring is a fixed-capacity SPSC byte queue.
//
// Write may be called from exactly one goroutine (the producer) and
// ReadPending/TakeActivity from exactly one other (the reader). The
// indices are never handed out; all access goes through the methods.
type Ring struct {
	buf [Capacity]byte

	writeIdx atomic.Uint32 // producer-owned
	readIdx  atomic.Uint32 // reader-owned

	// activity is set on every accepted write and swapped out by the
	// reader once per scheduler tick.
	activity atomic.Bool

	overflows atomic.Uint64
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{}
}

// Write appends p to the queue. If p does not fit into the free space
// the entire write is rejected with ErrOverflow and the queue state is
// unchanged. Producer side only.
func (r *Ring) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	free := (rd - w - 1) & (Capacity - 1)

	n := uint32(len(p))
	if n > free {
		r.overflows.Add(1)
		return ErrOverflow
	}

	if first := Capacity - w; n <= first {
		copy(r.buf[w:], p)
	} else {
		copy(r.buf[w:], p[:first])
		copy(r.buf[:], p[first:])
	}

	r.writeIdx.Store((w + n) & (Capacity - 1))
	r.activity.Store(true)
	return nil
}

// ReadPending snapshots the region published by the producer and hands
// it to sink without copying: one chunk when the region is contiguous,
// two when it wraps the end of the backing array. The read index then
// advances to the snapshot. The chunks are only valid for the duration
// of the call. Reader side only. Returns the number of bytes consumed.
func (r *Ring) ReadPending(sink func(chunk []byte)) int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	if rd == w {
		return 0
	}

	var n int
	if rd < w {
		sink(r.buf[rd:w])
		n = int(w - rd)
	} else {
		sink(r.buf[rd:])
		sink(r.buf[:w])
		n = int(Capacity - rd + w)
	}

	r.readIdx.Store(w)
	return n
}

// TakeActivity reports whether any write was accepted since the last
// call, clearing the flag. Reader side only.
func (r *Ring) TakeActivity() bool {
	return r.activity.Swap(false)
}

// Buffered returns the number of bytes currently outstanding. The value
// is a snapshot; it is exact on either owning goroutine and approximate
// elsewhere.
func (r *Ring) Buffered() int {
	w := r.writeIdx.Load()
	rd := r.readIdx.Load()
	return int((w - rd) & (Capacity - 1))
}

// FreeSpace returns the number of bytes a Write can currently accept.
func (r *Ring) FreeSpace() int {
	return Capacity - 1 - r.Buffered()
}

// Overflows returns the total number of rejected writes.
func (r *Ring) Overflows() uint64 {
	return r.overflows.Load()
}
