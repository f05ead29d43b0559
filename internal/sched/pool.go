// Package sched paces audio rendering against the output device: a
// fixed pool of pre-allocated PCM frames, a 10 ms tick, an idle-pause
// heuristic and underrun recovery.
package sched

import (
	"errors"
	"fmt"
)

// ErrUnsupportedConfig means no valid pool size exists for the render
// format; the pipeline must refuse to start.
var ErrUnsupportedConfig = errors.New("sched: unsupported render configuration")

// poolBudgetBytes caps the pool's total allocation.
const poolBudgetBytes = 65536

// PoolSize computes the number of frame slots for the given render
// format: proportional to the sample rate relative to a 4096-slot
// budget at 11025 Hz, raised to a floor of 4 and capped so the pool
// stays within its byte budget. A format whose cap falls under the
// floor is unsupported.
func PoolSize(sampleRate, frameSamples, frameBytes int) (int, error) {
	if sampleRate <= 0 || frameSamples <= 0 || frameBytes <= 0 {
		return 0, ErrUnsupportedConfig
	}

	n := (4096 * sampleRate) / (11025 * frameSamples)
	if n < 4 {
		n = 4
	}
	if max := poolBudgetBytes / frameBytes; n > max {
		n = max
	}
	if n < 4 {
		return 0, fmt.Errorf("%w: frame of %d bytes leaves fewer than 4 slots", ErrUnsupportedConfig, frameBytes)
	}
	return n, nil
}

// FramePool is a ring of pre-allocated, zero-initialized PCM frame
// slots. Allocation happens once at startup; the steady-state render
// path never touches the allocator.
type FramePool struct {
	slots [][]byte
	next  int
}

// NewFramePool allocates n slots of frameBytes each.
func NewFramePool(n, frameBytes int) *FramePool {
	slots := make([][]byte, n)
	backing := make([]byte, n*frameBytes)
	for i := range slots {
		slots[i] = backing[i*frameBytes : (i+1)*frameBytes]
	}
	return &FramePool{slots: slots}
}

// Len returns the slot count.
func (p *FramePool) Len() int {
	return len(p.slots)
}

// Current returns the slot the next render call will fill. The slot is
// not advanced; a failed render reuses it.
func (p *FramePool) Current() []byte {
	return p.slots[p.next]
}

// Advance moves to the next slot, wrapping at the pool size.
func (p *FramePool) Advance() {
	p.next = (p.next + 1) % len(p.slots)
}

// Slot returns slot i, for prefill.
func (p *FramePool) Slot(i int) []byte {
	return p.slots[i]
}
