package protocol

import (
	"log/slog"
	"sync/atomic"
)

// Sink receives encoded protocol bytes. A Write must accept the whole
// slice or reject it entirely (the event ring buffer satisfies this).
type Sink interface {
	Write(p []byte) error
}

// Encoder turns Events into the downstream byte protocol.
//
// It owns the running-status byte: when consecutive channel voice
// messages share a status byte, only the data bytes are emitted. The
// status update is committed only after the sink accepts the bytes, so
// a dropped event can never leave the decoder behind a status byte it
// has not seen.
//
// An Encoder is confined to the consumer goroutine; only the stats
// counters may be read concurrently.
type Encoder struct {
	sink          Sink
	runningStatus byte // 0 = none; forces the next emission to carry a full status byte
	scratch       [12]byte

	encoded atomic.Uint64 // events that produced bytes
	skipped atomic.Uint64 // events intentionally not forwarded
	dropped atomic.Uint64 // events rejected by the sink
}

// NewEncoder returns an encoder writing to sink.
func NewEncoder(sink Sink) *Encoder {
	return &Encoder{sink: sink}
}

// Encode translates one event and writes it to the sink. Events the
// synthesizer does not consume are counted and skipped; unknown kinds
// are logged and ignored.
func (e *Encoder) Encode(ev Event) {
	switch ev.Kind {
	case KindNoteOn:
		e.writeVoice(0x90|ev.Channel, ev.Note, ev.Velocity)

	case KindNoteOff:
		// Sent as note-on with zero velocity to maximize running-status
		// hits; the 0x80 status is never emitted.
		e.writeVoice(0x90|ev.Channel, ev.Note, 0)

	case KindController:
		e.writeVoice(0xB0|ev.Channel, byte(ev.Param), byte(ev.Value))

	case KindProgramChange:
		e.writeVoice(0xC0|ev.Channel, byte(ev.Value))

	case KindChannelPressure:
		e.writeVoice(0xD0|ev.Channel, byte(ev.Value))

	case KindPitchBend:
		v := ev.Value + 0x2000
		e.writeVoice(0xE0|ev.Channel, byte(v&0x7f), byte((v>>7)&0x7f))

	case KindController14:
		// Only controllers 0-31 have a defined LSB pair at +32.
		if ev.Param >= 32 {
			e.skipped.Add(1)
			slog.Debug("protocol: controller-14 outside 0-31, ignored",
				"channel", ev.Channel, "param", ev.Param, "value", ev.Value)
			return
		}
		e.writeVoice(0xB0|ev.Channel,
			byte(ev.Param), byte((ev.Value>>7)&0x7f),
			byte(ev.Param+32), byte(ev.Value&0x7f))

	case KindRegisteredParam:
		e.writeVoice(0xB0|ev.Channel,
			0x65, byte((ev.Param>>7)&0x7f),
			0x64, byte(ev.Param&0x7f),
			0x06, byte((ev.Value>>7)&0x7f),
			0x26, byte(ev.Value&0x7f))

	case KindSysEx:
		// Sysex is never compressed: the running status is cleared so
		// the next voice message carries a full status byte.
		e.runningStatus = 0
		if err := e.sink.Write(ev.Data); err != nil {
			e.dropped.Add(1)
			slog.Warn("protocol: sysex dropped", "size", len(ev.Data), "error", err)
			return
		}
		e.encoded.Add(1)

	case KindKeyPressure, KindNonRegisteredParam,
		KindQuarterFrame, KindSongPosition, KindSongSelect, KindTuneRequest,
		KindClock, KindTick, KindStart, KindContinue, KindStop,
		KindActiveSense, KindReset:
		// Not consumed by the target synthesizer.
		e.skipped.Add(1)
		slog.Debug("protocol: event not forwarded", "kind", ev.Kind, "channel", ev.Channel)

	case KindSubscribed:
		e.skipped.Add(1)
		slog.Info("protocol: client subscribed", "client", ev.Client)

	case KindUnsubscribed:
		e.skipped.Add(1)
		slog.Info("protocol: client unsubscribed", "client", ev.Client)

	default:
		e.skipped.Add(1)
		slog.Debug("protocol: unhandled event kind", "kind", uint8(ev.Kind))
	}
}

// writeVoice emits a channel voice message, compressing the status byte
// against the running status when possible.
func (e *Encoder) writeVoice(status byte, data ...byte) {
	if status == e.runningStatus {
		if err := e.sink.Write(data); err != nil {
			e.dropped.Add(1)
			slog.Warn("protocol: event dropped", "status", status, "error", err)
			return
		}
		e.encoded.Add(1)
		return
	}

	buf := e.scratch[:0]
	buf = append(buf, status)
	buf = append(buf, data...)
	if err := e.sink.Write(buf); err != nil {
		// Running status deliberately left unchanged: the last status
		// byte the decoder saw is still the one previously written.
		e.dropped.Add(1)
		slog.Warn("protocol: event dropped", "status", status, "error", err)
		return
	}
	e.runningStatus = status
	e.encoded.Add(1)
}

// Stats is a snapshot of the encoder's counters, safe to read from any
// goroutine.
type Stats struct {
	Encoded uint64
	Skipped uint64
	Dropped uint64
}

// Stats returns the current counter values.
func (e *Encoder) Stats() Stats {
	return Stats{
		Encoded: e.encoded.Load(),
		Skipped: e.skipped.Load(),
		Dropped: e.dropped.Load(),
	}
}
