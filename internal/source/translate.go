package source

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/e7canasta/synthpipe/internal/protocol"
)

// translate maps a wire MIDI message onto the pipeline's event union.
// The second return is false for messages the pipeline has no use for.
func translate(msg midi.Message) (protocol.Event, bool) {
	var (
		ch, key, vel uint8
		cc, val      uint8
		prog, press  uint8
		rel          int16
		abs          uint16
		data         []byte
	)

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return protocol.Event{Kind: protocol.KindNoteOn, Channel: ch, Note: key, Velocity: vel}, true
	case msg.GetNoteEnd(&ch, &key):
		return protocol.Event{Kind: protocol.KindNoteOff, Channel: ch, Note: key}, true
	case msg.GetPolyAfterTouch(&ch, &key, &vel):
		return protocol.Event{Kind: protocol.KindKeyPressure, Channel: ch, Note: key, Velocity: vel}, true
	case msg.GetControlChange(&ch, &cc, &val):
		return protocol.Event{Kind: protocol.KindController, Channel: ch, Param: uint16(cc), Value: int32(val)}, true
	case msg.GetProgramChange(&ch, &prog):
		return protocol.Event{Kind: protocol.KindProgramChange, Channel: ch, Value: int32(prog)}, true
	case msg.GetAfterTouch(&ch, &press):
		return protocol.Event{Kind: protocol.KindChannelPressure, Channel: ch, Value: int32(press)}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return protocol.Event{Kind: protocol.KindPitchBend, Channel: ch, Value: int32(rel)}, true
	case msg.GetSysEx(&data):
		// Re-frame: the engine expects the raw stream including the
		// 0xF0/0xF7 bytes the driver strips.
		framed := make([]byte, 0, len(data)+2)
		framed = append(framed, 0xF0)
		framed = append(framed, data...)
		framed = append(framed, 0xF7)
		return protocol.Event{Kind: protocol.KindSysEx, Data: framed}, true
	}

	switch msg.Type() {
	case midi.TimingClockMsg:
		return protocol.Event{Kind: protocol.KindClock}, true
	case midi.TickMsg:
		return protocol.Event{Kind: protocol.KindTick}, true
	case midi.StartMsg:
		return protocol.Event{Kind: protocol.KindStart}, true
	case midi.ContinueMsg:
		return protocol.Event{Kind: protocol.KindContinue}, true
	case midi.StopMsg:
		return protocol.Event{Kind: protocol.KindStop}, true
	case midi.ActiveSenseMsg:
		return protocol.Event{Kind: protocol.KindActiveSense}, true
	case midi.ResetMsg:
		return protocol.Event{Kind: protocol.KindReset}, true
	}

	return protocol.Event{}, false
}
