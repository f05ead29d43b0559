// Package protocol translates semantic performance events into the
// compact MIDI byte stream consumed by the synthesizer engine, applying
// running-status compression on channel voice messages.
package protocol

// Kind discriminates the event union.
type Kind uint8

const (
	KindNoteOn Kind = iota
	KindNoteOff
	KindKeyPressure
	KindController
	KindProgramChange
	KindChannelPressure
	KindPitchBend
	KindController14
	KindRegisteredParam
	KindNonRegisteredParam
	KindSysEx
	KindQuarterFrame
	KindSongPosition
	KindSongSelect
	KindTuneRequest
	KindClock
	KindTick
	KindStart
	KindContinue
	KindStop
	KindActiveSense
	KindReset
	KindSubscribed
	KindUnsubscribed
)

var kindNames = map[Kind]string{
	KindNoteOn:             "note-on",
	KindNoteOff:            "note-off",
	KindKeyPressure:        "key-pressure",
	KindController:         "controller",
	KindProgramChange:      "program-change",
	KindChannelPressure:    "channel-pressure",
	KindPitchBend:          "pitch-bend",
	KindController14:       "controller-14",
	KindRegisteredParam:    "rpn",
	KindNonRegisteredParam: "nrpn",
	KindSysEx:              "sysex",
	KindQuarterFrame:       "quarter-frame",
	KindSongPosition:       "song-position",
	KindSongSelect:         "song-select",
	KindTuneRequest:        "tune-request",
	KindClock:              "clock",
	KindTick:               "tick",
	KindStart:              "start",
	KindContinue:           "continue",
	KindStop:               "stop",
	KindActiveSense:        "active-sense",
	KindReset:              "reset",
	KindSubscribed:         "subscribed",
	KindUnsubscribed:       "unsubscribed",
}

// String returns the event kind's wire-protocol-ish name for logging.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one performance event as delivered by the event source.
// Which fields carry meaning depends on Kind:
//
//   - Note, Velocity: note-on, note-off, key-pressure
//   - Param: controller (number), controller-14 (0-31), rpn/nrpn (14-bit)
//   - Value: controller/program/pressure value, pitch-bend (-8192..8191),
//     14-bit controller and rpn/nrpn data (0..16383)
//   - Data: sysex payload, verbatim including framing bytes
//   - Client: subscription notifications
type Event struct {
	Kind     Kind
	Channel  uint8
	Note     uint8
	Velocity uint8
	Param    uint16
	Value    int32
	Data     []byte
	Client   string
}
