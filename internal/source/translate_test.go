package source

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/e7canasta/synthpipe/internal/protocol"
)

func TestTranslate_ChannelVoiceMessages(t *testing.T) {
	cases := []struct {
		name string
		msg  midi.Message
		want protocol.Event
	}{
		{
			"note on",
			midi.NoteOn(3, 60, 100),
			protocol.Event{Kind: protocol.KindNoteOn, Channel: 3, Note: 60, Velocity: 100},
		},
		{
			"note off",
			midi.NoteOff(3, 60),
			protocol.Event{Kind: protocol.KindNoteOff, Channel: 3, Note: 60},
		},
		{
			"poly aftertouch",
			midi.PolyAfterTouch(1, 60, 80),
			protocol.Event{Kind: protocol.KindKeyPressure, Channel: 1, Note: 60, Velocity: 80},
		},
		{
			"control change",
			midi.ControlChange(0, 7, 127),
			protocol.Event{Kind: protocol.KindController, Channel: 0, Param: 7, Value: 127},
		},
		{
			"program change",
			midi.ProgramChange(9, 42),
			protocol.Event{Kind: protocol.KindProgramChange, Channel: 9, Value: 42},
		},
		{
			"channel pressure",
			midi.AfterTouch(2, 99),
			protocol.Event{Kind: protocol.KindChannelPressure, Channel: 2, Value: 99},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := translate(tc.msg)
			if !ok {
				t.Fatal("message not translated")
			}
			if got.Kind != tc.want.Kind || got.Channel != tc.want.Channel ||
				got.Note != tc.want.Note || got.Velocity != tc.want.Velocity ||
				got.Param != tc.want.Param || got.Value != tc.want.Value {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestTranslate_PitchBendIsSigned(t *testing.T) {
	got, ok := translate(midi.Pitchbend(0, -8192))
	if !ok {
		t.Fatal("pitch bend not translated")
	}
	if got.Kind != protocol.KindPitchBend || got.Value != -8192 {
		t.Errorf("got %+v, want pitch-bend -8192", got)
	}
}

// TestTranslate_SysExReframed verifies the framing bytes the driver
// strips are restored before the payload reaches the engine.
func TestTranslate_SysExReframed(t *testing.T) {
	payload := []byte{0x7E, 0x7F, 0x09, 0x01}
	got, ok := translate(midi.SysEx(payload))
	if !ok {
		t.Fatal("sysex not translated")
	}
	want := append(append([]byte{0xF0}, payload...), 0xF7)
	if !bytes.Equal(got.Data, want) {
		t.Errorf("data = % x, want % x", got.Data, want)
	}
}

func TestTranslate_RealtimeMessages(t *testing.T) {
	cases := []struct {
		msg  midi.Message
		want protocol.Kind
	}{
		{midi.TimingClock(), protocol.KindClock},
		{midi.Start(), protocol.KindStart},
		{midi.Continue(), protocol.KindContinue},
		{midi.Stop(), protocol.KindStop},
		{midi.Activesense(), protocol.KindActiveSense},
		{midi.Reset(), protocol.KindReset},
	}
	for _, tc := range cases {
		got, ok := translate(tc.msg)
		if !ok {
			t.Errorf("%s not translated", tc.want)
			continue
		}
		if got.Kind != tc.want {
			t.Errorf("kind = %s, want %s", got.Kind, tc.want)
		}
	}
}
