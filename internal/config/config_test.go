package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthpipe.yaml")
	doc := `
client_name: stage-rig
backend: gst
synth:
  volume: 80
  reverb_preset: 2
  reverb_wet: 16000
mqtt:
  broker: tcp://localhost:1883
  interval: 10s
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ClientName != "stage-rig" || cfg.Backend != BackendGst {
		t.Errorf("identity not loaded: %+v", cfg)
	}
	if cfg.Synth.Volume != 80 || cfg.Synth.ReverbPreset != 2 || cfg.Synth.ReverbWet != 16000 {
		t.Errorf("synth section not loaded: %+v", cfg.Synth)
	}
	if cfg.Synth.Polyphony != -1 {
		t.Errorf("untouched field lost its default: %d", cfg.Synth.Polyphony)
	}
	if cfg.MQTT.Broker == "" || cfg.MQTT.Interval.Std().Seconds() != 10 {
		t.Errorf("mqtt section not loaded: %+v", cfg.MQTT)
	}
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = "jack"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}
}

// TestNormalize_IgnoresOutOfRangeValues pins the forgiving knob
// handling: a bad value falls back to the engine default instead of
// refusing to start.
func TestNormalize_IgnoresOutOfRangeValues(t *testing.T) {
	cfg := Default()
	cfg.Synth.Volume = 150
	cfg.Synth.Polyphony = 32
	cfg.Synth.ChorusRate = 5
	cfg.Synth.ReverbPreset = 9

	cfg.Normalize()

	if cfg.Synth.Volume != -1 {
		t.Errorf("volume = %d, want unset", cfg.Synth.Volume)
	}
	if cfg.Synth.Polyphony != 32 {
		t.Errorf("in-range polyphony discarded: %d", cfg.Synth.Polyphony)
	}
	if cfg.Synth.ChorusRate != -1 {
		t.Errorf("chorus rate = %d, want unset", cfg.Synth.ChorusRate)
	}
	if cfg.Synth.ReverbPreset != 0 {
		t.Errorf("reverb preset = %d, want 0", cfg.Synth.ReverbPreset)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
