// Package config carries the daemon's settings: a YAML file loaded at
// startup, every field overridable by a CLI flag. Validation is
// fail-fast for structural problems; out-of-range tuning values are
// ignored with a warning rather than refused, so a stray knob never
// keeps the synth from starting.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends accepted by the audio section.
const (
	BackendOto  = "oto"
	BackendGst  = "gst"
	BackendMock = "mock"
)

// unset marks a tuning value the user did not provide.
const unset = -1

// Config is the full daemon configuration.
type Config struct {
	// ClientName is the advertised MIDI port name.
	ClientName string `yaml:"client_name"`

	// Backend selects the output device implementation.
	Backend string `yaml:"backend"`

	// Daemonize detaches the process after the synth initializes.
	Daemonize bool `yaml:"daemonize"`

	// Debug switches logging to text with source locations.
	Debug bool `yaml:"debug"`

	Synth SynthConfig `yaml:"synth"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

// SynthConfig mirrors the engine tuning knobs. -1 means "leave the
// engine default".
type SynthConfig struct {
	// SampleBank is an optional instrument bank path.
	SampleBank string `yaml:"sample_bank"`

	// Polyphony caps simultaneous voices.
	Polyphony int `yaml:"polyphony"`

	// Volume is the master volume, 0-100.
	Volume int `yaml:"volume"`

	// ReverbPreset 1-4 enables reverb; 0 off.
	ReverbPreset int `yaml:"reverb_preset"`
	// ReverbWet 0-32767.
	ReverbWet int `yaml:"reverb_wet"`

	// ChorusPreset 1-4 enables chorus; 0 off.
	ChorusPreset int `yaml:"chorus_preset"`
	// ChorusRate 10-50.
	ChorusRate int `yaml:"chorus_rate"`
	// ChorusDepth 15-60.
	ChorusDepth int `yaml:"chorus_depth"`
	// ChorusLevel 0-32767.
	ChorusLevel int `yaml:"chorus_level"`
}

// MQTTConfig enables the optional telemetry emitter.
type MQTTConfig struct {
	Broker   string   `yaml:"broker"`
	Topic    string   `yaml:"topic"`
	Interval Duration `yaml:"interval"`
}

// Duration parses YAML values like "10s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ClientName: "synthpipe",
		Backend:    BackendOto,
		Synth: SynthConfig{
			Polyphony:   unset,
			Volume:      unset,
			ReverbWet:   unset,
			ChorusRate:  unset,
			ChorusDepth: unset,
			ChorusLevel: unset,
		},
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects structurally invalid configurations.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOto, BackendGst, BackendMock:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.ClientName == "" {
		return fmt.Errorf("config: empty client name")
	}
	return nil
}

// Normalize discards out-of-range tuning values, logging each one. The
// daemon then runs with the engine defaults for those knobs.
func (c *Config) Normalize() {
	s := &c.Synth
	s.Polyphony = ranged("polyphony", s.Polyphony, 1, 64)
	s.Volume = ranged("volume", s.Volume, 0, 100)
	if s.ReverbPreset < 0 || s.ReverbPreset > 4 {
		slog.Warn("config: ignoring out-of-range value", "field", "reverb_preset", "value", s.ReverbPreset)
		s.ReverbPreset = 0
	}
	s.ReverbWet = ranged("reverb_wet", s.ReverbWet, 0, 32767)
	if s.ChorusPreset < 0 || s.ChorusPreset > 4 {
		slog.Warn("config: ignoring out-of-range value", "field", "chorus_preset", "value", s.ChorusPreset)
		s.ChorusPreset = 0
	}
	s.ChorusRate = ranged("chorus_rate", s.ChorusRate, 10, 50)
	s.ChorusDepth = ranged("chorus_depth", s.ChorusDepth, 15, 60)
	s.ChorusLevel = ranged("chorus_level", s.ChorusLevel, 0, 32767)
}

// ranged returns v when inside [lo, hi], otherwise unset with a
// warning. unset itself passes through silently.
func ranged(field string, v, lo, hi int) int {
	if v == unset {
		return unset
	}
	if v < lo || v > hi {
		slog.Warn("config: ignoring out-of-range value", "field", field, "value", v)
		return unset
	}
	return v
}
