// synthpiped bridges a virtual MIDI input port to synthesized audio on
// the local output device. It advertises the port, buffers incoming
// performance events and renders them in fixed frames paced against
// the hardware buffer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/synthpipe/internal/config"
	"github.com/e7canasta/synthpipe/internal/device"
	"github.com/e7canasta/synthpipe/internal/pipeline"
	"github.com/e7canasta/synthpipe/internal/proc"
	"github.com/e7canasta/synthpipe/internal/sched"
	"github.com/e7canasta/synthpipe/internal/soundbank"
	"github.com/e7canasta/synthpipe/internal/source"
	"github.com/e7canasta/synthpipe/internal/synth"
	"github.com/e7canasta/synthpipe/internal/telemetry"
)

// Render format of the built-in engine.
var engineFormat = synth.EngineConfig{
	SampleRate:    22050,
	NumChannels:   2,
	MixBufferSize: 128,
	MaxVoices:     64,
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		backend    = flag.String("backend", "", "audio backend: oto, gst or mock")
		clientName = flag.String("client-name", "", "advertised MIDI port name")
		debug      = flag.Bool("debug", false, "verbose text logging")
		mqttBroker = flag.String("mqtt-broker", "", "MQTT broker URL for telemetry")

		polyphony   = flag.Int("p", -1, "polyphony cap")
		volume      = flag.Int("m", -1, "master volume 0-100")
		bankPath    = flag.String("s", "", "instrument sample bank file")
		reverb      = flag.Int("r", 0, "reverb preset 1-4, 0 off")
		reverbWet   = flag.Int("w", -1, "reverb wet level 0-32767")
		chorus      = flag.Int("c", 0, "chorus preset 1-4, 0 off")
		chorusRate  = flag.Int("a", -1, "chorus rate 10-50")
		chorusDepth = flag.Int("e", -1, "chorus depth 15-60")
		chorusLevel = flag.Int("l", -1, "chorus level 0-32767")
		daemonize   = flag.Bool("d", false, "detach from the terminal")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		cfg = loaded
	}

	// Flags set on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "client-name":
			cfg.ClientName = *clientName
		case "debug":
			cfg.Debug = *debug
		case "mqtt-broker":
			cfg.MQTT.Broker = *mqttBroker
		case "p":
			cfg.Synth.Polyphony = *polyphony
		case "m":
			cfg.Synth.Volume = *volume
		case "s":
			cfg.Synth.SampleBank = *bankPath
		case "r":
			cfg.Synth.ReverbPreset = *reverb
		case "w":
			cfg.Synth.ReverbWet = *reverbWet
		case "c":
			cfg.Synth.ChorusPreset = *chorus
		case "a":
			cfg.Synth.ChorusRate = *chorusRate
		case "e":
			cfg.Synth.ChorusDepth = *chorusDepth
		case "l":
			cfg.Synth.ChorusLevel = *chorusLevel
		case "d":
			cfg.Daemonize = *daemonize
		}
	})

	setupLogging(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}
	cfg.Normalize()

	var bank *soundbank.Bank
	if cfg.Synth.SampleBank != "" {
		b, err := soundbank.Load(cfg.Synth.SampleBank)
		if err != nil {
			slog.Error("sample bank load failed", "error", err)
			return 2
		}
		defer b.Close()
		bank = b
	}

	if cfg.Daemonize && !proc.IsDaemonChild() {
		// The detached child starts from scratch, so exercise the synth
		// stage here first: a daemonized run must still exit 2 when the
		// engine, pool sizing or bank is unusable.
		if err := preflightSynth(bank); err != nil {
			slog.Error("synth preflight failed", "error", err)
			return 2
		}
		pid, err := proc.Detach()
		if err != nil {
			slog.Error("daemonize failed", "error", err)
			return 3
		}
		slog.Info("detached", "pid", pid)
		return 0
	}

	opts := pipeline.Options{
		Engine:     synth.NewSilentEngine(engineFormat),
		Source:     source.NewMIDISource(cfg.ClientName),
		Volume:     cfg.Synth.Volume,
		Polyphony:  cfg.Synth.Polyphony,
		AfterReady: proc.DropPrivileges,
	}
	if cfg.Synth.ReverbPreset > 0 {
		opts.Reverb = synth.ReverbConfig{
			Preset: cfg.Synth.ReverbPreset,
			Wet:    cfg.Synth.ReverbWet,
		}
	}
	if cfg.Synth.ChorusPreset > 0 {
		opts.Chorus = synth.ChorusConfig{
			Preset: cfg.Synth.ChorusPreset,
			Rate:   cfg.Synth.ChorusRate,
			Depth:  cfg.Synth.ChorusDepth,
			Level:  cfg.Synth.ChorusLevel,
		}
	}

	switch cfg.Backend {
	case config.BackendOto:
		opts.Device = device.NewOto()
	case config.BackendGst:
		opts.Device = device.NewGst()
	case config.BackendMock:
		opts.Device = device.NewMock()
	}

	if bank != nil {
		opts.SampleBank = bank
	}

	orch, err := pipeline.New(opts)
	if err != nil {
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitter := telemetry.New(telemetry.Options{
		BrokerURL: cfg.MQTT.Broker,
		Topic:     cfg.MQTT.Topic,
		Interval:  cfg.MQTT.Interval.Std(),
	})
	if emitter.Enabled() {
		go func() {
			if err := emitter.Run(ctx, func() any { return orch.Stats() }); err != nil {
				slog.Warn("telemetry stopped", "error", err)
			}
		}()
	}

	slog.Info("starting",
		"client", cfg.ClientName,
		"backend", cfg.Backend,
		"rate", engineFormat.SampleRate,
	)
	if err := orch.Run(ctx); err != nil {
		slog.Error("pipeline failed", "error", err)
		return exitCode(err)
	}

	slog.Info("stopped", "stats", orch.Stats())
	return 0
}

// preflightSynth runs the synth initialization sequence against a
// throwaway engine. The re-exec that stands in for forking cannot
// carry an initialized engine into the child, so validation happens in
// the parent and the child repeats the real initialization.
func preflightSynth(bank *soundbank.Bank) error {
	if _, err := sched.PoolSize(
		engineFormat.SampleRate,
		engineFormat.MixBufferSize,
		engineFormat.FrameBytes(),
	); err != nil {
		return err
	}

	eng := synth.NewSilentEngine(engineFormat)
	if err := eng.Init(); err != nil {
		return err
	}
	defer eng.Shutdown()
	if bank != nil {
		if err := eng.LoadSampleBank(bank); err != nil {
			return err
		}
	}
	return nil
}

func exitCode(err error) int {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return se.ExitCode()
	}
	return 1
}

func setupLogging(debug bool) {
	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	slog.SetDefault(slog.New(handler))
}
