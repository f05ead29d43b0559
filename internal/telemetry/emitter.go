// Package telemetry periodically publishes pipeline counters to an
// MQTT broker. It is entirely optional: without a broker URL the
// emitter is inert and costs nothing.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout  = 5 * time.Second
	defaultInterval = 30 * time.Second
	defaultTopic    = "synthpipe/stats"
)

// Options configures an emitter.
type Options struct {
	// BrokerURL, e.g. "tcp://localhost:1883". Empty disables telemetry.
	BrokerURL string
	// Topic for stats publications. Defaults to "synthpipe/stats".
	Topic string
	// InstanceID tags every payload. Defaults to a random UUID.
	InstanceID string
	// Interval between publications. Defaults to 30 s.
	Interval time.Duration
}

// Emitter publishes periodic stats snapshots.
type Emitter struct {
	opts   Options
	client mqtt.Client
}

// New returns an emitter; with an empty broker URL it is disabled.
func New(opts Options) *Emitter {
	if opts.Topic == "" {
		opts.Topic = defaultTopic
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Emitter{opts: opts}
}

// Enabled reports whether a broker is configured.
func (e *Emitter) Enabled() bool {
	return e.opts.BrokerURL != ""
}

// payload is the published document.
type payload struct {
	Instance string    `json:"instance"`
	At       time.Time `json:"at"`
	Stats    any       `json:"stats"`
}

// Run connects to the broker and publishes the snapshot returned by
// stats every interval until ctx is cancelled. A connection failure is
// returned once; publish failures are logged and retried next round.
func (e *Emitter) Run(ctx context.Context, stats func() any) error {
	if !e.Enabled() {
		<-ctx.Done()
		return nil
	}

	copts := mqtt.NewClientOptions().
		AddBroker(e.opts.BrokerURL).
		SetClientID("synthpipe-" + e.opts.InstanceID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	e.client = mqtt.NewClient(copts)
	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("telemetry: connect %s: timeout", e.opts.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: connect %s: %w", e.opts.BrokerURL, err)
	}
	defer e.client.Disconnect(250)

	slog.Info("telemetry: connected",
		"broker", e.opts.BrokerURL,
		"topic", e.opts.Topic,
		"instance", e.opts.InstanceID,
	)

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.publish(stats())
		}
	}
}

func (e *Emitter) publish(stats any) {
	doc, err := json.Marshal(payload{
		Instance: e.opts.InstanceID,
		At:       time.Now().UTC(),
		Stats:    stats,
	})
	if err != nil {
		slog.Error("telemetry: marshal", "error", err)
		return
	}
	token := e.client.Publish(e.opts.Topic, 0, false, doc)
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		slog.Warn("telemetry: publish failed", "error", token.Error())
	}
}
