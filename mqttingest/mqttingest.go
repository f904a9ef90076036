// Package mqttingest accepts the same telemetry payload as the HTTP endpoint on
// an MQTT topic. ESP32 firmware in the field speaks either transport, so both
// feed the identical apply path.
package mqttingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cepro/linewatch/docstore"
	"github.com/cepro/linewatch/ingest"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Bridge subscribes to a broker topic and applies each published reading batch
// to the dashboard state.
type Bridge struct {
	broker   string
	topic    string
	clientID string
	store    docstore.Store
}

func New(broker, topic, clientID string, store docstore.Store) *Bridge {
	return &Bridge{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		store:    store,
	}
}

// Run connects to the broker and consumes readings until ctx is cancelled.
// Unlike the HTTP endpoint there is no caller to report statuses to, so every
// failure mode is logged and the bridge keeps going.
func (b *Bridge) Run(ctx context.Context) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", b.broker))
	opts.SetClientID(b.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "error", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("Connected to MQTT broker", "broker", b.broker)

		token := client.Subscribe(b.topic, 0, func(client mqtt.Client, msg mqtt.Message) {
			b.handleMessage(ctx, msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			slog.Error("Failed to subscribe to telemetry topic", "topic", b.topic, "error", token.Error())
		} else {
			slog.Info("Subscribed to telemetry topic", "topic", b.topic)
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("Failed to connect to MQTT broker", "broker", b.broker, "error", token.Error())
		return
	}

	<-ctx.Done()
	client.Disconnect(250)
}

func (b *Bridge) handleMessage(ctx context.Context, payload []byte) {
	readings, err := ingest.ParsePayload(payload)
	if err != nil {
		slog.Warn("Discarding malformed telemetry message", "error", err)
		return
	}

	applied, err := ingest.Apply(ctx, b.store, readings)
	if errors.Is(err, docstore.ErrNotFound) {
		slog.Warn("Telemetry arrived before the dashboard was seeded, dropped")
		return
	}
	if err != nil {
		slog.Error("Failed to apply telemetry readings", "error", err)
		return
	}
	slog.Debug("Applied telemetry readings", "received", len(readings), "applied", applied)
}
