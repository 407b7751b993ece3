package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// statusTopic returns ourPrefix's last-will/online/offline status topic.
func statusTopic(ourPrefix string) string {
	return ourPrefix + "/status"
}

// stateMessage builds a retained, QoS-1 state publish under ourPrefix, per
// spec.md §6 ("State publishes are retained at QoS 1").
func stateMessage(ourPrefix, suffix, payload string) MQTTMessage {
	return MQTTMessage{
		Topic:   ourPrefix + "/" + suffix,
		Payload: []byte(payload),
		QoS:     1,
		Retain:  true,
	}
}

func formatWatts(w float64) string {
	return strconv.FormatInt(int64(math.Round(w)), 10)
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// BusWorker owns the MQTT connection: subscribes to gateway telemetry and the
// enable command, and forwards both to the Gateway View and Enable Gate.
// Reconnection backs off from 1s doubling to a 30s cap via paho's own
// auto-reconnect, per spec.md §5 — adapted from src/mqtt_worker.go's
// connect/subscribe shape.
type BusWorker struct {
	client        mqtt.Client
	log           *logrus.Logger
	gatewayPrefix string
	ourPrefix     string
}

// NewBusWorker builds (but does not connect) the bus client, wiring its
// inbound handler to view and gate.
func NewBusWorker(cfg BusConfig, log *logrus.Logger, view *GatewayView, gate *EnableGate) *BusWorker {
	w := &BusWorker{log: log, gatewayPrefix: cfg.GatewayPrefix, ourPrefix: cfg.OurPrefix}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetWill(statusTopic(cfg.OurPrefix), "offline", 1, true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("bus: connection lost, reconnecting")
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info("bus: connected")

		if token := client.Publish(statusTopic(cfg.OurPrefix), 1, true, "online"); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Warn("bus: failed to publish online status")
		}

		telemetryTopic := cfg.GatewayPrefix + "/#"
		if token := client.Subscribe(telemetryTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			topic := strings.TrimPrefix(msg.Topic(), cfg.GatewayPrefix+"/")
			view.Handle(topic, string(msg.Payload()))
		}); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).WithField("topic", telemetryTopic).Error("bus: subscribe failed")
		}

		enableTopic := cfg.OurPrefix + "/set/enabled"
		if token := client.Subscribe(enableTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			gate.HandleCommand(string(msg.Payload()))
		}); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).WithField("topic", enableTopic).Error("bus: subscribe failed")
		}
	})

	w.client = mqtt.NewClient(opts)
	return w
}

// Run connects and blocks until ctx is cancelled, then disconnects cleanly
// publishing no further messages (the last-will covers the crash case; a
// clean shutdown disconnects without racing a final offline publish).
func (w *BusWorker) Run(ctx context.Context) error {
	if token := w.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("busworker: initial connect: %w", token.Error())
	}

	<-ctx.Done()

	if w.client.IsConnected() {
		w.client.Disconnect(250)
	}
	return nil
}

// Client exposes the underlying paho client for the sender to publish on.
func (w *BusWorker) Client() mqtt.Client {
	return w.client
}
