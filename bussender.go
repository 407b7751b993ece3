package main

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// BusSender serialises outgoing publishes through a channel and queues them
// while the client is disconnected, adapted from src/mqtt_sender.go's
// mqttSenderWorker. Per-client publish order is preserved because the
// channel is drained by a single goroutine.
type BusSender struct {
	client mqtt.Client
	log    *logrus.Logger
	ch     chan MQTTMessage
}

// NewBusSender wraps an already-constructed paho client (shared with the
// BusWorker) in a queueing publisher.
func NewBusSender(client mqtt.Client, log *logrus.Logger) *BusSender {
	return &BusSender{client: client, log: log, ch: make(chan MQTTMessage, 64)}
}

// Send enqueues msg for publish. Never blocks the caller on the network.
func (s *BusSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// Run drains the queue, publishing each message. While disconnected,
// messages accumulate in a local slice and are flushed in order once the
// client reconnects.
func (s *BusSender) Run(ctx context.Context) {
	var pending []MQTTMessage

	flush := func() {
		if len(pending) == 0 || !s.client.IsConnected() {
			return
		}
		for _, msg := range pending {
			s.publish(msg)
		}
		pending = nil
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.ch:
			if !s.client.IsConnected() {
				pending = append(pending, msg)
				s.log.WithField("topic", msg.Topic).Debug("bus: queued message, client disconnected")
				continue
			}
			flush()
			s.publish(msg)

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			return
		}
	}
}

func (s *BusSender) publish(msg MQTTMessage) {
	token := s.client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
	token.Wait()
	if token.Error() != nil {
		s.log.WithError(token.Error()).WithField("topic", msg.Topic).Error("bus: publish failed")
		metricBusPublishFailures.Inc()
	}
}
