package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

// GatewayActuator issues limit and power commands to inverters through the
// bus sender and advises on whether a command took effect by polling the
// Gateway View, per spec.md §4.4.
type GatewayActuator struct {
	sender        *BusSender
	view          *GatewayView
	gatewayPrefix string
}

// NewGatewayActuator wires a sender and view under the given gateway topic
// prefix.
func NewGatewayActuator(sender *BusSender, view *GatewayView, gatewayPrefix string) *GatewayActuator {
	return &GatewayActuator{sender: sender, view: view, gatewayPrefix: gatewayPrefix}
}

// SetLimit publishes a non-persistent absolute limit command for serial.
func (a *GatewayActuator) SetLimit(serial string, w float64) {
	a.sender.Send(MQTTMessage{
		Topic:   fmt.Sprintf("%s/%s/cmd/limit_nonpersistent_absolute", a.gatewayPrefix, serial),
		Payload: []byte(strconv.FormatInt(int64(math.Round(w)), 10)),
		QoS:     0,
		Retain:  false,
	})
}

// SetPower publishes an on/off command for serial.
func (a *GatewayActuator) SetPower(serial string, on bool) {
	payload := "0"
	if on {
		payload = "1"
	}
	a.sender.Send(MQTTMessage{
		Topic:   fmt.Sprintf("%s/%s/cmd/power", a.gatewayPrefix, serial),
		Payload: []byte(payload),
		QoS:     0,
		Retain:  false,
	})
}

// WaitForAck polls limit_applied(serial) every 500ms until it settles within
// 5% of deviceCeilingW of targetW, or timeout elapses. Advisory only — the
// control loop does not stall on its result in the hot path.
func (a *GatewayActuator) WaitForAck(ctx context.Context, serial string, targetW, deviceCeilingW float64, timeout time.Duration) bool {
	tolerance := 0.05 * deviceCeilingW
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	if math.Abs(a.view.LimitApplied(serial)-targetW) <= tolerance {
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if math.Abs(a.view.LimitApplied(serial)-targetW) <= tolerance {
				return true
			}
			if time.Now().After(deadline) {
				metricAckTimeouts.Inc()
				return false
			}
		}
	}
}
