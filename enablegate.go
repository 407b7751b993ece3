package main

import (
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// EnableGate is a latched binary state, initially OFF, mutated only by the
// bus command topic or the HTTP toggle per spec.md §4.6. Generalised from
// src/mqtt_interceptor.go's enabled-flag gating idiom into an explicit
// injected type rather than a channel interceptor, since here the gate must
// also be readable from the HTTP handler.
type EnableGate struct {
	enabled atomic.Bool
	log     *logrus.Logger
}

// NewEnableGate returns a gate latched OFF.
func NewEnableGate(log *logrus.Logger) *EnableGate {
	return &EnableGate{log: log}
}

// Enabled reports the current latched state.
func (g *EnableGate) Enabled() bool {
	return g.enabled.Load()
}

// Set forcibly latches the gate to v. Used by HandleCommand for bus commands.
func (g *EnableGate) Set(v bool) {
	if g.enabled.Swap(v) != v {
		g.log.WithField("enabled", v).Info("enable gate: state changed")
	}
}

// Toggle flips the gate and returns the new state.
func (g *EnableGate) Toggle() bool {
	for {
		old := g.enabled.Load()
		if g.enabled.CompareAndSwap(old, !old) {
			g.log.WithField("enabled", !old).Info("enable gate: toggled")
			return !old
		}
	}
}

// HandleCommand parses a bus command payload: 1/true/on (case-insensitive,
// whitespace-trimmed) sets the gate, 0/false/off clears it. Any other
// payload is ignored.
func (g *EnableGate) HandleCommand(payload string) {
	v := strings.ToLower(strings.TrimSpace(payload))
	switch v {
	case "1", "true", "on":
		g.Set(true)
	case "0", "false", "off":
		g.Set(false)
	default:
		g.log.WithField("payload", payload).Warn("enable gate: unrecognised command payload")
	}
}
