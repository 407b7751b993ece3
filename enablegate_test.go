package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnableGateInitiallyOff(t *testing.T) {
	g := NewEnableGate(appLogger())
	assert.False(t, g.Enabled())
}

func TestEnableGateHandleCommandVariants(t *testing.T) {
	g := NewEnableGate(appLogger())

	for _, on := range []string{"1", "true", "ON", "  on  "} {
		g.Set(false)
		g.HandleCommand(on)
		assert.True(t, g.Enabled(), "payload %q should enable", on)
	}

	for _, off := range []string{"0", "false", "OFF", " off "} {
		g.Set(true)
		g.HandleCommand(off)
		assert.False(t, g.Enabled(), "payload %q should disable", off)
	}
}

func TestEnableGateIgnoresUnknownPayload(t *testing.T) {
	g := NewEnableGate(appLogger())
	g.Set(true)
	g.HandleCommand("garbage")
	assert.True(t, g.Enabled())
}

func TestEnableGateToggle(t *testing.T) {
	g := NewEnableGate(appLogger())
	assert.True(t, g.Toggle())
	assert.False(t, g.Toggle())
}
