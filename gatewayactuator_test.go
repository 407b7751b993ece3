package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitForAckSucceedsImmediatelyWithinTolerance(t *testing.T) {
	view := NewGatewayView()
	view.Handle("inv1/status/limit_absolute", "480")

	a := NewGatewayActuator(nil, view, "gw")
	ok := a.WaitForAck(context.Background(), "inv1", 500, 1000, 2*time.Second)
	assert.True(t, ok) // |480-500|=20 <= 0.05*1000=50
}

func TestWaitForAckTimesOutWhenNeverSettles(t *testing.T) {
	view := NewGatewayView()
	view.Handle("inv1/status/limit_absolute", "0")

	a := NewGatewayActuator(nil, view, "gw")
	start := time.Now()
	ok := a.WaitForAck(context.Background(), "inv1", 500, 1000, 600*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitForAckSettlesMidPoll(t *testing.T) {
	view := NewGatewayView()
	view.Handle("inv1/status/limit_absolute", "0")

	a := NewGatewayActuator(nil, view, "gw")
	go func() {
		time.Sleep(700 * time.Millisecond)
		view.Handle("inv1/status/limit_absolute", "500")
	}()

	ok := a.WaitForAck(context.Background(), "inv1", 500, 1000, 3*time.Second)
	assert.True(t, ok)
}

func TestWaitForAckRespectsContextCancellation(t *testing.T) {
	view := NewGatewayView()
	view.Handle("inv1/status/limit_absolute", "0")

	ctx, cancel := context.WithCancel(context.Background())
	a := NewGatewayActuator(nil, view, "gw")

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	ok := a.WaitForAck(ctx, "inv1", 500, 1000, 5*time.Second)
	assert.False(t, ok)
}
