package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayViewReachableRequiresExactOne(t *testing.T) {
	v := NewGatewayView()
	assert.False(t, v.Reachable("abc"))

	v.Handle("abc/status/reachable", "1")
	assert.True(t, v.Reachable("abc"))

	v.Handle("abc/status/reachable", "0")
	assert.False(t, v.Reachable("abc"))
}

func TestGatewayViewPowerParsesLazily(t *testing.T) {
	v := NewGatewayView()
	assert.Equal(t, 0.0, v.Power("abc"))

	v.Handle("abc/0/power", "123.5")
	assert.Equal(t, 123.5, v.Power("abc"))

	v.Handle("abc/0/power", "not-a-number")
	assert.Equal(t, 0.0, v.Power("abc"))
}

func TestGatewayViewLimitAppliedSentinel(t *testing.T) {
	v := NewGatewayView()
	assert.Equal(t, -1.0, v.LimitApplied("abc"))

	v.Handle("abc/status/limit_absolute", "450")
	assert.Equal(t, 450.0, v.LimitApplied("abc"))
}

func TestGatewayViewPanelChannelsIndependent(t *testing.T) {
	v := NewGatewayView()
	v.Handle("abc/1/voltage", "30.1")
	v.Handle("abc/3/voltage", "29.8")

	volts := v.PanelVoltages("abc")
	assert.Equal(t, [4]float64{30.1, 0, 29.8, 0}, volts)
}

func TestGatewayViewGatewayWideTopics(t *testing.T) {
	v := NewGatewayView()
	v.Handle("ac/power", "5200")
	v.Handle("dtu/status", "reachable")

	assert.Equal(t, 5200.0, v.GatewayACPower())
	assert.Equal(t, "reachable", v.DTUStatus())
}

func TestGatewayViewConcurrentAccess(t *testing.T) {
	v := NewGatewayView()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v.Handle("abc/0/power", "100")
		}()
		go func() {
			defer wg.Done()
			_ = v.Power("abc")
		}()
	}
	wg.Wait()
}
