package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lektronik/zeroexport/apportion"
	"github.com/lektronik/zeroexport/regulator"
)

// ControlLoop is the outer-tick supervisor described in spec.md §4.5: an
// unbounded loop with an initial settle delay, each tick rebuilding the
// active set, reading the meter, checking the gate, regulating, apportioning,
// dispatching, and running a fast inner poll for large transients.
type ControlLoop struct {
	view      *GatewayView
	gate      *EnableGate
	meter     *MeterReader
	actuator  *GatewayActuator
	sender    *BusSender
	ourPrefix string
	reg       *regulator.Regulator
	sink      *TelemetrySink
	log       *logrus.Logger
	inverters []InverterSpec
	params    ControlParams
}

// NewControlLoop wires the collaborators for one run.
func NewControlLoop(view *GatewayView, gate *EnableGate, meter *MeterReader, actuator *GatewayActuator, sender *BusSender, ourPrefix string, reg *regulator.Regulator, sink *TelemetrySink, log *logrus.Logger, inverters []InverterSpec, params ControlParams) *ControlLoop {
	return &ControlLoop{
		view: view, gate: gate, meter: meter, actuator: actuator,
		sender: sender, ourPrefix: ourPrefix,
		reg: reg, sink: sink, log: log, inverters: inverters, params: params,
	}
}

// Run executes the outer loop until ctx is cancelled. Matches the teacher's
// SafeGo convention of a function taking ctx and returning on cancellation or
// panic (the latter recovered and retried by the caller).
func (c *ControlLoop) Run(ctx context.Context) {
	select {
	case <-time.After(3 * time.Second):
	case <-ctx.Done():
		return
	}

	outerTick := time.Duration(c.params.OuterTickSeconds) * time.Second
	innerPoll := time.Duration(c.params.InnerPollSeconds) * time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		c.tick(ctx, outerTick, innerPoll)
	}
}

func (c *ControlLoop) sleepOuterTick(ctx context.Context, outerTick time.Duration) {
	select {
	case <-time.After(outerTick):
	case <-ctx.Done():
	}
}

func (c *ControlLoop) tick(ctx context.Context, outerTick, innerPoll time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("control loop: tick failed, regulator state preserved")
		}
	}()

	active := c.buildActiveSet()

	reading, err := c.meter.Read(ctx)
	if err != nil {
		c.log.WithError(err).Warn("control loop: meter read failed")
		metricMeterReadFailures.Inc()
		c.sleepOuterTick(ctx, outerTick)
		return
	}
	metricGridPowerWatts.Set(reading.PowerW)

	c.emitTelemetry(active, reading)

	enabled := c.gate.Enabled()
	metricEnableGateState.Set(boolToFloat(enabled))
	if !enabled {
		c.publishAggregateState(0, reading.PowerW, false)
		c.sleepOuterTick(ctx, outerTick)
		return
	}

	if len(active.Inverters) == 0 {
		c.log.Warn("control loop: active set empty, degraded state")
		c.sleepOuterTick(ctx, outerTick)
		return
	}

	aggregate := c.regulate(active, reading)
	setpoint := c.apportionAndDispatch(active, aggregate)
	c.publishAggregateState(setpoint.AggregateW, reading.PowerW, true)
	c.log.WithField("decided_at", setpoint.DecidedAt).Debug("control loop: setpoint dispatched")

	c.innerFastPoll(ctx, active, innerPoll, outerTick)
}

// buildActiveSet rebuilds the active set from configured inverters, skipping
// disabled and unreachable ones.
func (c *ControlLoop) buildActiveSet() ActiveSet {
	var active ActiveSet
	anyUnreachable := false

	for _, spec := range c.inverters {
		if !spec.Enabled {
			continue
		}
		if !c.view.Reachable(spec.Serial) {
			anyUnreachable = true
			continue
		}

		active.Inverters = append(active.Inverters, ActiveInverter{
			Spec:          spec,
			Reachable:     true,
			CurrentPowerW: c.view.Power(spec.Serial),
			CurrentLimitW: c.view.LimitApplied(spec.Serial),
		})
		active.AggregateCeilingW += spec.DeviceCeilingW
		active.AggregateFloorW += spec.FloorW()
	}

	if anyUnreachable {
		metricUnreachableInverterTicks.Inc()
	}

	return active
}

func (c *ControlLoop) emitTelemetry(active ActiveSet, reading MeterReading) {
	c.sink.Record("meter", map[string]any{
		"power_w":         reading.PowerW,
		"voltage_v":       reading.VoltageV,
		"current_a":       reading.CurrentA,
		"power_factor":    reading.PowerFactor,
		"total_import_wh": reading.TotalImportWh,
		"total_export_wh": reading.TotalExportWh,
	}, nil)

	c.sink.Record("gateway_health", map[string]any{
		"ac_power":    c.view.GatewayACPower(),
		"ac_yieldday": c.view.GatewayACYieldDay(),
		"dtu_status":  c.view.DTUStatus(),
	}, nil)

	for _, spec := range c.inverters {
		tags := map[string]string{"serial": spec.Serial}
		c.sink.Record("inverter", map[string]any{
			"reachable":      c.view.Reachable(spec.Serial),
			"power_w":        c.view.Power(spec.Serial),
			"limit_applied":  c.view.LimitApplied(spec.Serial),
			"limit_relative": c.view.LimitRelative(spec.Serial),
			"temperature":    c.view.Temperature(spec.Serial),
			"ac_voltage":     c.view.ACVoltage(spec.Serial),
		}, tags)

		volts := c.view.PanelVoltages(spec.Serial)
		currents := c.view.PanelCurrents(spec.Serial)
		powers := c.view.PanelPowers(spec.Serial)
		for ch := 0; ch < 4; ch++ {
			chanTags := map[string]string{"serial": spec.Serial, "channel": string(rune('1' + ch))}
			c.sink.Record("panel_channel", map[string]any{
				"voltage": volts[ch],
				"current": currents[ch],
				"power":   powers[ch],
			}, chanTags)
		}
	}
}

// regulate calls the Regulator with the current grid reading, aggregate
// envelope, and aggregate current power.
func (c *ControlLoop) regulate(active ActiveSet, reading MeterReading) float64 {
	before := c.reg.LastSetpointW()
	currentW := active.AggregateCurrentPowerW()
	if currentW < 0.85*before {
		metricSaturationEvents.Inc()
	}

	aggregate := c.reg.Compute(reading.PowerW, active.AggregateCeilingW, active.AggregateFloorW, currentW)
	metricAggregateSetpointWatts.Set(aggregate)
	return aggregate
}

func (c *ControlLoop) apportionAndDispatch(active ActiveSet, aggregate float64) Setpoint {
	inverters := make([]apportion.Inverter, 0, len(active.Inverters))
	for _, a := range active.Inverters {
		inverters = append(inverters, apportion.Inverter{
			Serial:           a.Spec.Serial,
			NameplateCeiling: a.Spec.NameplateCeilingW,
			DeviceCeiling:    a.Spec.DeviceCeilingW,
			FloorW:           a.Spec.FloorW(),
			Calibration:      a.Spec.CalibrationFactor,
		})
	}

	shares := apportion.Apportion(aggregate, inverters)
	for _, a := range active.Inverters {
		c.actuator.SetLimit(a.Spec.Serial, shares[a.Spec.Serial])
	}
	return Setpoint{AggregateW: aggregate, SharesW: shares, DecidedAt: time.Now()}
}

// publishAggregateState publishes the three retained, QoS-1 state topics
// spec.md §6 names: limit, grid power, and enabled.
func (c *ControlLoop) publishAggregateState(limitW, gridW float64, enabled bool) {
	c.sender.Send(stateMessage(c.ourPrefix, "state/limit", formatWatts(limitW)))
	c.sender.Send(stateMessage(c.ourPrefix, "state/grid_power", formatWatts(gridW)))
	c.sender.Send(stateMessage(c.ourPrefix, "state/enabled", formatBool(enabled)))
}

// innerFastPoll re-reads grid power power-only up to floor(outer/inner)-1
// times, spaced by inner_poll_s, recomputing and re-dispatching if grid
// exceeds max-point or (fast-cut enabled and grid below min-point), per
// spec.md §4.5 step 9.
func (c *ControlLoop) innerFastPoll(ctx context.Context, active ActiveSet, innerPoll, outerTick time.Duration) {
	if innerPoll <= 0 {
		c.sleepOuterTick(ctx, outerTick)
		return
	}

	iterations := int(outerTick/innerPoll) - 1
	for i := 0; i < iterations; i++ {
		select {
		case <-time.After(innerPoll):
		case <-ctx.Done():
			return
		}

		reading, err := c.meter.Read(ctx)
		if err != nil {
			metricMeterReadFailures.Inc()
			continue
		}
		metricGridPowerWatts.Set(reading.PowerW)

		exceeds := reading.PowerW > c.params.MaxPointW
		cuts := c.params.FastLimitDecrease && reading.PowerW < c.params.MinPointW
		if exceeds || cuts {
			aggregate := c.regulate(active, reading)
			setpoint := c.apportionAndDispatch(active, aggregate)
			c.publishAggregateState(setpoint.AggregateW, reading.PowerW, true)
			return
		}
	}
}
