package main

import "time"

// InverterSpec is the static, config-derived envelope for one inverter.
// Immutable after startup.
type InverterSpec struct {
	Serial            string  `mapstructure:"serial"`
	Enabled           bool    `mapstructure:"enabled"`
	NameplateCeilingW float64 `mapstructure:"nameplate_ceiling_w"`
	DeviceCeilingW    float64 `mapstructure:"device_ceiling_w"`
	FloorPercent      float64 `mapstructure:"floor_percent"` // percent of DeviceCeilingW
	CalibrationFactor float64 `mapstructure:"calibration_factor"`
}

// FloorW returns the absolute floor in watts for this inverter.
func (s InverterSpec) FloorW() float64 {
	return s.DeviceCeilingW * s.FloorPercent / 100
}

// ControlParams are the immutable regulation/actuation tuning knobs loaded
// from config.
type ControlParams struct {
	TargetW           float64 `mapstructure:"target_w"`
	ToleranceW        float64 `mapstructure:"tolerance_w"`
	MaxPointW         float64 `mapstructure:"max_point_w"`
	MinPointW         float64 `mapstructure:"min_point_w"`
	OnGridJumpPercent float64 `mapstructure:"on_grid_jump_percent"`
	FastLimitDecrease bool    `mapstructure:"fast_limit_decrease"`
	SlowApproxPercent float64 `mapstructure:"slow_approx_percent"`
	SlowApproxFactor  float64 `mapstructure:"slow_approx_factor"`
	OuterTickSeconds  int     `mapstructure:"outer_tick_seconds"`
	InnerPollSeconds  int     `mapstructure:"inner_poll_seconds"`
	AckTimeoutSeconds int     `mapstructure:"ack_timeout_seconds"`
}

// MeterReading is one poll of the house meter.
type MeterReading struct {
	PowerW        float64
	VoltageV      float64
	CurrentA      float64
	PowerFactor   float64
	ReactiveVAR   float64
	TotalImportWh float64
	TotalExportWh float64
}

// ActiveInverter bundles one inverter's spec with telemetry observed in the
// current tick.
type ActiveInverter struct {
	Spec         InverterSpec
	Reachable    bool
	CurrentPowerW float64
	CurrentLimitW float64
}

// ActiveSet is rebuilt once per outer tick from the configured inverters and
// the Gateway View's reachability flags.
type ActiveSet struct {
	Inverters    []ActiveInverter
	AggregateCeilingW float64
	AggregateFloorW   float64
}

// AggregateCurrentPowerW sums CurrentPowerW across the active set; used as
// the Regulator's optional saturation-detection input.
func (a ActiveSet) AggregateCurrentPowerW() float64 {
	var total float64
	for _, inv := range a.Inverters {
		total += inv.CurrentPowerW
	}
	return total
}

// Setpoint is the aggregate decision for one tick plus its per-inverter
// apportionment, returned by apportionAndDispatch after actuation for
// logging and state publication.
type Setpoint struct {
	AggregateW float64
	SharesW    map[string]float64
	DecidedAt  time.Time
}

// MQTTMessage is one outbound bus publish.
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// SensorMessage is the shape of one inbound bus message. The BusWorker's
// subscription handlers do not use it: they pass topic and payload straight
// to GatewayView.Handle and EnableGate.HandleCommand.
type SensorMessage struct {
	Topic   string
	Payload string
}
