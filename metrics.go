package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus surface per spec.md's ambient observability stack: counters for
// the failure modes spec.md §7 names as advisory, gauges for the current
// aggregate decision. Exposed on /metrics by httpserver.go.
var (
	metricMeterReadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meter_read_failures_total",
		Help: "Meter Reader HTTP calls that failed or returned unparsable data.",
	})

	metricBusPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_publish_failures_total",
		Help: "MQTT publishes that returned an error token.",
	})

	metricAckTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ack_timeouts_total",
		Help: "wait_for_ack calls that did not settle before the deadline.",
	})

	metricUnreachableInverterTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unreachable_inverter_ticks_total",
		Help: "Outer ticks on which at least one configured inverter was excluded as unreachable.",
	})

	metricSaturationEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saturation_events_total",
		Help: "Regulator calls made while aggregate inverter power was below 85% of the last setpoint (saturation detected).",
	})

	metricAggregateSetpointWatts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aggregate_setpoint_watts",
		Help: "Most recent aggregate setpoint computed by the Regulator.",
	})

	metricGridPowerWatts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_power_watts",
		Help: "Most recent signed grid power reading (negative = exporting).",
	})

	metricEnableGateState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enable_gate_state",
		Help: "1 if the Enable Gate is latched on, 0 otherwise.",
	})

	metricCalibrationRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "calibration_ratio",
		Help: "Observed-over-commanded power ratio per inverter, diagnostic only.",
	}, []string{"serial"})
)
