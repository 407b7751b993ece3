package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// CalibrationMonitor watches the observed-over-commanded power ratio per
// inverter and publishes it as a diagnostic gauge and time-series point. It
// never mutates InverterSpec.CalibrationFactor — purely an operator-facing
// signal for deciding a new static factor by hand. Adapted from
// src/battery_calib_worker.go's shape of watching a ratio settle on a
// cadence and publishing the observation, generalised from battery SOC
// calibration to inverter power calibration.
type CalibrationMonitor struct {
	view      *GatewayView
	sink      *TelemetrySink
	log       *logrus.Logger
	inverters []InverterSpec
	interval  time.Duration

	ratioRange map[string]*RollingMinMax
}

// NewCalibrationMonitor builds a monitor over the configured inverters,
// sampling every interval.
func NewCalibrationMonitor(view *GatewayView, sink *TelemetrySink, log *logrus.Logger, inverters []InverterSpec, interval time.Duration) *CalibrationMonitor {
	ratioRange := make(map[string]*RollingMinMax, len(inverters))
	for _, inv := range inverters {
		r := NewRollingMinMax()
		ratioRange[inv.Serial] = &r
	}
	return &CalibrationMonitor{view: view, sink: sink, log: log, inverters: inverters, interval: interval, ratioRange: ratioRange}
}

// Run samples the ratio on a fixed cadence until ctx is cancelled.
func (m *CalibrationMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sampleOnce()
		case <-ctx.Done():
			return
		}
	}
}

func (m *CalibrationMonitor) sampleOnce() {
	for _, inv := range m.inverters {
		if !m.view.Reachable(inv.Serial) {
			continue
		}

		commanded := m.view.LimitApplied(inv.Serial)
		if commanded <= 0 {
			continue
		}

		observed := m.view.Power(inv.Serial)
		ratio := observed / commanded

		window := m.ratioRange[inv.Serial]
		window.Update(ratio)

		metricCalibrationRatio.WithLabelValues(inv.Serial).Set(ratio)
		m.sink.Record("inverter_calibration", map[string]any{
			"ratio":       ratio,
			"observed":    observed,
			"commanded":   commanded,
			"ratio_min1h": window.Min(),
			"ratio_max1h": window.Max(),
		}, map[string]string{"serial": inv.Serial})

		m.log.WithFields(logrus.Fields{
			"serial": inv.Serial,
			"ratio":  ratio,
			"min1h":  window.Min(),
			"max1h":  window.Max(),
		}).Debug("calibration: sampled")
	}
}
