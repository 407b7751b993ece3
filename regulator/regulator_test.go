package regulator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioConfig returns the ControlParams used by every §8 end-to-end
// scenario: T=20, tolerance=10, H=5000, L=-5000, S=10, A=50, fast-cut on.
func scenarioConfig() Config {
	return Config{
		TargetW:           20,
		ToleranceW:        10,
		HighThresholdW:    5000,
		LowThresholdW:     -5000,
		JumpPercent:       0,
		FastCutEnabled:    true,
		SlowLimitPercent:  10,
		SlowFactorPercent: 50,
	}
}

func withLastSetpoint(t *testing.T, cfg Config, last float64) *Regulator {
	t.Helper()
	r, err := New(cfg)
	require.NoError(t, err)
	r.lastSetpointW = last
	return r
}

func TestScenarios(t *testing.T) {
	const ceiling, floor = 2000.0, 0.0

	tests := []struct {
		name    string
		last    float64
		gridW   float64
		current float64 // NaN disables saturation
		want    float64
	}{
		{"dead_band", 1000, 25, 1000, 1000},
		{"normal_climb", 1000, 500, 1000, 1480},
		{"descent_no_dampening", 1000, -100, 1000, 880},
		{"dampened_descent", 1000, -500, 1000, 740},
		{"saturated_export_rebase", 1000, -100, 200, 80},
		{"fast_cut_clamped_to_floor", 2000, -6000, 2000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := withLastSetpoint(t, scenarioConfig(), tt.last)
			got := r.Compute(tt.gridW, ceiling, floor, tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, r.LastSetpointW())
		})
	}
}

func TestDeadBandLeavesStateUntouched(t *testing.T) {
	r := withLastSetpoint(t, scenarioConfig(), 750)
	got := r.Compute(25, 2000, 0, math.NaN())
	assert.Equal(t, 750.0, got)
	assert.Equal(t, 750.0, r.LastSetpointW())
}

func TestClampingHoldsAcrossInputs(t *testing.T) {
	cfg := scenarioConfig()
	samples := []float64{-50000, -6000, -5000, -100, 0, 25, 5000, 6000, 1e6}
	r := withLastSetpoint(t, cfg, 1000)
	for _, g := range samples {
		got := r.Compute(g, 2000, 100, math.NaN())
		assert.GreaterOrEqual(t, got, 100.0)
		assert.LessOrEqual(t, got, 2000.0)
	}
}

func TestMonotoneFastCut(t *testing.T) {
	cfg := scenarioConfig()
	r := withLastSetpoint(t, cfg, 1500)
	before := r.LastSetpointW()
	got := r.Compute(-9000, 2000, 0, math.NaN())
	assert.LessOrEqual(t, got, before)
}

func TestMonotoneSpike(t *testing.T) {
	cfg := scenarioConfig()
	r := withLastSetpoint(t, cfg, 500)
	before := r.LastSetpointW()
	got := r.Compute(9000, 2000, 0, math.NaN())
	assert.GreaterOrEqual(t, got, before)
}

func TestSaturationImportPreservesLastSetpointAnchor(t *testing.T) {
	// P < 0.85*last and e > 0: anchor stays at last, not P.
	cfg := scenarioConfig()
	r := withLastSetpoint(t, cfg, 1000)
	// gridW chosen so e = gridW - target > 0 but below the spike threshold.
	got := r.Compute(100, 2000, 0, 200) // e = 80
	assert.Equal(t, 1080.0, got)
}

func TestSpikeDeltaWinsOverSmallerJumpTarget(t *testing.T) {
	cfg := scenarioConfig()
	cfg.JumpPercent = 50 // jump target = 0.5 * 2000 = 1000
	r := withLastSetpoint(t, cfg, 100)
	got := r.Compute(9000, 2000, 0, math.NaN()) // e = 8980, last+floor(e) = 9080 > jump
	assert.Equal(t, 2000.0, got) // clamped to ceiling
}

func TestConfigValidation(t *testing.T) {
	bad := scenarioConfig()
	bad.ToleranceW = -1
	_, err := New(bad)
	assert.ErrorIs(t, err, errToleranceNegative)

	bad = scenarioConfig()
	bad.HighThresholdW = 10
	bad.TargetW = 20
	_, err = New(bad)
	assert.ErrorIs(t, err, errHighNotAboveTarget)

	bad = scenarioConfig()
	bad.LowThresholdW = 30
	bad.TargetW = 20
	_, err = New(bad)
	assert.ErrorIs(t, err, errLowNotBelowTarget)
}

func TestResetZeroesSetpoint(t *testing.T) {
	r := withLastSetpoint(t, scenarioConfig(), 1500)
	r.Reset()
	assert.Equal(t, 0.0, r.LastSetpointW())
}
