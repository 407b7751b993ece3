// Package regulator implements the tracked-integral feedback controller that
// turns a stream of grid-power samples into a stream of aggregate inverter
// power-limit setpoints.
package regulator

import "math"

// Config holds the tunable parameters for one Regulator. All fields are
// immutable after construction.
type Config struct {
	TargetW            float64 // T: desired net grid power, may be negative
	ToleranceW         float64 // τ: dead-band half-width, >= 0
	HighThresholdW     float64 // H: fast-import-spike trigger, > TargetW
	LowThresholdW      float64 // L: fast-export-cut trigger, < TargetW
	JumpPercent        float64 // J: percent of ceiling used as the spike jump target
	FastCutEnabled     bool    // F: whether the fast export-cut branch is armed
	SlowLimitPercent   float64 // S: percent of ceiling beyond which descent is dampened
	SlowFactorPercent  float64 // A: percent of the dampened delta restored toward last-setpoint
}

// Validate reports a configuration bug that must be caught at construction,
// per spec: invalid parameters are never a runtime failure.
func (c Config) Validate() error {
	if c.ToleranceW < 0 {
		return errToleranceNegative
	}
	if c.HighThresholdW <= c.TargetW {
		return errHighNotAboveTarget
	}
	if c.LowThresholdW >= c.TargetW {
		return errLowNotBelowTarget
	}
	return nil
}

// Regulator is the pure state machine described in spec.md §4.1. It never
// blocks and never performs I/O; all of its state is the last committed
// setpoint.
type Regulator struct {
	cfg Config

	lastSetpointW float64
}

// New constructs a Regulator from a validated Config, starting at 0W.
func New(cfg Config) (*Regulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Regulator{cfg: cfg}, nil
}

// Reset zeroes the last-setpoint anchor. Used when the caller wants to throw
// away accumulated feedback history (e.g. after a long outage).
func (r *Regulator) Reset() {
	r.lastSetpointW = 0
}

// LastSetpointW returns the most recently committed setpoint without
// mutating state.
func (r *Regulator) LastSetpointW() float64 {
	return r.lastSetpointW
}

// Compute consumes one grid sample and produces the next aggregate setpoint,
// mutating internal state on every non-dead-band call. currentInverterW is
// optional: pass math.NaN() to disable saturation handling.
func (r *Regulator) Compute(gridW, ceilingW, floorW, currentInverterW float64) float64 {
	last := r.lastSetpointW
	e := gridW - r.cfg.TargetW

	if !math.IsNaN(currentInverterW) && currentInverterW < 0.85*last {
		// Saturated: the inverters cannot reach the commanded limit (clouds,
		// shading, derating). Rebase only when we want to reduce; climbing
		// continues to chase the true ceiling regardless of current output.
		if e < 0 {
			last = currentInverterW
		}
	}

	switch {
	case math.Abs(e) <= r.cfg.ToleranceW:
		// Dead band: state untouched, last-setpoint unchanged.
		return r.lastSetpointW

	case gridW > r.cfg.HighThresholdW:
		jumpTarget := 0.0
		if r.cfg.JumpPercent > 0 {
			jumpTarget = math.Floor(ceilingW * r.cfg.JumpPercent / 100)
		}
		candidate := math.Max(jumpTarget, last+math.Floor(e))
		r.lastSetpointW = clamp(candidate, floorW, ceilingW)
		return r.lastSetpointW

	case gridW < r.cfg.LowThresholdW && r.cfg.FastCutEnabled:
		candidate := last + math.Floor(e)
		r.lastSetpointW = clamp(candidate, floorW, ceilingW)
		return r.lastSetpointW

	default:
		next := last + math.Floor(e)
		if e < 0 {
			delta := last - next
			if math.Abs(delta) > math.Floor(ceilingW*r.cfg.SlowLimitPercent/100) {
				next += math.Floor(math.Abs(delta) * r.cfg.SlowFactorPercent / 100)
			}
		}
		r.lastSetpointW = clamp(next, floorW, ceilingW)
		return r.lastSetpointW
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
