package regulator

import "errors"

var (
	errToleranceNegative  = errors.New("regulator: tolerance_w must be >= 0")
	errHighNotAboveTarget = errors.New("regulator: high_threshold_w must be > target_w")
	errLowNotBelowTarget  = errors.New("regulator: low_threshold_w must be < target_w")
)
