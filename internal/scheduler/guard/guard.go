package guard

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidSweepTimeout = errors.New("invalid_sweep_timeout")
	ErrCutoffInFuture      = errors.New("sweep_cutoff_in_future")
)

// SweepCutoff returns the instant before which a Pending recurring
// contribution counts as abandoned.
func SweepCutoff(now time.Time, timeoutHours float64) (time.Time, error) {
	if timeoutHours <= 0 || math.IsNaN(timeoutHours) || math.IsInf(timeoutHours, 0) {
		return time.Time{}, ErrInvalidSweepTimeout
	}
	cutoff := now.Add(-time.Duration(timeoutHours * float64(time.Hour)))
	if cutoff.After(now) {
		return time.Time{}, ErrCutoffInFuture
	}
	return cutoff, nil
}
