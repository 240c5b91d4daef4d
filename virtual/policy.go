package virtual

import "math"

// ScrollPolicy decides how a list reacts when a mutation moved the scroll
// position away from where it was recorded.
type ScrollPolicy interface {
	// Correct returns the offset to restore and true, or false to leave the
	// current offset alone.
	Correct(recorded, current float64) (float64, bool)
}

// AppendOnly never corrects. It suits lists that only grow at the tail.
type AppendOnly struct{}

// Correct implements ScrollPolicy.
func (AppendOnly) Correct(_, _ float64) (float64, bool) { return 0, false }

// RestoreOnDelta restores the recorded offset when the drift exceeds
// Tolerance. Smaller drifts are left alone.
type RestoreOnDelta struct {
	Tolerance float64
}

// Correct implements ScrollPolicy.
func (p RestoreOnDelta) Correct(recorded, current float64) (float64, bool) {
	if math.Abs(current-recorded) <= p.Tolerance {
		return 0, false
	}
	return recorded, true
}
