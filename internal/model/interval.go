// Package model defines domain types for timetray intervals and week totals.
package model

import "time"

// Interval is one continuous tracked session, [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the interval has a positive duration.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Duration returns End - Start, or zero for an invalid interval.
func (iv Interval) Duration() time.Duration {
	if !iv.Valid() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}
