// Package world holds the persistent shared-world records: the world itself
// and its monotonic clock state.
package world

import "time"

// World is a persistent shared context owned by one user.
type World struct {
	ID        string
	OwnerID   string
	Name      string
	SchemaID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the clock state of a world at a point in time.
//
// The clock is kept in integer milliseconds so concurrent increments commute
// exactly; seconds are a presentation concern.
type Snapshot struct {
	WorldID        string
	ClockMillis    int64
	LastAdvancedAt time.Time
}

// ClockSeconds returns the clock as fractional seconds.
func (s Snapshot) ClockSeconds() float64 {
	return float64(s.ClockMillis) / 1000
}

// MillisFromSeconds converts a fractional-second delta to clock milliseconds,
// rounding to the nearest millisecond.
func MillisFromSeconds(seconds float64) int64 {
	if seconds >= 0 {
		return int64(seconds*1000 + 0.5)
	}
	return int64(seconds*1000 - 0.5)
}
