package session

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// Flag keys with engine-defined meaning. Everything else in Flags is opaque
// caller state.
const (
	// FlagTurnBased marks a session as turn-based when set to true.
	FlagTurnBased = "turn_based"
	// FlagTurnDeltaSeconds configures the fixed world-time step for
	// turn-based sessions.
	FlagTurnDeltaSeconds = "turn_delta_seconds"
)

// Flags is the open string-keyed session flag map. Values must survive a
// JSON round-trip, so numbers read back as float64.
type Flags map[string]any

// TurnBased reports whether the session is in turn-based mode.
func (f Flags) TurnBased() bool {
	value, ok := f[FlagTurnBased]
	if !ok {
		return false
	}
	enabled, ok := value.(bool)
	return ok && enabled
}

// TurnDeltaMillis returns the configured turn step in milliseconds. The
// second return is false when no usable step is configured.
func (f Flags) TurnDeltaMillis() (int64, bool) {
	value, ok := f[FlagTurnDeltaSeconds]
	if !ok {
		return 0, false
	}
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	case int64:
		seconds = float64(v)
	default:
		return 0, false
	}
	if seconds <= 0 {
		return 0, false
	}
	return int64(seconds*1000 + 0.5), true
}

func (f Flags) clone() Flags {
	if f == nil {
		return Flags{}
	}
	cloned := make(Flags, len(f))
	for key, value := range f {
		cloned[key] = value
	}
	return cloned
}

// flagsEqual compares flags by their JSON encoding, the canonical form every
// flag value survives in. A patch carrying int 3600 against a stored
// round-tripped float64 3600 is a no-op, not a change.
func flagsEqual(a, b Flags) bool {
	if len(a) != len(b) {
		return false
	}
	aJSON, errA := json.Marshal(map[string]any(a))
	bJSON, errB := json.Marshal(map[string]any(b))
	if errA != nil || errB != nil {
		return reflect.DeepEqual(map[string]any(a), map[string]any(b))
	}
	return bytes.Equal(aJSON, bJSON)
}
