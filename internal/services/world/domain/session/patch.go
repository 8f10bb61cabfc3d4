package session

import (
	"fmt"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
)

// turnEpsilonMillis is the fixed-point tolerance for turn-based world-time
// comparisons. Comparisons happen in integer milliseconds, never raw floats.
const turnEpsilonMillis = 1

// Patch describes an update to a session. Nil fields leave the current value
// untouched.
type Patch struct {
	WorldTimeSeconds *float64
	Flags            Flags
	Relationships    map[string]Relationship
}

// millisFromSeconds rounds a fractional-second world time to milliseconds.
func millisFromSeconds(seconds float64) int64 {
	if seconds >= 0 {
		return int64(seconds*1000 + 0.5)
	}
	return int64(seconds*1000 - 0.5)
}

func absMillis(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}

// ApplyPatch applies a patch to an existing session, returning the patched
// session and whether anything actually changed. A no-op patch must not burn
// a version, so callers bump Version only when changed is true.
//
// Flags apply before the world-time check so a patch can enter turn-based
// mode and advance time consistently in one call.
func ApplyPatch(existing Session, patch Patch) (result Session, changed bool, err error) {
	result = existing

	if patch.Flags != nil && !flagsEqual(existing.Flags, patch.Flags) {
		result.Flags = patch.Flags.clone()
		changed = true
	}

	if patch.WorldTimeSeconds != nil {
		proposed := millisFromSeconds(*patch.WorldTimeSeconds)
		if err := checkTurnAdvance(result.Flags, existing.WorldTimeMillis, proposed); err != nil {
			return Session{}, false, err
		}
		if proposed != existing.WorldTimeMillis {
			result.WorldTimeMillis = proposed
			changed = true
		}
	}

	if patch.Relationships != nil && !relationshipsEqual(existing.Relationships, patch.Relationships) {
		result.Relationships = cloneRelationships(patch.Relationships)
		changed = true
	}

	return result, changed, nil
}

// checkTurnAdvance enforces the turn-based world-time rule: the proposed time
// must equal the current value or current plus the configured turn step,
// within a one-millisecond fixed-point epsilon.
func checkTurnAdvance(flags Flags, currentMillis, proposedMillis int64) error {
	if !flags.TurnBased() {
		return nil
	}
	deltaMillis, configured := flags.TurnDeltaMillis()
	if !configured {
		return nil
	}

	step := proposedMillis - currentMillis
	if absMillis(step) <= turnEpsilonMillis {
		return nil
	}
	if absMillis(step-deltaMillis) <= turnEpsilonMillis {
		return nil
	}
	return apperr.WithMetadata(apperr.CodeTurnBasedViolation,
		fmt.Sprintf("world time must advance by 0 or %dms, got %dms", deltaMillis, step),
		map[string]string{
			"current_ms":  fmt.Sprintf("%d", currentMillis),
			"proposed_ms": fmt.Sprintf("%d", proposedMillis),
			"turn_ms":     fmt.Sprintf("%d", deltaMillis),
		})
}
