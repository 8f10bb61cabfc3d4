package session

import (
	"errors"
	"testing"
	"time"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
	"github.com/louisbranch/storyforge/internal/services/world/domain/stat"
)

func float64Ptr(value float64) *float64 {
	return &value
}

func baseSession() Session {
	sess, err := New("sess-1", "user-1", "", "node-a", nil, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	return sess
}

func TestNewRequiresOwner(t *testing.T) {
	_, err := New("sess-1", "", "", "node-a", nil, time.Now())
	if err == nil {
		t.Fatal("expected error for empty owner")
	}
	if !errors.Is(err, apperr.New(apperr.CodeSessionOwnerEmpty, "")) {
		t.Fatalf("expected SESSION_OWNER_EMPTY, got %v", err)
	}
}

func TestApplyPatchNoOpLeavesUnchanged(t *testing.T) {
	sess := baseSession()

	_, changed, err := ApplyPatch(sess, Patch{
		WorldTimeSeconds: float64Ptr(0),
		Relationships:    map[string]Relationship{},
	})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if changed {
		t.Fatal("expected no-op patch to report unchanged")
	}
}

func TestApplyPatchWorldTime(t *testing.T) {
	sess := baseSession()

	patched, changed, err := ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(42.5)})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}
	if patched.WorldTimeMillis != 42500 {
		t.Fatalf("expected 42500ms, got %d", patched.WorldTimeMillis)
	}
}

func TestApplyPatchTurnBasedAdvance(t *testing.T) {
	sess := baseSession()
	sess.Flags = Flags{
		FlagTurnBased:        true,
		FlagTurnDeltaSeconds: float64(3600),
	}

	// One full turn forward succeeds.
	patched, changed, err := ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(3600)})
	if err != nil {
		t.Fatalf("turn advance: %v", err)
	}
	if !changed || patched.WorldTimeMillis != 3_600_000 {
		t.Fatalf("expected 3600000ms, got %d changed=%v", patched.WorldTimeMillis, changed)
	}

	// A half turn fails.
	_, _, err = ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(1800)})
	if err == nil {
		t.Fatal("expected turn-based violation")
	}
	if !errors.Is(err, apperr.New(apperr.CodeTurnBasedViolation, "")) {
		t.Fatalf("expected TURN_BASED_VIOLATION, got %v", err)
	}

	// Re-submitting the current time is a no-op, not a violation.
	_, changed, err = ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(0)})
	if err != nil {
		t.Fatalf("same-time patch: %v", err)
	}
	if changed {
		t.Fatal("expected same-time patch to report unchanged")
	}
}

func TestApplyPatchTurnBasedEpsilon(t *testing.T) {
	sess := baseSession()
	sess.Flags = Flags{
		FlagTurnBased:        true,
		FlagTurnDeltaSeconds: float64(3600),
	}

	// Within one millisecond of a full turn is accepted.
	_, _, err := ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(3600.001)})
	if err != nil {
		t.Fatalf("expected epsilon tolerance, got %v", err)
	}

	// Two milliseconds off is rejected.
	_, _, err = ApplyPatch(sess, Patch{WorldTimeSeconds: float64Ptr(3600.002)})
	if err == nil {
		t.Fatal("expected violation outside epsilon")
	}
}

func TestApplyPatchFlagsApplyBeforeTimeCheck(t *testing.T) {
	sess := baseSession()

	// Entering turn-based mode and advancing a full turn in one patch works.
	_, _, err := ApplyPatch(sess, Patch{
		Flags: Flags{
			FlagTurnBased:        true,
			FlagTurnDeltaSeconds: float64(60),
		},
		WorldTimeSeconds: float64Ptr(60),
	})
	if err != nil {
		t.Fatalf("combined patch: %v", err)
	}

	// The same patch with a partial step is rejected by the new flags.
	_, _, err = ApplyPatch(sess, Patch{
		Flags: Flags{
			FlagTurnBased:        true,
			FlagTurnDeltaSeconds: float64(60),
		},
		WorldTimeSeconds: float64Ptr(30),
	})
	if err == nil {
		t.Fatal("expected violation under patched flags")
	}
}

func TestApplyPatchRelationships(t *testing.T) {
	sess := baseSession()

	relationships := map[string]Relationship{
		"npc:bartender": {Stats: stat.Values{"strength": 40}},
	}
	patched, changed, err := ApplyPatch(sess, Patch{Relationships: relationships})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if !changed {
		t.Fatal("expected change")
	}

	// The patched session owns its own copy.
	relationships["npc:bartender"].Stats["strength"] = 99
	if patched.Relationships["npc:bartender"].Stats["strength"] != 40 {
		t.Fatal("expected patched session to be isolated from caller map")
	}

	// Re-applying the same values is a no-op.
	_, changed, err = ApplyPatch(patched, Patch{Relationships: map[string]Relationship{
		"npc:bartender": {Stats: stat.Values{"strength": 40}},
	}})
	if err != nil {
		t.Fatalf("apply identical patch: %v", err)
	}
	if changed {
		t.Fatal("expected identical relationship patch to report unchanged")
	}
}

func TestApplyPatchFlagNumericTypesCompareEqual(t *testing.T) {
	sess := baseSession()
	// Stored flags come back from JSON as float64.
	sess.Flags = Flags{
		FlagTurnBased:        true,
		FlagTurnDeltaSeconds: float64(3600),
	}

	// A caller re-sending the same flags as int must be a no-op.
	_, changed, err := ApplyPatch(sess, Patch{
		Flags: Flags{
			FlagTurnBased:        true,
			FlagTurnDeltaSeconds: 3600,
		},
	})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if changed {
		t.Fatal("expected numerically equal flags to report unchanged")
	}

	// A genuinely different value still registers as a change.
	result, changed, err := ApplyPatch(sess, Patch{
		Flags: Flags{
			FlagTurnBased:        true,
			FlagTurnDeltaSeconds: 1800,
		},
	})
	if err != nil {
		t.Fatalf("apply changed patch: %v", err)
	}
	if !changed {
		t.Fatal("expected different delta to report changed")
	}
	deltaMillis, ok := result.Flags.TurnDeltaMillis()
	if !ok || deltaMillis != 1_800_000 {
		t.Fatalf("expected 1800000ms, got %d ok=%v", deltaMillis, ok)
	}
}

func TestFlagsTurnHelpers(t *testing.T) {
	flags := Flags{
		FlagTurnBased:        true,
		FlagTurnDeltaSeconds: float64(90),
	}
	if !flags.TurnBased() {
		t.Fatal("expected turn-based mode")
	}
	deltaMillis, ok := flags.TurnDeltaMillis()
	if !ok || deltaMillis != 90_000 {
		t.Fatalf("expected 90000ms, got %d ok=%v", deltaMillis, ok)
	}

	if (Flags{}).TurnBased() {
		t.Fatal("expected default to be real-time")
	}
	if (Flags{FlagTurnBased: "yes"}).TurnBased() {
		t.Fatal("expected non-bool flag value to be ignored")
	}
	if _, ok := (Flags{FlagTurnDeltaSeconds: float64(-5)}).TurnDeltaMillis(); ok {
		t.Fatal("expected non-positive delta to be unusable")
	}
}
