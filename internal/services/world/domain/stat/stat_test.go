package stat

import (
	"errors"
	"testing"
	"time"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
)

func strengthDefinition() Definition {
	return Definition{
		ID: "relationship",
		Axes: []Axis{
			{Name: "strength", Min: 0, Max: 100, Default: 10},
		},
		Tiers: []Tier{
			{ID: "novice", Axis: "strength", Min: 0, Max: 29},
			{ID: "advanced", Axis: "strength", Min: 30, Max: 69},
			{ID: "expert", Axis: "strength", Min: 70, Max: 100},
		},
	}
}

func TestNormalizeClampsAndTiers(t *testing.T) {
	def := strengthDefinition()

	resolved, err := Normalize(Values{"strength": 250}, def)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if resolved.Values["strength"] != 100 {
		t.Fatalf("expected clamp to 100, got %v", resolved.Values["strength"])
	}
	if resolved.Tiers["strength"] != "expert" {
		t.Fatalf("expected expert tier, got %q", resolved.Tiers["strength"])
	}
}

func TestNormalizeAppliesDefaultForMissingAxis(t *testing.T) {
	def := strengthDefinition()

	resolved, err := Normalize(Values{}, def)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if resolved.Values["strength"] != 10 {
		t.Fatalf("expected default 10, got %v", resolved.Values["strength"])
	}
	if resolved.Tiers["strength"] != "novice" {
		t.Fatalf("expected novice tier, got %q", resolved.Tiers["strength"])
	}
}

func TestNormalizeIgnoresUnknownAxes(t *testing.T) {
	def := strengthDefinition()

	resolved, err := Normalize(Values{"strength": 40, "charm": 999}, def)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, ok := resolved.Values["charm"]; ok {
		t.Fatal("expected unknown axis to be dropped")
	}
}

func TestNormalizeRejectsMalformedDefinition(t *testing.T) {
	def := Definition{
		ID:   "broken",
		Axes: []Axis{{Name: "strength", Min: 100, Max: 0}},
	}

	_, err := Normalize(Values{"strength": 50}, def)
	if err == nil {
		t.Fatal("expected error for min greater than max")
	}
	if !errors.Is(err, apperr.New(apperr.CodeInvalidDefinition, "")) {
		t.Fatalf("expected INVALID_DEFINITION, got %v", err)
	}
}

func TestMergeIsRightBiasedAndPure(t *testing.T) {
	base := Values{"strength": 20, "trust": 5}
	overrides := Values{"strength": 80}

	merged := Merge(base, overrides)
	if merged["strength"] != 80 {
		t.Fatalf("expected override to win, got %v", merged["strength"])
	}
	if merged["trust"] != 5 {
		t.Fatalf("expected base value to survive, got %v", merged["trust"])
	}
	if base["strength"] != 20 {
		t.Fatal("expected base input to stay unmutated")
	}
}

func TestNormalizeMergeEmptyOverrideIsNoOp(t *testing.T) {
	def := strengthDefinition()
	base := Values{"strength": 42}

	direct, err := Normalize(base, def)
	if err != nil {
		t.Fatalf("normalize base: %v", err)
	}
	viaMerge, err := Normalize(Merge(base, Values{}), def)
	if err != nil {
		t.Fatalf("normalize merged: %v", err)
	}

	if direct.Values["strength"] != viaMerge.Values["strength"] {
		t.Fatalf("expected equal values, got %v and %v", direct.Values["strength"], viaMerge.Values["strength"])
	}
	if direct.Tiers["strength"] != viaMerge.Tiers["strength"] {
		t.Fatalf("expected equal tiers, got %q and %q", direct.Tiers["strength"], viaMerge.Tiers["strength"])
	}
}

func TestResolveWithModifiersClampsAndTiers(t *testing.T) {
	def := strengthDefinition()

	resolved, err := ResolveWithModifiers(Values{"strength": 90}, def, []Modifier{
		{Axis: "strength", Kind: KindAdditive, Value: 10, Source: "potion"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Values["strength"] != 100 {
		t.Fatalf("expected clamp to 100, got %v", resolved.Values["strength"])
	}
	if resolved.Tiers["strength"] != "expert" {
		t.Fatalf("expected expert tier, got %q", resolved.Tiers["strength"])
	}
}

func TestResolveWithModifiersOrderIndependent(t *testing.T) {
	def := strengthDefinition()
	base := Values{"strength": 10}

	first, err := ResolveWithModifiers(base, def, []Modifier{
		{Axis: "strength", Kind: KindAdditive, Value: 10},
		{Axis: "strength", Kind: KindAdditive, Value: 5},
		{Axis: "strength", Kind: KindMultiplicative, Value: 2},
	})
	if err != nil {
		t.Fatalf("resolve first: %v", err)
	}

	second, err := ResolveWithModifiers(base, def, []Modifier{
		{Axis: "strength", Kind: KindMultiplicative, Value: 2},
		{Axis: "strength", Kind: KindAdditive, Value: 5},
		{Axis: "strength", Kind: KindAdditive, Value: 10},
	})
	if err != nil {
		t.Fatalf("resolve second: %v", err)
	}

	if first.Values["strength"] != second.Values["strength"] {
		t.Fatalf("expected order independence, got %v and %v", first.Values["strength"], second.Values["strength"])
	}
	// Additive applies before multiplicative: (10+10+5)*2 = 50.
	if first.Values["strength"] != 50 {
		t.Fatalf("expected 50, got %v", first.Values["strength"])
	}
}

func TestResolveWithModifiersIgnoresUnknownAxis(t *testing.T) {
	def := strengthDefinition()

	resolved, err := ResolveWithModifiers(Values{"strength": 40}, def, []Modifier{
		{Axis: "charisma", Kind: KindAdditive, Value: 100},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Values["strength"] != 40 {
		t.Fatalf("expected untouched strength, got %v", resolved.Values["strength"])
	}
}

func TestActiveModifiersFiltersExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	active := ActiveModifiers([]Modifier{
		{Axis: "strength", Kind: KindAdditive, Value: 1, ExpiresAt: &expired},
		{Axis: "strength", Kind: KindAdditive, Value: 2, ExpiresAt: &future},
		{Axis: "strength", Kind: KindAdditive, Value: 3},
	}, now)

	if len(active) != 2 {
		t.Fatalf("expected 2 active modifiers, got %d", len(active))
	}
	for _, mod := range active {
		if mod.Value == 1 {
			t.Fatal("expected expired modifier to be filtered")
		}
	}
}

func TestValidateRejectsOverlappingTiers(t *testing.T) {
	def := Definition{
		ID:   "relationship",
		Axes: []Axis{{Name: "strength", Min: 0, Max: 100}},
		Tiers: []Tier{
			{ID: "low", Axis: "strength", Min: 0, Max: 50},
			{ID: "high", Axis: "strength", Min: 40, Max: 100},
		},
	}

	err := def.Validate()
	if err == nil {
		t.Fatal("expected overlap to be rejected")
	}
	if !errors.Is(err, apperr.New(apperr.CodeInvalidDefinition, "")) {
		t.Fatalf("expected INVALID_DEFINITION, got %v", err)
	}
}
