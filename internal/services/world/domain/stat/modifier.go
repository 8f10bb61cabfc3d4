package stat

import "time"

// ModifierKind discriminates how a modifier combines with a base value.
type ModifierKind string

const (
	// KindAdditive modifiers sum into the base value.
	KindAdditive ModifierKind = "additive"
	// KindMultiplicative modifiers multiply the post-additive result.
	KindMultiplicative ModifierKind = "multiplicative"
)

// Modifier is a transient adjustment to one stat axis. Modifiers are supplied
// at resolution time and never persisted on the base entity.
type Modifier struct {
	Axis      string
	Kind      ModifierKind
	Value     float64
	Source    string
	ExpiresAt *time.Time
}

// ActiveModifiers filters out modifiers whose expiry has passed. Resolution
// itself stays pure; callers pass the clock in.
func ActiveModifiers(modifiers []Modifier, now time.Time) []Modifier {
	active := make([]Modifier, 0, len(modifiers))
	for _, mod := range modifiers {
		if mod.ExpiresAt != nil && !mod.ExpiresAt.After(now) {
			continue
		}
		active = append(active, mod)
	}
	return active
}
