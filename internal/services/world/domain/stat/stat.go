// Package stat implements deterministic stat resolution for narrative
// entities: axis normalization, base/override merging, and modifier
// application. All functions are pure and perform no I/O so resolution is
// reproducible under any interleaving of callers.
package stat

import (
	"fmt"

	apperr "github.com/louisbranch/storyforge/internal/platform/errors"
)

// Axis describes one numeric dimension of a stat group.
type Axis struct {
	Name    string  `yaml:"name"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// Definition describes the axes and tier bands for one stat group.
type Definition struct {
	ID    string `yaml:"id"`
	Axes  []Axis `yaml:"axes"`
	Tiers []Tier `yaml:"tiers"`
}

// Values maps axis names to raw axis values.
type Values map[string]float64

// Resolved holds normalized axis values and the tier id derived per axis.
type Resolved struct {
	Values Values
	Tiers  map[string]string
}

// Validate checks axis ranges and rejects overlapping tier bands.
//
// Overlap is rejected at definition time; if an overlapping definition slips
// through anyway, ResolveTier still resolves deterministically.
func (d Definition) Validate() error {
	for _, axis := range d.Axes {
		if axis.Min > axis.Max {
			return invalidDefinition(d.ID, fmt.Sprintf("axis %s has min %v greater than max %v", axis.Name, axis.Min, axis.Max))
		}
	}
	byAxis := make(map[string][]Tier)
	for _, tier := range d.Tiers {
		if tier.Min > tier.Max {
			return invalidDefinition(d.ID, fmt.Sprintf("tier %s has min %v greater than max %v", tier.ID, tier.Min, tier.Max))
		}
		byAxis[tier.Axis] = append(byAxis[tier.Axis], tier)
	}
	for axis, tiers := range byAxis {
		sorted := sortTiers(tiers)
		for i := 1; i < len(sorted); i++ {
			if sorted[i].Min <= sorted[i-1].Max {
				return invalidDefinition(d.ID, fmt.Sprintf("tiers %s and %s overlap on axis %s", sorted[i-1].ID, sorted[i].ID, axis))
			}
		}
	}
	return nil
}

func (d Definition) axis(name string) (Axis, bool) {
	for _, axis := range d.Axes {
		if axis.Name == name {
			return axis, true
		}
	}
	return Axis{}, false
}

func (d Definition) tiersForAxis(name string) []Tier {
	var tiers []Tier
	for _, tier := range d.Tiers {
		if tier.Axis == name {
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

// checkAxes rejects malformed axis ranges. This is the only failing path in
// resolution; everything else degrades by ignoring unknown input.
func (d Definition) checkAxes() error {
	for _, axis := range d.Axes {
		if axis.Min > axis.Max {
			return invalidDefinition(d.ID, fmt.Sprintf("axis %s has min %v greater than max %v", axis.Name, axis.Min, axis.Max))
		}
	}
	return nil
}

func invalidDefinition(definitionID, message string) error {
	return apperr.WithMetadata(apperr.CodeInvalidDefinition, message, map[string]string{
		"definition_id": definitionID,
	})
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Normalize clamps each defined axis into its range, applies defaults for
// missing axes, and derives the tier id per axis. Axes absent from the
// definition are ignored.
func Normalize(base Values, def Definition) (Resolved, error) {
	if err := def.checkAxes(); err != nil {
		return Resolved{}, err
	}

	resolved := Resolved{
		Values: make(Values, len(def.Axes)),
		Tiers:  make(map[string]string, len(def.Axes)),
	}
	for _, axis := range def.Axes {
		value, ok := base[axis.Name]
		if !ok {
			value = axis.Default
		}
		value = clamp(value, axis.Min, axis.Max)
		resolved.Values[axis.Name] = value
		if tierID, ok := ResolveTier(value, def.tiersForAxis(axis.Name)); ok {
			resolved.Tiers[axis.Name] = tierID
		}
	}
	return resolved, nil
}

// Merge combines base values with per-instance overrides. The merge is
// shallow and right-biased: overrides win. Neither input is mutated.
func Merge(base, overrides Values) Values {
	merged := make(Values, len(base)+len(overrides))
	for name, value := range base {
		merged[name] = value
	}
	for name, value := range overrides {
		merged[name] = value
	}
	return merged
}

// ResolveWithModifiers applies modifiers per axis in a fixed order: additive
// modifiers sum into the base, then multiplicative modifiers multiply the
// result. Registration order never affects the outcome. Modifiers naming an
// unknown axis are ignored. The result is clamped and tiered like Normalize.
func ResolveWithModifiers(base Values, def Definition, modifiers []Modifier) (Resolved, error) {
	if err := def.checkAxes(); err != nil {
		return Resolved{}, err
	}

	additive := make(map[string]float64)
	multiplier := make(map[string]float64)
	for _, mod := range modifiers {
		if _, known := def.axis(mod.Axis); !known {
			continue
		}
		switch mod.Kind {
		case KindAdditive:
			additive[mod.Axis] += mod.Value
		case KindMultiplicative:
			current, ok := multiplier[mod.Axis]
			if !ok {
				current = 1
			}
			multiplier[mod.Axis] = current * mod.Value
		}
	}

	resolved := Resolved{
		Values: make(Values, len(def.Axes)),
		Tiers:  make(map[string]string, len(def.Axes)),
	}
	for _, axis := range def.Axes {
		value, ok := base[axis.Name]
		if !ok {
			value = axis.Default
		}
		value += additive[axis.Name]
		if factor, ok := multiplier[axis.Name]; ok {
			value *= factor
		}
		value = clamp(value, axis.Min, axis.Max)
		resolved.Values[axis.Name] = value
		if tierID, ok := ResolveTier(value, def.tiersForAxis(axis.Name)); ok {
			resolved.Tiers[axis.Name] = tierID
		}
	}
	return resolved, nil
}
