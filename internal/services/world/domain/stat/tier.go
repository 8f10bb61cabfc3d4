package stat

import "sort"

// Tier is a named band over a numeric axis.
type Tier struct {
	ID   string  `yaml:"id"`
	Axis string  `yaml:"axis"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// sortTiers returns a copy of tiers stably sorted by Min ascending.
func sortTiers(tiers []Tier) []Tier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min < sorted[j].Min
	})
	return sorted
}

// ResolveTier returns the tier id whose [Min, Max] range contains axisValue.
//
// Candidates are scanned in Min-ascending order, so the tier with the
// numerically smallest Min wins when ranges overlap. This removes any
// dependence on declaration order. Callers must pre-clamp axisValue;
// ResolveTier does not clamp.
func ResolveTier(axisValue float64, tiers []Tier) (string, bool) {
	for _, tier := range sortTiers(tiers) {
		if axisValue >= tier.Min && axisValue <= tier.Max {
			return tier.ID, true
		}
	}
	return "", false
}
