package contracts

import "time"

// Tier is the universe tier of a member
type Tier string

const (
	TierCore      Tier = "CORE"
	TierSatellite Tier = "SATELLITE"
	TierExcluded  Tier = "EXCLUDED"
)

const EntityTypeInstrument = "INSTRUMENT"

// UniverseMember is one candidate of a universe build, included or not.
// Reasons values are restricted to float64, string and bool.
type UniverseMember struct {
	AsOfDate   time.Time              `json:"as_of_date"`
	UniverseID string                 `json:"universe_id"`
	EntityType string                 `json:"entity_type"`
	EntityID   string                 `json:"entity_id"`
	Included   bool                   `json:"included"`
	Score      float64                `json:"score"`
	Tier       Tier                   `json:"tier"`
	Reasons    map[string]interface{} `json:"reasons"`
}

// ReasonFloat reads a numeric diagnostic
func (m UniverseMember) ReasonFloat(key string) (float64, bool) {
	v, ok := m.Reasons[key].(float64)
	return v, ok
}

// ReasonString reads a string diagnostic
func (m UniverseMember) ReasonString(key string) (string, bool) {
	v, ok := m.Reasons[key].(string)
	return v, ok
}

// ReasonBool reads a flag, false when absent
func (m UniverseMember) ReasonBool(key string) bool {
	v, _ := m.Reasons[key].(bool)
	return v
}

// IncludedMembers filters members with included = true
func IncludedMembers(members []UniverseMember) []UniverseMember {
	out := make([]UniverseMember, 0, len(members))
	for _, m := range members {
		if m.Included {
			out = append(out, m)
		}
	}
	return out
}

// CountByTier summarizes a build
func CountByTier(members []UniverseMember) map[Tier]int {
	counts := make(map[Tier]int)
	for _, m := range members {
		counts[m.Tier]++
	}
	return counts
}
