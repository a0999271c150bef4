package contracts

import "time"

// SoftTargetClass is the ordinal fragility class of an entity
type SoftTargetClass string

const (
	SoftTargetStable     SoftTargetClass = "STABLE"
	SoftTargetWatch      SoftTargetClass = "WATCH"
	SoftTargetFragile    SoftTargetClass = "FRAGILE"
	SoftTargetTargetable SoftTargetClass = "TARGETABLE"
	SoftTargetBreaker    SoftTargetClass = "BREAKER"
)

// SoftTargetClasses lists classes from least to most fragile
var SoftTargetClasses = []SoftTargetClass{
	SoftTargetStable,
	SoftTargetWatch,
	SoftTargetFragile,
	SoftTargetTargetable,
	SoftTargetBreaker,
}

// Rank returns the ordinal position of the class, -1 if unknown
func (c SoftTargetClass) Rank() int {
	for i, cls := range SoftTargetClasses {
		if cls == c {
			return i
		}
	}
	return -1
}

// IsFragile reports FRAGILE, TARGETABLE or BREAKER
func (c SoftTargetClass) IsFragile() bool {
	return c.Rank() >= SoftTargetFragile.Rank()
}

// ParseSoftTargetClass validates a stored class
func ParseSoftTargetClass(s string) (SoftTargetClass, bool) {
	c := SoftTargetClass(s)
	return c, c.Rank() >= 0
}

// SoftTargetState is the latest fragility/stability state of an entity
type SoftTargetState struct {
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	AsOfDate        time.Time       `json:"as_of_date"`
	SoftTargetScore float64         `json:"soft_target_score"`
	SoftTargetClass SoftTargetClass `json:"soft_target_class"`
	WeakProfile     bool            `json:"weak_profile"`
}

// StabilityChangeRisk is the forward-looking soft-target class change summary
type StabilityChangeRisk struct {
	AsOfDate               time.Time                   `json:"as_of_date"`
	EntityType             string                      `json:"entity_type"`
	EntityID               string                      `json:"entity_id"`
	CurrentClass           SoftTargetClass             `json:"current_class"`
	HorizonSteps           int                         `json:"horizon_steps"`
	Distribution           map[SoftTargetClass]float64 `json:"distribution"`
	PWorsenAny             float64                     `json:"p_worsen_any"`
	PImproveAny            float64                     `json:"p_improve_any"`
	PToTargetableOrBreaker float64                     `json:"p_to_targetable_or_breaker"`
	PToBreaker             float64                     `json:"p_to_breaker"`
	RiskScore              float64                     `json:"risk_score"`
}

// FragilityMeasure is an externally computed fragility score for an entity
type FragilityMeasure struct {
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	AsOfDate       time.Time `json:"as_of_date"`
	FragilityScore float64   `json:"fragility_score"`
	ClassLabel     string    `json:"class_label"` // NONE, WATCHLIST, SHORT_CANDIDATE, CRISIS
}
