package contracts

import "time"

// RegimeLabel is a discrete market regime
type RegimeLabel string

const (
	RegimeCrisis  RegimeLabel = "CRISIS"
	RegimeRiskOff RegimeLabel = "RISK_OFF"
	RegimeCarry   RegimeLabel = "CARRY"
	RegimeNeutral RegimeLabel = "NEUTRAL"
)

// RegimeLabels is the fixed label set in canonical order.
// Transition matrices are indexed in this order.
var RegimeLabels = []RegimeLabel{RegimeCrisis, RegimeRiskOff, RegimeCarry, RegimeNeutral}

// StressedRegimes are the labels counted by p_to_stressed
var StressedRegimes = []RegimeLabel{RegimeCrisis, RegimeRiskOff}

// ParseRegimeLabel validates a stored label
func ParseRegimeLabel(s string) (RegimeLabel, bool) {
	for _, l := range RegimeLabels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// RegimePrototype is a labelled cluster center in embedding space
type RegimePrototype struct {
	Label  RegimeLabel `json:"label" yaml:"label"`
	Center []float64   `json:"center" yaml:"center"`
}

// RegimeState is the classified regime for one (region, date).
// Values are never mutated; a later date produces a new state.
type RegimeState struct {
	RegimeID    string                 `json:"regime_id"`
	AsOfDate    time.Time              `json:"as_of_date"`
	Region      string                 `json:"region"`
	RegimeLabel RegimeLabel            `json:"regime_label"`
	Confidence  float64                `json:"confidence"`
	Embedding   []float64              `json:"embedding,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// RegimeTransition records a label change between consecutive states
type RegimeTransition struct {
	TransitionID string      `json:"transition_id"`
	Region       string      `json:"region"`
	AsOfDate     time.Time   `json:"as_of_date"`
	FromLabel    RegimeLabel `json:"from_regime_label"`
	ToLabel      RegimeLabel `json:"to_regime_label"`
}

// RegimeChangeRisk is the forward-looking regime change summary for a region.
// RiskScore is in [0,1], higher = worse.
type RegimeChangeRisk struct {
	AsOfDate       time.Time               `json:"as_of_date"`
	Region         string                  `json:"region"`
	CurrentRegime  RegimeLabel             `json:"current_regime"`
	HorizonSteps   int                     `json:"horizon_steps"`
	Distribution   map[RegimeLabel]float64 `json:"distribution"`
	PChangeAny     float64                 `json:"p_change_any"`
	PToStressed    float64                 `json:"p_to_stressed"`
	PToCarry       float64                 `json:"p_to_carry"`
	TargetLabel    RegimeLabel             `json:"target_label"`
	PToTargetLabel float64                 `json:"p_to_target_label"`
	RiskScore      float64                 `json:"risk_score"`
}
