package contracts

import "time"

// TargetPortfolio is the long-only target weight vector plus diagnostics.
// Derived fresh each run from the included universe members.
type TargetPortfolio struct {
	PortfolioID        string                 `json:"portfolio_id"`
	AsOfDate           time.Time              `json:"as_of_date"`
	Weights            map[string]float64     `json:"weights"`
	ExpectedReturn     float64                `json:"expected_return"`
	ExpectedVolatility float64                `json:"expected_volatility"`
	RiskMetrics        map[string]float64     `json:"risk_metrics"`
	FactorExposures    map[string]float64     `json:"factor_exposures"`
	ConstraintsStatus  map[string]bool        `json:"constraints_status"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// TotalWeight returns the sum of all weights
func (tp *TargetPortfolio) TotalWeight() float64 {
	total := 0.0
	for _, w := range tp.Weights {
		total += w
	}
	return total
}

// Count returns the number of names
func (tp *TargetPortfolio) Count() int {
	return len(tp.Weights)
}

// RiskReport is the companion risk artifact of a TargetPortfolio
type RiskReport struct {
	PortfolioID string                 `json:"portfolio_id"`
	AsOfDate    time.Time              `json:"as_of_date"`
	Exposures   map[string]float64     `json:"exposures"`
	RiskMetrics map[string]float64     `json:"risk_metrics"`
	ScenarioPnL map[string]float64     `json:"scenario_pnl,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
}
