package risk

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Tail level used for scenario VaR / ES
const tailLevel = 0.05

// Summary metric keys
const (
	MetricPnLMean  = "scenario_pnl_mean"
	MetricPnLMin   = "scenario_pnl_min"
	MetricPnLMax   = "scenario_pnl_max"
	MetricVaR95    = "scenario_var_95"
	MetricES95     = "scenario_es_95"
	MetricNumPaths = "scenario_num_paths"
)

// VaRIndex is the position of the left-tail quantile in an ascending sort
// of n outcomes, max(int(0.05n)-1, 0).
func VaRIndex(n int) int {
	idx := int(tailLevel*float64(n)) - 1
	if idx < 0 {
		return 0
	}
	return idx
}

// TailRisk returns the left-tail VaR and expected shortfall of returns.
// Both are signed returns, a loss is negative.
func TailRisk(returns []float64) (varValue, es float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := VaRIndex(len(sorted))
	return sorted[idx], stat.Mean(sorted[:idx+1], nil)
}

// SummarizeScenarios computes mean, min, max, VaR, ES and the path count
// of the per-scenario portfolio returns. Nil for no scenarios.
func SummarizeScenarios(returns []float64) map[string]float64 {
	if len(returns) == 0 {
		return nil
	}
	varValue, es := TailRisk(returns)
	return map[string]float64{
		MetricPnLMean:  stat.Mean(returns, nil),
		MetricPnLMin:   floats.Min(returns),
		MetricPnLMax:   floats.Max(returns),
		MetricVaR95:    varValue,
		MetricES95:     es,
		MetricNumPaths: float64(len(returns)),
	}
}
