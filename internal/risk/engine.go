package risk

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// ScenarioResult is the scenario P&L of one portfolio against one scenario set
type ScenarioResult struct {
	SetID string `json:"scenario_set_id"`
	// PnL is keyed "<set>:<scenario_id>"
	PnL     map[string]float64 `json:"scenario_pnl"`
	Summary map[string]float64 `json:"summary"`
}

// ScenarioPnL aggregates instrument scenario paths into per-scenario portfolio
// returns. Each instrument contributes weight * (prod(1+r) - 1) over its path;
// horizon index 0 is the baseline and is skipped.
func ScenarioPnL(setID string, rows []contracts.ScenarioPathRow, weights map[string]float64) ScenarioResult {
	type key struct {
		scenario   int
		instrument string
	}
	growth := make(map[key]float64)
	for _, r := range rows {
		if r.HorizonIndex == 0 {
			continue
		}
		k := key{r.ScenarioID, r.InstrumentID}
		g, ok := growth[k]
		if !ok {
			g = 1
		}
		growth[k] = g * (1 + r.ReturnValue)
	}

	byScenario := make(map[int]float64)
	for k, g := range growth {
		w := weights[k.instrument]
		if _, ok := byScenario[k.scenario]; !ok {
			byScenario[k.scenario] = 0
		}
		if w == 0 {
			continue
		}
		byScenario[k.scenario] += w * (g - 1)
	}

	ids := make([]int, 0, len(byScenario))
	for id := range byScenario {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := ScenarioResult{SetID: setID, PnL: make(map[string]float64, len(ids))}
	returns := make([]float64, 0, len(ids))
	for _, id := range ids {
		result.PnL[setID+":"+strconv.Itoa(id)] = byScenario[id]
		returns = append(returns, byScenario[id])
	}
	result.Summary = SummarizeScenarios(returns)
	return result
}

// Engine computes scenario risk from stored scenario paths
type Engine struct {
	paths contracts.ScenarioPathReader
	log   zerolog.Logger
}

// NewEngine creates a scenario risk engine
func NewEngine(paths contracts.ScenarioPathReader, log zerolog.Logger) *Engine {
	return &Engine{
		paths: paths,
		log:   log.With().Str("component", "risk.engine").Logger(),
	}
}

// PortfolioScenarioPnL evaluates weights against every path of a scenario set.
// Instruments with zero weight are not loaded.
func (e *Engine) PortfolioScenarioPnL(ctx context.Context, setID string, weights map[string]float64) (*ScenarioResult, error) {
	ids := make([]string, 0, len(weights))
	for id, w := range weights {
		if w != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return &ScenarioResult{SetID: setID, PnL: map[string]float64{}}, nil
	}
	sort.Strings(ids)

	rows, err := e.paths.ReadScenarioPaths(ctx, setID, ids)
	if err != nil {
		return nil, fmt.Errorf("read scenario paths for %s: %w", setID, err)
	}
	if len(rows) == 0 {
		e.log.Debug().Str("scenario_set_id", setID).Int("instruments", len(ids)).Msg("no scenario paths")
	}

	result := ScenarioPnL(setID, rows, weights)
	return &result, nil
}
