package s0_data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// ScenarioRepository reads generated scenario paths
type ScenarioRepository struct {
	pool *pgxpool.Pool
}

// NewScenarioRepository creates a new scenario repository
func NewScenarioRepository(pool *pgxpool.Pool) *ScenarioRepository {
	return &ScenarioRepository{pool: pool}
}

// ReadScenarioPaths returns the set's path rows for the instruments
func (r *ScenarioRepository) ReadScenarioPaths(ctx context.Context, scenarioSetID string, instrumentIDs []string) ([]contracts.ScenarioPathRow, error) {
	if len(instrumentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT scenario_id, horizon_index, instrument_id, return_value
		FROM scenario_paths
		WHERE scenario_set_id = $1 AND instrument_id = ANY($2)
		ORDER BY scenario_id, horizon_index, instrument_id
	`

	rows, err := r.pool.Query(ctx, query, scenarioSetID, instrumentIDs)
	if err != nil {
		return nil, fmt.Errorf("query scenario paths %s: %w", scenarioSetID, err)
	}
	defer rows.Close()

	var out []contracts.ScenarioPathRow
	for rows.Next() {
		var p contracts.ScenarioPathRow
		if err := rows.Scan(&p.ScenarioID, &p.HorizonIndex, &p.InstrumentID, &p.ReturnValue); err != nil {
			return nil, fmt.Errorf("scan scenario path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
