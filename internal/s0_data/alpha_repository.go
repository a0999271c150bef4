package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AlphaRepository reads per-instrument assessment scores
type AlphaRepository struct {
	pool *pgxpool.Pool
}

// NewAlphaRepository creates a new alpha repository
func NewAlphaRepository(pool *pgxpool.Pool) *AlphaRepository {
	return &AlphaRepository{pool: pool}
}

// LoadScores returns instrument_id → score for the strategy, markets, date and horizon
func (r *AlphaRepository) LoadScores(ctx context.Context, strategyID string, marketIDs []string, asOf time.Time, horizonDays int) (map[string]float64, error) {
	query := `
		SELECT instrument_id, score
		FROM instrument_scores
		WHERE strategy_id = $1
		  AND market_id = ANY($2)
		  AND as_of_date = $3
		  AND horizon_days = $4
	`

	rows, err := r.pool.Query(ctx, query, strategyID, marketIDs, asOf, horizonDays)
	if err != nil {
		return nil, fmt.Errorf("query instrument scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var (
			id    string
			score float64
		)
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan instrument score: %w", err)
		}
		scores[id] = score
	}
	return scores, rows.Err()
}
