package s0_data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// FactorRepository serves instrument factor exposures and factor returns
type FactorRepository struct {
	pool *pgxpool.Pool
}

// NewFactorRepository creates a new factor repository
func NewFactorRepository(pool *pgxpool.Pool) *FactorRepository {
	return &FactorRepository{pool: pool}
}

// InstrumentFactorExposures returns exposures for the instruments at asOf
func (r *FactorRepository) InstrumentFactorExposures(ctx context.Context, instrumentIDs []string, asOf time.Time) ([]contracts.FactorExposure, error) {
	if len(instrumentIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT instrument_id, factor_id, exposure
		FROM instrument_factors_daily
		WHERE trade_date = $1 AND instrument_id = ANY($2)
		ORDER BY instrument_id, factor_id
	`

	rows, err := r.pool.Query(ctx, query, asOf, instrumentIDs)
	if err != nil {
		return nil, fmt.Errorf("query factor exposures: %w", err)
	}
	defer rows.Close()

	var out []contracts.FactorExposure
	for rows.Next() {
		var e contracts.FactorExposure
		if err := rows.Scan(&e.InstrumentID, &e.FactorID, &e.Exposure); err != nil {
			return nil, fmt.Errorf("scan factor exposure: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CoveringPanel returns the shortest correlation panel containing asOf, nil if none
func (r *FactorRepository) CoveringPanel(ctx context.Context, asOf time.Time) (*contracts.CorrelationPanel, error) {
	query := `
		SELECT panel_id, start_date, end_date
		FROM correlation_panels
		WHERE start_date <= $1 AND end_date >= $1
		ORDER BY (end_date - start_date) ASC, panel_id
		LIMIT 1
	`

	var p contracts.CorrelationPanel
	err := r.pool.QueryRow(ctx, query, asOf).Scan(&p.PanelID, &p.StartDate, &p.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query correlation panel: %w", err)
	}
	return &p, nil
}

// FactorReturns returns each factor's daily values in [from, to] by date
func (r *FactorRepository) FactorReturns(ctx context.Context, factorIDs []string, from, to time.Time) (map[string][]float64, error) {
	out := make(map[string][]float64, len(factorIDs))
	if len(factorIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT factor_id, value
		FROM factors_daily
		WHERE factor_id = ANY($1) AND trade_date BETWEEN $2 AND $3
		ORDER BY factor_id, trade_date
	`

	rows, err := r.pool.Query(ctx, query, factorIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("query factor returns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			v  float64
		)
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("scan factor return: %w", err)
		}
		out[id] = append(out[id], v)
	}
	return out, rows.Err()
}
