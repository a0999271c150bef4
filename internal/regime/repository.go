package regime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
)

// Repository stores regimes and regime_transitions
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a regime repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRegime upserts the state on (region, as_of_date)
func (r *Repository) SaveRegime(ctx context.Context, state *contracts.RegimeState) error {
	if state.RegimeID == "" {
		state.RegimeID = uuid.NewString()
	}

	query := `
		INSERT INTO regimes
			(regime_record_id, as_of_date, region, regime_label, regime_embedding, confidence, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (region, as_of_date) DO UPDATE SET
			regime_label = EXCLUDED.regime_label,
			regime_embedding = EXCLUDED.regime_embedding,
			confidence = EXCLUDED.confidence,
			metadata = EXCLUDED.metadata
		RETURNING regime_record_id`

	err := r.pool.QueryRow(ctx, query,
		state.RegimeID, state.AsOfDate, state.Region, string(state.RegimeLabel),
		state.Embedding, state.Confidence, state.Metadata,
	).Scan(&state.RegimeID)
	if err != nil {
		return fmt.Errorf("upsert regime %s/%s: %w", state.Region, state.AsOfDate.Format("2006-01-02"), err)
	}
	return nil
}

const regimeColumns = `regime_record_id, as_of_date, region, regime_label, regime_embedding, confidence, metadata`

// GetLatestRegime returns the most recent state for region, nil if none
func (r *Repository) GetLatestRegime(ctx context.Context, region string) (*contracts.RegimeState, error) {
	query := `SELECT ` + regimeColumns + `
		FROM regimes
		WHERE region = $1
		ORDER BY as_of_date DESC
		LIMIT 1`

	return r.queryOne(ctx, query, region)
}

// GetLatestRegimeBefore returns the most recent state strictly before asOf
func (r *Repository) GetLatestRegimeBefore(ctx context.Context, region string, asOf time.Time) (*contracts.RegimeState, error) {
	query := `SELECT ` + regimeColumns + `
		FROM regimes
		WHERE region = $1 AND as_of_date < $2
		ORDER BY as_of_date DESC
		LIMIT 1`

	return r.queryOne(ctx, query, region, asOf)
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...interface{}) (*contracts.RegimeState, error) {
	state, err := scanRegime(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query regime: %w", err)
	}
	return state, nil
}

// GetHistory returns states in [from, to] ordered by date ascending
func (r *Repository) GetHistory(ctx context.Context, region string, from, to time.Time) ([]contracts.RegimeState, error) {
	query := `SELECT ` + regimeColumns + `
		FROM regimes
		WHERE region = $1 AND as_of_date BETWEEN $2 AND $3
		ORDER BY as_of_date ASC`

	rows, err := r.pool.Query(ctx, query, region, from, to)
	if err != nil {
		return nil, fmt.Errorf("query regime history: %w", err)
	}
	defer rows.Close()

	var states []contracts.RegimeState
	for rows.Next() {
		s, err := scanRegime(rows)
		if err != nil {
			return nil, fmt.Errorf("scan regime: %w", err)
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

func scanRegime(row pgx.Row) (*contracts.RegimeState, error) {
	var (
		s     contracts.RegimeState
		label string
	)
	if err := row.Scan(&s.RegimeID, &s.AsOfDate, &s.Region, &label, &s.Embedding, &s.Confidence, &s.Metadata); err != nil {
		return nil, err
	}
	s.RegimeLabel = contracts.RegimeLabel(label)
	return &s, nil
}

// RecordTransition stores a label change, keyed by (region, as_of_date)
func (r *Repository) RecordTransition(ctx context.Context, prev, cur *contracts.RegimeState) error {
	query := `
		INSERT INTO regime_transitions
			(transition_id, region, from_regime_label, to_regime_label, as_of_date, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (region, as_of_date) DO UPDATE SET
			from_regime_label = EXCLUDED.from_regime_label,
			to_regime_label = EXCLUDED.to_regime_label,
			metadata = EXCLUDED.metadata`

	meta := map[string]interface{}{
		"from_as_of_date": prev.AsOfDate.Format("2006-01-02"),
		"from_confidence": prev.Confidence,
		"to_confidence":   cur.Confidence,
	}

	_, err := r.pool.Exec(ctx, query,
		uuid.NewString(), cur.Region, string(prev.RegimeLabel), string(cur.RegimeLabel), cur.AsOfDate, meta,
	)
	if err != nil {
		return fmt.Errorf("insert regime transition: %w", err)
	}
	return nil
}

// GetTransitions lists recorded transitions for region ordered by date
func (r *Repository) GetTransitions(ctx context.Context, region string) ([]contracts.RegimeTransition, error) {
	query := `
		SELECT transition_id, region, as_of_date, from_regime_label, to_regime_label
		FROM regime_transitions
		WHERE region = $1
		ORDER BY as_of_date ASC`

	rows, err := r.pool.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("query regime transitions: %w", err)
	}
	defer rows.Close()

	var out []contracts.RegimeTransition
	for rows.Next() {
		var (
			t        contracts.RegimeTransition
			from, to string
		)
		if err := rows.Scan(&t.TransitionID, &t.Region, &t.AsOfDate, &from, &to); err != nil {
			return nil, fmt.Errorf("scan regime transition: %w", err)
		}
		t.FromLabel = contracts.RegimeLabel(from)
		t.ToLabel = contracts.RegimeLabel(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTransitionMatrix returns transition counts normalized per from-label.
// Labels never left have no row.
func (r *Repository) GetTransitionMatrix(ctx context.Context, region string) (map[string]map[string]float64, error) {
	query := `
		SELECT from_regime_label, to_regime_label, COUNT(*) AS cnt
		FROM regime_transitions
		WHERE region = $1
		GROUP BY from_regime_label, to_regime_label`

	rows, err := r.pool.Query(ctx, query, region)
	if err != nil {
		return nil, fmt.Errorf("query transition counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			from, to string
			cnt      int64
		)
		if err := rows.Scan(&from, &to, &cnt); err != nil {
			return nil, fmt.Errorf("scan transition count: %w", err)
		}
		if counts[from] == nil {
			counts[from] = make(map[string]float64)
		}
		counts[from][to] = float64(cnt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return markov.NormalizeCounts(counts), nil
}
