package stability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/markov"
)

// Repository reads soft_target_classes and fragility_measures
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a stability repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetLatestState returns the most recent soft-target state, nil if none
func (r *Repository) GetLatestState(ctx context.Context, entityType, entityID string) (*contracts.SoftTargetState, error) {
	query := `
		SELECT entity_type, entity_id, as_of_date, soft_target_class, soft_target_score, weak_profile
		FROM soft_target_classes
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY as_of_date DESC
		LIMIT 1`

	var (
		s   contracts.SoftTargetState
		cls string
	)
	err := r.pool.QueryRow(ctx, query, entityType, entityID).Scan(
		&s.EntityType, &s.EntityID, &s.AsOfDate, &cls, &s.SoftTargetScore, &s.WeakProfile,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query soft-target state %s: %w", entityID, err)
	}
	s.SoftTargetClass = contracts.SoftTargetClass(cls)
	return &s, nil
}

// SaveState inserts a soft-target state row
func (r *Repository) SaveState(ctx context.Context, s contracts.SoftTargetState) error {
	query := `
		INSERT INTO soft_target_classes
			(soft_target_id, entity_type, entity_id, as_of_date, soft_target_class, soft_target_score, weak_profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		uuid.NewString(), s.EntityType, s.EntityID, s.AsOfDate,
		string(s.SoftTargetClass), s.SoftTargetScore, s.WeakProfile,
	)
	if err != nil {
		return fmt.Errorf("insert soft-target state %s: %w", s.EntityID, err)
	}
	return nil
}

// GetTransitionMatrix counts consecutive class pairs per entity and
// normalizes per from-class. Empty when no entity has two states.
func (r *Repository) GetTransitionMatrix(ctx context.Context, entityType string) (map[string]map[string]float64, error) {
	query := `
		SELECT from_class, to_class, COUNT(*)
		FROM (
			SELECT
				LAG(soft_target_class) OVER (PARTITION BY entity_id ORDER BY as_of_date) AS from_class,
				soft_target_class AS to_class
			FROM soft_target_classes
			WHERE entity_type = $1
		) t
		WHERE from_class IS NOT NULL
		GROUP BY from_class, to_class`

	rows, err := r.pool.Query(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("query soft-target transitions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			from, to string
			cnt      int64
		)
		if err := rows.Scan(&from, &to, &cnt); err != nil {
			return nil, fmt.Errorf("scan soft-target transition: %w", err)
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

// LatestMeasures returns the latest fragility measure per entity
func (r *Repository) LatestMeasures(ctx context.Context, entityType string, entityIDs []string) (map[string]contracts.FragilityMeasure, error) {
	out := make(map[string]contracts.FragilityMeasure)
	if len(entityIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT DISTINCT ON (entity_id)
			entity_type, entity_id, as_of_date, fragility_score,
			COALESCE(metadata->>'class_label', 'NONE')
		FROM fragility_measures
		WHERE entity_type = $1 AND entity_id = ANY($2)
		ORDER BY entity_id, as_of_date DESC`

	rows, err := r.pool.Query(ctx, query, entityType, entityIDs)
	if err != nil {
		return nil, fmt.Errorf("query fragility measures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m contracts.FragilityMeasure
		if err := rows.Scan(&m.EntityType, &m.EntityID, &m.AsOfDate, &m.FragilityScore, &m.ClassLabel); err != nil {
			return nil, fmt.Errorf("scan fragility measure: %w", err)
		}
		out[m.EntityID] = m
	}
	return out, rows.Err()
}

// SaveMeasure inserts a fragility measure; ClassLabel goes into metadata
func (r *Repository) SaveMeasure(ctx context.Context, m contracts.FragilityMeasure) error {
	query := `
		INSERT INTO fragility_measures
			(fragility_id, entity_type, entity_id, as_of_date, fragility_score, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`

	meta := map[string]interface{}{"class_label": m.ClassLabel}
	_, err := r.pool.Exec(ctx, query, uuid.NewString(), m.EntityType, m.EntityID, m.AsOfDate, m.FragilityScore, meta)
	if err != nil {
		return fmt.Errorf("insert fragility measure %s: %w", m.EntityID, err)
	}
	return nil
}
