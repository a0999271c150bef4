package s1_universe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// Repository persists universe members
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository instance
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveMembers upserts members keyed by (universe_id, as_of_date, entity_type, entity_id)
func (r *Repository) SaveMembers(ctx context.Context, members []contracts.UniverseMember) error {
	if len(members) == 0 {
		return nil
	}

	query := `
		INSERT INTO universe_members (
			universe_member_id, universe_id, as_of_date, entity_type, entity_id,
			tier, included, score, reasons
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (universe_id, as_of_date, entity_type, entity_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			included = EXCLUDED.included,
			score = EXCLUDED.score,
			reasons = EXCLUDED.reasons`

	batch := &pgx.Batch{}
	for _, m := range members {
		reasonsJSON, err := json.Marshal(m.Reasons)
		if err != nil {
			return fmt.Errorf("marshal reasons for %s: %w", m.EntityID, err)
		}
		batch.Queue(query,
			uuid.NewString(),
			m.UniverseID,
			m.AsOfDate,
			m.EntityType,
			m.EntityID,
			string(m.Tier),
			m.Included,
			m.Score,
			reasonsJSON,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range members {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert universe member: %w", err)
		}
	}
	return nil
}

// GetUniverse loads members ordered by score descending then entity id
func (r *Repository) GetUniverse(ctx context.Context, asOf time.Time, universeID, entityType string, includedOnly bool) ([]contracts.UniverseMember, error) {
	if entityType == "" {
		entityType = contracts.EntityTypeInstrument
	}

	query := `
		SELECT as_of_date, universe_id, entity_type, entity_id, included, score, tier, reasons
		FROM universe_members
		WHERE universe_id = $1
		  AND as_of_date = $2
		  AND entity_type = $3
		  AND ($4 = FALSE OR included)
		ORDER BY score DESC, entity_id ASC`

	rows, err := r.pool.Query(ctx, query, universeID, contracts.DateOnly(asOf), entityType, includedOnly)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var members []contracts.UniverseMember
	for rows.Next() {
		var (
			m           contracts.UniverseMember
			tier        string
			reasonsJSON []byte
		)
		if err := rows.Scan(&m.AsOfDate, &m.UniverseID, &m.EntityType, &m.EntityID, &m.Included, &m.Score, &tier, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("scan universe member: %w", err)
		}
		m.Tier = contracts.Tier(tier)
		if len(reasonsJSON) > 0 {
			if err := json.Unmarshal(reasonsJSON, &m.Reasons); err != nil {
				return nil, fmt.Errorf("unmarshal reasons: %w", err)
			}
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate universe: %w", err)
	}

	return members, nil
}

// ListUniverseDates returns the dates a universe was built on, newest first
func (r *Repository) ListUniverseDates(ctx context.Context, universeID string, limit int) ([]time.Time, error) {
	query := `
		SELECT DISTINCT as_of_date
		FROM universe_members
		WHERE universe_id = $1
		ORDER BY as_of_date DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, universeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query universe dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan universe date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
