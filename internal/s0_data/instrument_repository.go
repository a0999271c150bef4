package s0_data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// InstrumentRepository enumerates instruments joined with issuer sectors
type InstrumentRepository struct {
	pool *pgxpool.Pool
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(pool *pgxpool.Pool) *InstrumentRepository {
	return &InstrumentRepository{pool: pool}
}

// ListEquities returns active equities in the given markets ordered by id.
// Instruments without an issuer sector report UNKNOWN.
func (r *InstrumentRepository) ListEquities(ctx context.Context, marketIDs []string) ([]contracts.InstrumentRef, error) {
	query := `
		SELECT
			i.instrument_id,
			COALESCE(i.issuer_id, ''),
			i.market_id,
			COALESCE(iss.sector, 'UNKNOWN')
		FROM instruments i
		LEFT JOIN issuers iss ON iss.issuer_id = i.issuer_id
		WHERE i.market_id = ANY($1)
		  AND i.asset_class = 'EQUITY'
		  AND i.status = 'ACTIVE'
		ORDER BY i.instrument_id
	`

	rows, err := r.pool.Query(ctx, query, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []contracts.InstrumentRef
	for rows.Next() {
		var ref contracts.InstrumentRef
		if err := rows.Scan(&ref.InstrumentID, &ref.IssuerID, &ref.MarketID, &ref.Sector); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
