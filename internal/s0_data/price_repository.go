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

// PriceRepository reads and writes prices_daily
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// ReadPrices returns bars for instrumentID in [from, to] ordered by trade date
func (r *PriceRepository) ReadPrices(ctx context.Context, instrumentID string, from, to time.Time) ([]contracts.PriceBar, error) {
	query := `
		SELECT instrument_id, trade_date, open, high, low, close, adjusted_close, volume
		FROM prices_daily
		WHERE instrument_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, instrumentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query prices %s: %w", instrumentID, err)
	}
	defer rows.Close()

	var bars []contracts.PriceBar
	for rows.Next() {
		var b contracts.PriceBar
		if err := rows.Scan(&b.InstrumentID, &b.TradeDate, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SavePrices upserts bars in one batch
func (r *PriceRepository) SavePrices(ctx context.Context, bars []contracts.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO prices_daily
			(instrument_id, trade_date, open, high, low, close, adjusted_close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument_id, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			adjusted_close = EXCLUDED.adjusted_close,
			volume = EXCLUDED.volume`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.InstrumentID, b.TradeDate, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert price: %w", err)
		}
	}
	return nil
}

// LatestTradeDate returns the most recent date with any price, zero if none
func (r *PriceRepository) LatestTradeDate(ctx context.Context) (time.Time, error) {
	var d *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(trade_date) FROM prices_daily`).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && d == nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest trade date: %w", err)
	}
	return *d, nil
}
