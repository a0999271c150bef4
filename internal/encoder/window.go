// Package encoder builds numeric price windows and turns them into
// fixed-size embeddings.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// NumFeatures is the column count of a window: close, volume, log return
const NumFeatures = 3

var ErrInsufficientData = errors.New("insufficient price rows for window")

// WindowBuilder builds (window_days x 3) feature windows from daily prices
type WindowBuilder struct {
	prices contracts.PriceReader
	log    zerolog.Logger
}

// NewWindowBuilder creates a window builder
func NewWindowBuilder(prices contracts.PriceReader, log zerolog.Logger) *WindowBuilder {
	return &WindowBuilder{
		prices: prices,
		log:    log.With().Str("component", "encoder.window").Logger(),
	}
}

// MinRequired returns the minimum number of observed rows for spec
func MinRequired(spec contracts.WindowSpec) int {
	if spec.MinRequiredDays > 0 {
		return spec.MinRequiredDays
	}
	n := int(float64(spec.WindowDays) * 0.87)
	if n < 1 {
		n = 1
	}
	return n
}

// Build reads prices over [asOf - 3*window days, asOf], keeps the latest
// window_days rows and pads a short tail by repeating the last row.
func (b *WindowBuilder) Build(ctx context.Context, spec contracts.WindowSpec, asOf time.Time) (*mat.Dense, error) {
	if spec.WindowDays <= 0 {
		return nil, fmt.Errorf("window_days must be positive, got %d", spec.WindowDays)
	}

	minReq := MinRequired(spec)
	from := asOf.AddDate(0, 0, -3*spec.WindowDays)

	bars, err := b.prices.ReadPrices(ctx, spec.EntityID, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("read prices %s: %w", spec.EntityID, err)
	}
	if len(bars) < minReq {
		return nil, fmt.Errorf("%w: %s has %d rows between %s and %s, need %d",
			ErrInsufficientData, spec.EntityID, len(bars),
			from.Format("2006-01-02"), asOf.Format("2006-01-02"), minReq)
	}

	if len(bars) > spec.WindowDays {
		bars = bars[len(bars)-spec.WindowDays:]
	}

	closes := make([]float64, spec.WindowDays)
	volumes := make([]float64, spec.WindowDays)
	for i := range closes {
		src := bars[len(bars)-1]
		if i < len(bars) {
			src = bars[i]
		}
		closes[i] = src.Close
		volumes[i] = src.Volume
	}
	if len(bars) < spec.WindowDays {
		b.log.Warn().
			Str("entity_id", spec.EntityID).
			Int("rows", len(bars)).
			Int("target", spec.WindowDays).
			Msg("short window, padding with last row")
	}

	window := mat.NewDense(spec.WindowDays, NumFeatures, nil)
	for i := range closes {
		logRet := 0.0
		if i > 0 && closes[i-1] > 0 && closes[i] > 0 {
			logRet = math.Log(closes[i] / closes[i-1])
		}
		window.Set(i, 0, closes[i])
		window.Set(i, 1, volumes[i])
		window.Set(i, 2, logRet)
	}
	return window, nil
}
