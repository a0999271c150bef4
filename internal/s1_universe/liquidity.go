package s1_universe

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// liquidityFeatures summarizes the trailing window of one instrument
type liquidityFeatures struct {
	RealisedVol float64
	AvgVolume   float64
	LastClose   float64
}

// liquidity computes trailing liquidity over exactly WindowDays trading days.
// A nil result means the history is too short.
func (e *Engine) liquidity(ctx context.Context, instrumentID string, asOf time.Time) (*liquidityFeatures, error) {
	window := e.cfg.WindowDays

	searchStart := asOf.AddDate(0, 0, -3*window)
	days := e.calendar.TradingDaysBetween(searchStart, asOf)
	if len(days) < window {
		return nil, nil
	}
	start := days[len(days)-window]

	bars, err := e.prices.ReadPrices(ctx, instrumentID, start, asOf)
	if err != nil {
		return nil, err
	}
	if len(bars) < window {
		return nil, nil
	}
	bars = bars[len(bars)-window:]

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			rets = append(rets, 0)
			continue
		}
		rets = append(rets, math.Log(closes[i]/closes[i-1]))
	}

	var sigma float64
	if len(rets) > 1 {
		sigma = stat.StdDev(rets, nil)
	}

	return &liquidityFeatures{
		RealisedVol: sigma,
		AvgVolume:   stat.Mean(volumes, nil),
		LastClose:   closes[len(closes)-1],
	}, nil
}
