package s1_universe

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s0_data"
)

var asOf = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

type fakeInstruments struct {
	refs []contracts.InstrumentRef
	err  error
}

func (f *fakeInstruments) ListEquities(context.Context, []string) ([]contracts.InstrumentRef, error) {
	return f.refs, f.err
}

type fakePrices struct {
	bars map[string][]contracts.PriceBar
	errs map[string]error
}

func (f *fakePrices) ReadPrices(_ context.Context, id string, from, to time.Time) ([]contracts.PriceBar, error) {
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	var out []contracts.PriceBar
	for _, b := range f.bars[id] {
		if !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeStability map[string]*contracts.SoftTargetState

func (f fakeStability) GetLatestState(_ context.Context, _, id string) (*contracts.SoftTargetState, error) {
	if id == "ERR" {
		return nil, errors.New("stability store down")
	}
	return f[id], nil
}

type fakeRegimeRisk struct {
	risk  *contracts.RegimeChangeRisk
	err   error
	calls int
}

func (f *fakeRegimeRisk) Forecast(context.Context, string, int) (*contracts.RegimeChangeRisk, error) {
	f.calls++
	return f.risk, f.err
}

type fakeStabilityRisk struct {
	risks map[string]float64
	fail  map[string]bool
}

func (f *fakeStabilityRisk) Forecast(_ context.Context, id string, _ int) (*contracts.StabilityChangeRisk, error) {
	if f.fail[id] {
		return nil, errors.New("forecast failed")
	}
	r, ok := f.risks[id]
	if !ok {
		return nil, nil
	}
	return &contracts.StabilityChangeRisk{EntityID: id, RiskScore: r, PWorsenAny: r, PToTargetableOrBreaker: r}, nil
}

type fakeLambda struct {
	scores map[string]float64
	err    error
}

func (f *fakeLambda) GetClusterScore(_ context.Context, _ time.Time, market, sector string, class contracts.SoftTargetClass) (*float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.scores[market+"|"+sector+"|"+string(class)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeLambda) ExperimentInfo() (string, string) {
	return "exp-1", "lambda_hat"
}

type fakeAlpha map[string]float64

func (f fakeAlpha) LoadScores(context.Context, string, []string, time.Time, int) (map[string]float64, error) {
	return f, nil
}

// history returns one bar per trading day in the 30 days before asOf
func history(close, volume float64) []contracts.PriceBar {
	cal := s0_data.NewCalendar(s0_data.MarketUSEquity, nil)
	var bars []contracts.PriceBar
	for _, d := range cal.TradingDaysBetween(asOf.AddDate(0, 0, -30), asOf) {
		bars = append(bars, contracts.PriceBar{TradeDate: d, Close: close, Volume: volume})
	}
	return bars
}

func stable(score float64) *contracts.SoftTargetState {
	return &contracts.SoftTargetState{SoftTargetScore: score, SoftTargetClass: contracts.SoftTargetStable}
}

func ref(id, sector string) contracts.InstrumentRef {
	return contracts.InstrumentRef{InstrumentID: id, IssuerID: "ISS_" + id, MarketID: "US_EQ", Sector: sector}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WindowDays = 5
	cfg.MinAvgVolume = 1_000
	return cfg
}

func newTestEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Calendar == nil {
		deps.Calendar = s0_data.NewCalendar(s0_data.MarketUSEquity, nil)
	}
	return NewEngine(cfg, deps, zerolog.Nop())
}

func byID(members []contracts.UniverseMember) map[string]contracts.UniverseMember {
	out := make(map[string]contracts.UniverseMember, len(members))
	for _, m := range members {
		out[m.EntityID] = m
	}
	return out
}
