package s1_universe

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
)

// Exclusion reason flags, in the order the filters run
const (
	ReasonHardExcludedInstrument = "hard_excluded_instrument"
	ReasonHardExcludedIssuer     = "hard_excluded_issuer"
	ReasonInsufficientHistory    = "insufficient_history"
	ReasonIlliquid               = "illiquid"
	ReasonBelowMinPrice          = "below_min_price"
	ReasonNoStabState            = "no_stab_state"
	ReasonExcludedBreaker        = "excluded_breaker"
	ReasonHighSoftTargetScore    = "excluded_high_soft_target_score"
	ReasonWeakProfileFragile     = "excluded_weak_profile_fragile"
	ReasonSectorCap              = "excluded_sector_cap"
	ReasonMaxUniverseSize        = "excluded_max_universe_size"
)

// ExclusionReasons lists every exclusion flag in evaluation order
var ExclusionReasons = []string{
	ReasonHardExcludedInstrument,
	ReasonHardExcludedIssuer,
	ReasonInsufficientHistory,
	ReasonIlliquid,
	ReasonBelowMinPrice,
	ReasonNoStabState,
	ReasonExcludedBreaker,
	ReasonHighSoftTargetScore,
	ReasonWeakProfileFragile,
	ReasonSectorCap,
	ReasonMaxUniverseSize,
}

// ExclusionReason returns the first exclusion flag set on the member, "" if none
func ExclusionReason(m contracts.UniverseMember) string {
	for _, r := range ExclusionReasons {
		if m.ReasonBool(r) {
			return r
		}
	}
	return ""
}

// Deps are the collaborators of an Engine. Alpha, Lambda, RegimeRisk and
// StabilityRisk are optional; Recorder may be nil.
type Deps struct {
	Instruments   contracts.InstrumentLister
	Prices        contracts.PriceReader
	Calendar      contracts.TradingCalendar
	Stability     contracts.StabilityStateProvider
	Alpha         contracts.AlphaScoreProvider
	Lambda        contracts.ClusterScoreProvider
	RegimeRisk    contracts.RegimeRiskForecaster
	StabilityRisk contracts.StabilityRiskForecaster
	Recorder      *metrics.Recorder
}

// Engine builds the investable universe: hard filters, composite score,
// capacity caps and CORE/SATELLITE tiering.
type Engine struct {
	cfg           Config
	instruments   contracts.InstrumentLister
	prices        contracts.PriceReader
	calendar      contracts.TradingCalendar
	stability     contracts.StabilityStateProvider
	alpha         contracts.AlphaScoreProvider
	lambda        contracts.ClusterScoreProvider
	regimeRisk    contracts.RegimeRiskForecaster
	stabilityRisk contracts.StabilityRiskForecaster
	recorder      *metrics.Recorder
	log           zerolog.Logger

	hardExcluded   map[string]struct{}
	issuerExcluded map[string]struct{}
}

// NewEngine validates cfg and wires the collaborators
func NewEngine(cfg Config, deps Deps, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Instruments == nil || deps.Prices == nil || deps.Calendar == nil || deps.Stability == nil {
		return nil, fmt.Errorf("%w: instruments, prices, calendar and stability providers are required", ErrInvalidConfig)
	}

	return &Engine{
		cfg:            cfg,
		instruments:    deps.Instruments,
		prices:         deps.Prices,
		calendar:       deps.Calendar,
		stability:      deps.Stability,
		alpha:          deps.Alpha,
		lambda:         deps.Lambda,
		regimeRisk:     deps.RegimeRisk,
		stabilityRisk:  deps.StabilityRisk,
		recorder:       deps.Recorder,
		log:            log.With().Str("component", "s1_universe.engine").Logger(),
		hardExcluded:   toSet(cfg.HardExclusionList),
		issuerExcluded: toSet(cfg.IssuerExclusionList),
	}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// BuildUniverse returns every enumerated instrument as a member: kept members
// ordered by score, then cap-excluded members, then hard-filtered ones.
func (e *Engine) BuildUniverse(ctx context.Context, asOf time.Time, universeID string) ([]contracts.UniverseMember, error) {
	asOf = contracts.DateOnly(asOf)

	refs, err := e.instruments.ListEquities(ctx, e.cfg.Markets)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	alphaScores := e.loadAlphaScores(ctx, asOf)
	regimeMod := e.loadRegimeModifier(ctx)

	var (
		hardFail   []contracts.UniverseMember
		candidates []candidate
	)

	for _, ref := range refs {
		reasons := Reasons{"sector": ref.Sector, "market_id": ref.MarketID}

		c, reason := e.evaluate(ctx, asOf, ref, alphaScores, regimeMod, reasons)
		if reason != "" {
			reasons[reason] = true
			hardFail = append(hardFail, e.member(asOf, universeID, ref.InstrumentID, 0, contracts.TierExcluded, reasons))
			continue
		}
		candidates = append(candidates, *c)
	}

	sortCandidates(candidates)
	kept, capped := applyCaps(candidates, e.cfg.SectorMaxNames, e.cfg.MaxUniverseSize)
	cut := coreCut(len(kept), e.cfg.CoreFraction)

	members := make([]contracts.UniverseMember, 0, len(refs))
	for i, c := range kept {
		tier := contracts.TierSatellite
		if i < cut {
			tier = contracts.TierCore
		}
		members = append(members, e.member(asOf, universeID, c.id, c.score, tier, c.reasons))
	}
	for _, c := range capped {
		members = append(members, e.member(asOf, universeID, c.id, c.score, contracts.TierExcluded, c.reasons))
	}
	members = append(members, hardFail...)

	e.record(universeID, members)
	e.log.Info().
		Str("universe_id", universeID).
		Str("as_of", asOf.Format("2006-01-02")).
		Int("candidates", len(refs)).
		Int("included", len(kept)).
		Int("core", cut).
		Int("capped", len(capped)).
		Int("hard_excluded", len(hardFail)).
		Msg("universe built")

	return members, nil
}

// evaluate runs the hard filters and, for survivors, the composite score.
// A non-empty reason means the instrument is excluded.
func (e *Engine) evaluate(
	ctx context.Context,
	asOf time.Time,
	ref contracts.InstrumentRef,
	alphaScores map[string]float64,
	regimeMod *regimeModifier,
	reasons Reasons,
) (*candidate, string) {
	if _, ok := e.hardExcluded[ref.InstrumentID]; ok {
		return nil, ReasonHardExcludedInstrument
	}
	if _, ok := e.issuerExcluded[ref.IssuerID]; ok && ref.IssuerID != "" {
		return nil, ReasonHardExcludedIssuer
	}

	liq, err := e.liquidity(ctx, ref.InstrumentID, asOf)
	if err != nil {
		e.log.Warn().Err(err).Str("instrument_id", ref.InstrumentID).Msg("read prices failed")
		reasons["data_error"] = err.Error()
		return nil, ReasonInsufficientHistory
	}
	if liq == nil {
		return nil, ReasonInsufficientHistory
	}
	reasons["realised_vol"] = liq.RealisedVol
	reasons["avg_volume"] = liq.AvgVolume
	reasons["last_close"] = liq.LastClose
	reasons["liquidity_window_days"] = float64(e.cfg.WindowDays)

	if liq.AvgVolume < e.cfg.MinAvgVolume {
		return nil, ReasonIlliquid
	}
	if e.cfg.MinPrice > 0 && liq.LastClose < e.cfg.MinPrice {
		return nil, ReasonBelowMinPrice
	}

	state, err := e.stability.GetLatestState(ctx, contracts.EntityTypeInstrument, ref.InstrumentID)
	if err != nil {
		e.log.Warn().Err(err).Str("instrument_id", ref.InstrumentID).Msg("load stability state failed")
		reasons["data_error"] = err.Error()
		return nil, ReasonNoStabState
	}
	if state == nil {
		return nil, ReasonNoStabState
	}
	reasons["soft_target_score"] = state.SoftTargetScore
	reasons["soft_target_class"] = string(state.SoftTargetClass)
	reasons["weak_profile"] = state.WeakProfile
	reasons["cluster_id"] = clusterID(ref, state.SoftTargetClass)

	lambdaComponent := e.lookupLambda(ctx, asOf, ref, state.SoftTargetClass, reasons)

	alphaScore, hasAlpha := alphaScores[ref.InstrumentID]
	if hasAlpha {
		reasons["alpha_score"] = alphaScore
	}

	if e.cfg.ExcludeBreakers && state.SoftTargetClass == contracts.SoftTargetBreaker {
		return nil, ReasonExcludedBreaker
	}
	if state.SoftTargetScore > e.cfg.MaxSoftTargetScore {
		return nil, ReasonHighSoftTargetScore
	}
	if e.cfg.ExcludeWeakProfileWhenFragile && state.WeakProfile && state.SoftTargetClass.IsFragile() {
		return nil, ReasonWeakProfileFragile
	}

	base := math.Max(0, 100-state.SoftTargetScore) + math.Min(50, liq.AvgVolume/1_000_000)
	reasons["base_score"] = base

	score := base
	if hasAlpha {
		component := math.Max(0, alphaScore) * e.cfg.AlphaScoreWeight
		reasons["alpha_component"] = component
		score += component
	}
	if lambdaComponent != 0 {
		reasons["lambda_component"] = lambdaComponent
		score += lambdaComponent
	}

	score = e.applyStabilityRisk(ctx, ref.InstrumentID, score, reasons)
	score = e.applyRegimeRisk(regimeMod, score, reasons)
	reasons["final_score"] = score

	return &candidate{id: ref.InstrumentID, sector: ref.Sector, score: score, reasons: reasons}, ""
}

func (e *Engine) loadAlphaScores(ctx context.Context, asOf time.Time) map[string]float64 {
	if !e.cfg.UseAlphaScores || e.alpha == nil {
		return nil
	}

	scores, err := e.alpha.LoadScores(ctx, e.cfg.AlphaStrategyID, e.cfg.Markets, asOf, e.cfg.AlphaHorizonDays)
	if err != nil {
		e.log.Warn().Err(err).
			Str("strategy_id", e.cfg.AlphaStrategyID).
			Int("horizon_days", e.cfg.AlphaHorizonDays).
			Msg("load alpha scores failed, ranking without alpha")
		e.recorder.RecordModifierFailure(providerAlpha)
		return nil
	}
	for id, v := range scores {
		if !isFinite(v) {
			e.log.Warn().Str("instrument_id", id).Msg("non-finite alpha score, ignoring")
			e.recorder.RecordModifierFailure(providerAlpha)
			delete(scores, id)
		}
	}
	return scores
}

func (e *Engine) member(asOf time.Time, universeID, id string, score float64, tier contracts.Tier, reasons Reasons) contracts.UniverseMember {
	return contracts.UniverseMember{
		AsOfDate:   asOf,
		UniverseID: universeID,
		EntityType: contracts.EntityTypeInstrument,
		EntityID:   id,
		Included:   tier != contracts.TierExcluded,
		Score:      score,
		Tier:       tier,
		Reasons:    reasons,
	}
}

func (e *Engine) record(universeID string, members []contracts.UniverseMember) {
	if e.recorder == nil {
		return
	}
	for _, m := range members {
		e.recorder.RecordMember(universeID, string(m.Tier))
		if !m.Included {
			e.recorder.RecordExclusion(universeID, ExclusionReason(m))
		}
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
