package brain

import (
	"context"
	"fmt"
	"time"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
)

// Stage names recorded in metrics and RunResult.CompletedStages
const (
	StageRegime    = "regime"
	StageUniverse  = "universe"
	StagePortfolio = "portfolio"
	StageRisk      = "risk"
)

// RegimeStage classifies and records a region's regime
type RegimeStage interface {
	GetRegime(ctx context.Context, asOf time.Time, region string) (*contracts.RegimeState, error)
}

// UniverseStore persists universe members
type UniverseStore interface {
	SaveMembers(ctx context.Context, members []contracts.UniverseMember) error
}

// PortfolioStore persists targets and risk reports
type PortfolioStore interface {
	SaveTargetPortfolio(ctx context.Context, target *contracts.TargetPortfolio) error
	SaveRiskReport(ctx context.Context, report *contracts.RiskReport) error
}

// RegionPipeline holds the per-region models
type RegionPipeline struct {
	Region      string
	UniverseID  string
	PortfolioID string
	Universe    contracts.UniverseModel
	Portfolio   contracts.PortfolioModel
}

// Orchestrator coordinates the daily decision pipeline
// regime → universe → portfolio → risk, region by region
type Orchestrator struct {
	regime        RegimeStage
	universeRepo  UniverseStore
	portfolioRepo PortfolioStore
	regions       []RegionPipeline

	recorder   *metrics.Recorder
	configHash string
	logger     *logger.Logger
}

// RunConfig holds configuration for a pipeline run
type RunConfig struct {
	Date  time.Time
	RunID string
	// Regions restricts the run; empty runs every configured region
	Regions []string
}

// UniverseSummary counts one built universe
type UniverseSummary struct {
	UniverseID string
	Total      int
	Included   int
	Core       int
}

// RunResult holds the results of a complete pipeline run
type RunResult struct {
	RunID           string
	Date            time.Time
	ConfigHash      string
	Success         bool
	Error           error
	CompletedStages []string
	Regimes         map[string]*contracts.RegimeState
	Universes       map[string]UniverseSummary
	Portfolios      map[string]*contracts.TargetPortfolio
	RiskReports     map[string]*contracts.RiskReport
	Duration        time.Duration
}

// NewOrchestrator creates a new orchestrator. recorder may be nil.
func NewOrchestrator(
	regime RegimeStage,
	universeRepo UniverseStore,
	portfolioRepo PortfolioStore,
	regions []RegionPipeline,
	recorder *metrics.Recorder,
	configHash string,
	logger *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		regime:        regime,
		universeRepo:  universeRepo,
		portfolioRepo: portfolioRepo,
		regions:       regions,
		recorder:      recorder,
		configHash:    configHash,
		logger:        logger,
	}
}

// Regions returns the configured region codes
func (o *Orchestrator) Regions() []string {
	out := make([]string, 0, len(o.regions))
	for _, r := range o.regions {
		out = append(out, r.Region)
	}
	return out
}

// Run executes every stage for each selected region.
// The first failing stage aborts the run.
func (o *Orchestrator) Run(ctx context.Context, config RunConfig) (*RunResult, error) {
	startTime := time.Now()
	asOf := contracts.DateOnly(config.Date)

	result := &RunResult{
		RunID:           config.RunID,
		Date:            asOf,
		ConfigHash:      o.configHash,
		CompletedStages: make([]string, 0),
		Regimes:         map[string]*contracts.RegimeState{},
		Universes:       map[string]UniverseSummary{},
		Portfolios:      map[string]*contracts.TargetPortfolio{},
		RiskReports:     map[string]*contracts.RiskReport{},
	}

	regions, err := o.selectRegions(config.Regions)
	if err != nil {
		result.Error = err
		return result, err
	}

	o.logger.WithFields(map[string]interface{}{
		"run_id":      config.RunID,
		"date":        asOf.Format("2006-01-02"),
		"regions":     len(regions),
		"config_hash": o.configHash,
	}).Info("Starting pipeline run")

	for _, rp := range regions {
		if err := o.runRegion(ctx, config, asOf, rp, result); err != nil {
			result.Error = fmt.Errorf("region %s: %w", rp.Region, err)
			result.Duration = time.Since(startTime)
			o.logger.WithError(result.Error).WithField("run_id", config.RunID).Error("Pipeline run failed")
			return result, result.Error
		}
	}

	result.Success = true
	result.Duration = time.Since(startTime)

	o.logger.WithFields(map[string]interface{}{
		"run_id":   config.RunID,
		"duration": result.Duration.Seconds(),
		"stages":   len(result.CompletedStages),
	}).Info("Pipeline run completed successfully")

	return result, nil
}

func (o *Orchestrator) selectRegions(filter []string) ([]RegionPipeline, error) {
	if len(filter) == 0 {
		return o.regions, nil
	}
	out := make([]RegionPipeline, 0, len(filter))
	for _, code := range filter {
		found := false
		for _, rp := range o.regions {
			if rp.Region == code {
				out = append(out, rp)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("region %s is not configured", code)
		}
	}
	return out, nil
}

func (o *Orchestrator) runRegion(ctx context.Context, config RunConfig, asOf time.Time, rp RegionPipeline, result *RunResult) error {
	state, err := timed(o.recorder, StageRegime, func() (*contracts.RegimeState, error) {
		return o.runRegime(ctx, asOf, rp)
	})
	if err != nil {
		return err
	}
	result.Regimes[rp.Region] = state
	result.CompletedStages = append(result.CompletedStages, rp.Region+":"+StageRegime)

	summary, err := timed(o.recorder, StageUniverse, func() (UniverseSummary, error) {
		return o.runUniverse(ctx, asOf, rp)
	})
	if err != nil {
		return err
	}
	result.Universes[rp.Region] = summary
	result.CompletedStages = append(result.CompletedStages, rp.Region+":"+StageUniverse)

	target, err := timed(o.recorder, StagePortfolio, func() (*contracts.TargetPortfolio, error) {
		return o.runPortfolio(ctx, config, asOf, rp)
	})
	if err != nil {
		return err
	}
	result.Portfolios[rp.Region] = target
	result.CompletedStages = append(result.CompletedStages, rp.Region+":"+StagePortfolio)

	report, err := timed(o.recorder, StageRisk, func() (*contracts.RiskReport, error) {
		return o.runRisk(ctx, asOf, rp, target)
	})
	if err != nil {
		return err
	}
	result.RiskReports[rp.Region] = report
	result.CompletedStages = append(result.CompletedStages, rp.Region+":"+StageRisk)

	return nil
}

// timed runs fn and records its duration under stage
func timed[T any](recorder *metrics.Recorder, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	recorder.ObserveStage(stage, time.Since(start))
	return out, err
}

// runRegime classifies the region's regime
func (o *Orchestrator) runRegime(ctx context.Context, asOf time.Time, rp RegionPipeline) (*contracts.RegimeState, error) {
	state, err := o.regime.GetRegime(ctx, asOf, rp.Region)
	if err != nil {
		return nil, fmt.Errorf("regime classification: %w", err)
	}

	o.logger.WithFields(map[string]interface{}{
		"region":     rp.Region,
		"label":      string(state.RegimeLabel),
		"confidence": state.Confidence,
	}).Info("Regime stage completed")

	return state, nil
}

// runUniverse builds and saves the region's universe
func (o *Orchestrator) runUniverse(ctx context.Context, asOf time.Time, rp RegionPipeline) (UniverseSummary, error) {
	members, err := rp.Universe.BuildUniverse(ctx, asOf, rp.UniverseID)
	if err != nil {
		return UniverseSummary{}, fmt.Errorf("universe build: %w", err)
	}

	if err := o.universeRepo.SaveMembers(ctx, members); err != nil {
		return UniverseSummary{}, fmt.Errorf("save universe: %w", err)
	}

	summary := UniverseSummary{UniverseID: rp.UniverseID, Total: len(members)}
	for _, m := range members {
		if m.Included {
			summary.Included++
		}
		if m.Tier == contracts.TierCore {
			summary.Core++
		}
	}

	o.logger.WithFields(map[string]interface{}{
		"universe_id": rp.UniverseID,
		"total":       summary.Total,
		"included":    summary.Included,
		"core":        summary.Core,
	}).Info("Universe stage completed")

	return summary, nil
}

// runPortfolio builds and saves the region's target portfolio
func (o *Orchestrator) runPortfolio(ctx context.Context, config RunConfig, asOf time.Time, rp RegionPipeline) (*contracts.TargetPortfolio, error) {
	target, err := rp.Portfolio.BuildTargetPortfolio(ctx, rp.PortfolioID, asOf)
	if err != nil {
		return nil, fmt.Errorf("portfolio build: %w", err)
	}

	if target.Metadata == nil {
		target.Metadata = map[string]interface{}{}
	}
	if o.configHash != "" {
		target.Metadata["config_hash"] = o.configHash
	}
	if config.RunID != "" {
		target.Metadata["run_id"] = config.RunID
	}

	if err := o.portfolioRepo.SaveTargetPortfolio(ctx, target); err != nil {
		return nil, fmt.Errorf("save target portfolio: %w", err)
	}

	o.logger.WithFields(map[string]interface{}{
		"portfolio_id":        rp.PortfolioID,
		"names":               len(target.Weights),
		"expected_volatility": target.ExpectedVolatility,
	}).Info("Portfolio stage completed")

	return target, nil
}

// runRisk builds and saves the risk report of target
func (o *Orchestrator) runRisk(ctx context.Context, asOf time.Time, rp RegionPipeline, target *contracts.TargetPortfolio) (*contracts.RiskReport, error) {
	report, err := rp.Portfolio.BuildRiskReport(ctx, rp.PortfolioID, asOf, target)
	if err != nil {
		return nil, fmt.Errorf("risk report: %w", err)
	}

	if err := o.portfolioRepo.SaveRiskReport(ctx, report); err != nil {
		return nil, fmt.Errorf("save risk report: %w", err)
	}

	o.logger.WithFields(map[string]interface{}{
		"portfolio_id":   rp.PortfolioID,
		"risk_metrics":   len(report.RiskMetrics),
		"scenario_paths": len(report.ScenarioPnL),
	}).Info("Risk stage completed")

	return report, nil
}
