package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/brain"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/encoder"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/guard"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/opportunity"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/portfolio"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/regime"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/risk"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s0_data"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s1_universe"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/stability"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/strategyconfig"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/config"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/database"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/metrics"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/redis"
)

const dateLayout = "2006-01-02"

// app holds the process-wide dependencies shared by every command
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	zl         zerolog.Logger
	db         *database.DB
	redis      *redis.Client
	recorder   *metrics.Recorder
	pipeline   *strategyconfig.Config
	configHash string

	regimeRepo    *regime.Repository
	universeRepo  *s1_universe.Repository
	portfolioRepo *portfolio.Repository
	stabilityRepo *stability.Repository

	prices    *s0_data.PriceCache
	calendars map[string]*s0_data.Calendar
	lambda    contracts.ClusterScoreProvider
}

// newApp loads configuration and opens the database and Redis
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if pipelinePath != "" {
		cfg.PipelineConfigPath = pipelinePath
	}

	log := logger.New(cfg)

	pipeline, _, err := strategyconfig.Load(cfg.PipelineConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline config: %w", err)
	}
	hash, err := strategyconfig.Hash(pipeline)
	if err != nil {
		return nil, fmt.Errorf("hash pipeline config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, forecast caching disabled")
		rc = redis.Disabled()
	}

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.New()
	}

	log.WithFields(map[string]interface{}{
		"env":         cfg.Env,
		"pipeline_id": pipeline.Meta.PipelineID,
		"config_hash": hash,
		"regions":     pipeline.RegionCodes(),
	}).Info("Pipeline configuration loaded")

	return &app{
		cfg:           cfg,
		log:           log,
		zl:            log.Zerolog(),
		db:            db,
		redis:         rc,
		recorder:      recorder,
		pipeline:      pipeline,
		configHash:    hash,
		regimeRepo:    regime.NewRepository(db.Pool),
		universeRepo:  s1_universe.NewRepository(db.Pool),
		portfolioRepo: portfolio.NewRepository(db.Pool),
		stabilityRepo: stability.NewRepository(db.Pool),
		prices:        s0_data.NewPriceCache(s0_data.NewPriceRepository(db.Pool), 0, log.Zerolog()),
		calendars:     make(map[string]*s0_data.Calendar),
	}, nil
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}

// region resolves a --region flag against the pipeline config
func (a *app) region(code string) (strategyconfig.Region, error) {
	r, ok := a.pipeline.FindRegion(strings.ToUpper(code))
	if !ok {
		return strategyconfig.Region{}, fmt.Errorf("region %q is not configured (have %v)", code, a.pipeline.RegionCodes())
	}
	return r, nil
}

// calendar loads (once) the trading calendar of a region's primary market
func (a *app) calendar(ctx context.Context, r strategyconfig.Region) *s0_data.Calendar {
	market := r.Markets[0]
	if cal, ok := a.calendars[market]; ok {
		return cal
	}
	cal := s0_data.LoadCalendar(ctx, a.db.Pool, market, a.zl)
	a.calendars[market] = cal
	return cal
}

// asOfDate parses --date, defaulting to the latest trading day of the region
func (a *app) asOfDate(ctx context.Context, r strategyconfig.Region, raw string) (time.Time, error) {
	if raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date %q (expected YYYY-MM-DD): %w", raw, err)
		}
		return d, nil
	}
	return a.calendar(ctx, r).LatestTradingDayOnOrBefore(time.Now().UTC()), nil
}

func (a *app) regimeEngine() (*regime.Engine, error) {
	enc := encoder.NewNumericEncoder(
		encoder.NewWindowBuilder(a.prices, a.zl),
		encoder.PadToDimModel{Dim: a.pipeline.Regime.EmbeddingDim},
		encoder.NewStore(a.db.Pool),
		a.pipeline.Regime.EncoderModelID,
	)
	model, err := regime.NewNumericModel(enc, a.pipeline.RegimeModelConfig(), a.zl)
	if err != nil {
		return nil, fmt.Errorf("create regime model: %w", err)
	}
	return regime.NewEngine(model, a.regimeRepo, a.recorder, a.zl).WithForecastCache(a.forecastCache()), nil
}

func (a *app) forecastCache() *redis.Cache {
	return redis.NewCache(a.redis, "prometheus")
}

func (a *app) regimeForecaster() *regime.Forecaster {
	target := contracts.RegimeLabel(a.pipeline.Regime.TargetLabel)
	return regime.NewForecaster(a.regimeRepo, target, a.zl).
		WithCache(a.forecastCache(), a.cfg.Redis.TTL)
}

func (a *app) stabilityForecaster() *stability.Forecaster {
	return stability.NewForecaster(a.stabilityRepo, contracts.EntityTypeInstrument, a.zl).
		WithCache(a.forecastCache(), a.cfg.Redis.TTL)
}

// clusterScores returns the guarded lambda provider, or nil when no CSV is configured
func (a *app) clusterScores() (contracts.ClusterScoreProvider, error) {
	if a.lambda != nil || a.pipeline.Lambda.Path == "" {
		return a.lambda, nil
	}
	lc := a.pipeline.Lambda
	provider, err := opportunity.LoadLambdaProvider(lc.Path, lc.ExperimentID, lc.ScoreColumn)
	if err != nil {
		return nil, fmt.Errorf("load lambda scores: %w", err)
	}
	a.log.WithFields(map[string]interface{}{
		"path": lc.Path,
		"rows": provider.Len(),
	}).Info("Lambda scores loaded")
	a.lambda = guard.NewClusterScore(provider, a.pipeline.Guard, a.zl)
	return a.lambda, nil
}

func (a *app) universeEngine(ctx context.Context, r strategyconfig.Region) (*s1_universe.Engine, error) {
	deps := s1_universe.Deps{
		Instruments:   s0_data.NewInstrumentRepository(a.db.Pool),
		Prices:        a.prices,
		Calendar:      a.calendar(ctx, r),
		Stability:     a.stabilityRepo,
		Alpha:         s0_data.NewAlphaRepository(a.db.Pool),
		RegimeRisk:    guard.NewRegimeRisk(a.regimeForecaster(), a.pipeline.Guard, a.zl),
		StabilityRisk: guard.NewStabilityRisk(a.stabilityForecaster(), a.pipeline.Guard, a.zl),
		Recorder:      a.recorder,
	}

	lambda, err := a.clusterScores()
	if err != nil {
		return nil, err
	}
	if lambda != nil {
		deps.Lambda = lambda
	}

	return s1_universe.NewEngine(a.pipeline.UniverseConfig(r), deps, a.zl)
}

func (a *app) portfolioModel(r strategyconfig.Region) (*portfolio.Model, error) {
	return portfolio.NewModel(a.pipeline.PortfolioConfig(r), portfolio.Deps{
		Universe:  a.universeRepo,
		Factors:   s0_data.NewFactorRepository(a.db.Pool),
		Fragility: a.stabilityRepo,
		Scenarios: risk.NewEngine(s0_data.NewScenarioRepository(a.db.Pool), a.zl),
		Recorder:  a.recorder,
	}, a.zl)
}

// orchestrator wires every configured region into one pipeline
func (a *app) orchestrator(ctx context.Context) (*brain.Orchestrator, error) {
	engine, err := a.regimeEngine()
	if err != nil {
		return nil, err
	}

	regions := make([]brain.RegionPipeline, 0, len(a.pipeline.Regime.Regions))
	for _, r := range a.pipeline.Regime.Regions {
		universe, err := a.universeEngine(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("region %s: create universe engine: %w", r.Region, err)
		}
		model, err := a.portfolioModel(r)
		if err != nil {
			return nil, fmt.Errorf("region %s: create portfolio model: %w", r.Region, err)
		}
		regions = append(regions, brain.RegionPipeline{
			Region:      r.Region,
			UniverseID:  strategyconfig.UniverseID(r.Region),
			PortfolioID: strategyconfig.PortfolioID(r.Region),
			Universe:    universe,
			Portfolio:   model,
		})
	}

	return brain.NewOrchestrator(engine, a.universeRepo, a.portfolioRepo, regions, a.recorder, a.configHash, a.log), nil
}
