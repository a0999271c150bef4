package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/contracts"
)

// Repository persists target portfolios and risk reports
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new portfolio repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// targetPositions is the target_positions JSONB document
type targetPositions struct {
	Weights map[string]float64 `json:"weights"`
}

// targetMetadata is the metadata JSONB document of target_portfolios
type targetMetadata struct {
	ExpectedReturn     float64                `json:"expected_return"`
	ExpectedVolatility float64                `json:"expected_volatility"`
	RiskMetrics        map[string]float64     `json:"risk_metrics"`
	FactorExposures    map[string]float64     `json:"factor_exposures"`
	ConstraintsStatus  map[string]bool        `json:"constraints_status"`
	Metadata           map[string]interface{} `json:"metadata"`
}

const upsertTargetSQL = `
	INSERT INTO target_portfolios (
		target_id, strategy_id, portfolio_id, as_of_date, target_positions, metadata
	) VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (portfolio_id, as_of_date) DO UPDATE SET
		strategy_id = EXCLUDED.strategy_id,
		target_positions = EXCLUDED.target_positions,
		metadata = EXCLUDED.metadata,
		created_at = NOW()
`

const upsertReportSQL = `
	INSERT INTO portfolio_risk_reports (
		report_id, portfolio_id, as_of_date, net_exposure, gross_exposure, leverage,
		risk_metrics, scenario_pnl, exposures_by_factor, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (portfolio_id, as_of_date) DO UPDATE SET
		net_exposure = EXCLUDED.net_exposure,
		gross_exposure = EXCLUDED.gross_exposure,
		leverage = EXCLUDED.leverage,
		risk_metrics = EXCLUDED.risk_metrics,
		scenario_pnl = EXCLUDED.scenario_pnl,
		exposures_by_factor = EXCLUDED.exposures_by_factor,
		metadata = EXCLUDED.metadata,
		created_at = NOW()
`

// SaveTargetPortfolio upserts a target portfolio on (portfolio_id, as_of_date)
func (r *Repository) SaveTargetPortfolio(ctx context.Context, target *contracts.TargetPortfolio) error {
	args, err := targetArgs(target)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertTargetSQL, args...); err != nil {
		return fmt.Errorf("failed to save target portfolio: %w", err)
	}
	return nil
}

// SaveRiskReport upserts a risk report on (portfolio_id, as_of_date)
func (r *Repository) SaveRiskReport(ctx context.Context, report *contracts.RiskReport) error {
	args, err := reportArgs(report)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertReportSQL, args...); err != nil {
		return fmt.Errorf("failed to save risk report: %w", err)
	}
	return nil
}

// SavePortfolio writes a target and its risk report in one transaction
func (r *Repository) SavePortfolio(ctx context.Context, target *contracts.TargetPortfolio, report *contracts.RiskReport) error {
	targetRow, err := targetArgs(target)
	if err != nil {
		return err
	}
	reportRow, err := reportArgs(report)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertTargetSQL, targetRow...); err != nil {
		return fmt.Errorf("failed to save target portfolio: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertReportSQL, reportRow...); err != nil {
		return fmt.Errorf("failed to save risk report: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTargetPortfolio loads the target of a portfolio at asOf; nil when absent
func (r *Repository) GetTargetPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (*contracts.TargetPortfolio, error) {
	query := `
		SELECT portfolio_id, as_of_date, target_positions, metadata
		FROM target_portfolios
		WHERE portfolio_id = $1 AND as_of_date = $2
	`
	return scanTarget(r.pool.QueryRow(ctx, query, portfolioID, contracts.DateOnly(asOf)))
}

// GetLatestTargetPortfolio loads the most recent target of a portfolio; nil when absent
func (r *Repository) GetLatestTargetPortfolio(ctx context.Context, portfolioID string) (*contracts.TargetPortfolio, error) {
	query := `
		SELECT portfolio_id, as_of_date, target_positions, metadata
		FROM target_portfolios
		WHERE portfolio_id = $1
		ORDER BY as_of_date DESC
		LIMIT 1
	`
	return scanTarget(r.pool.QueryRow(ctx, query, portfolioID))
}

// GetRiskReport loads the risk report of a portfolio at asOf; nil when absent
func (r *Repository) GetRiskReport(ctx context.Context, portfolioID string, asOf time.Time) (*contracts.RiskReport, error) {
	query := `
		SELECT portfolio_id, as_of_date, risk_metrics, scenario_pnl, exposures_by_factor, metadata
		FROM portfolio_risk_reports
		WHERE portfolio_id = $1 AND as_of_date = $2
	`

	var (
		report                                         contracts.RiskReport
		metricsJSON, pnlJSON, exposuresJSON, metaJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, portfolioID, contracts.DateOnly(asOf)).Scan(
		&report.PortfolioID, &report.AsOfDate, &metricsJSON, &pnlJSON, &exposuresJSON, &metaJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query risk report: %w", err)
	}

	for _, f := range []struct {
		raw  []byte
		dest interface{}
	}{
		{metricsJSON, &report.RiskMetrics},
		{pnlJSON, &report.ScenarioPnL},
		{exposuresJSON, &report.Exposures},
		{metaJSON, &report.Metadata},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, fmt.Errorf("failed to decode risk report: %w", err)
		}
	}
	return &report, nil
}

func targetArgs(target *contracts.TargetPortfolio) ([]interface{}, error) {
	positions, err := json.Marshal(targetPositions{Weights: target.Weights})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal target positions: %w", err)
	}
	meta, err := json.Marshal(targetMetadata{
		ExpectedReturn:     target.ExpectedReturn,
		ExpectedVolatility: target.ExpectedVolatility,
		RiskMetrics:        target.RiskMetrics,
		FactorExposures:    target.FactorExposures,
		ConstraintsStatus:  target.ConstraintsStatus,
		Metadata:           target.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal target metadata: %w", err)
	}

	strategyID := target.PortfolioID
	if id, ok := target.Metadata["risk_model_id"].(string); ok && id != "" {
		strategyID = id
	}

	return []interface{}{
		uuid.NewString(), strategyID, target.PortfolioID,
		contracts.DateOnly(target.AsOfDate), positions, meta,
	}, nil
}

func reportArgs(report *contracts.RiskReport) ([]interface{}, error) {
	metricsJSON, err := json.Marshal(report.RiskMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal risk metrics: %w", err)
	}
	pnlJSON, err := json.Marshal(report.ScenarioPnL)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scenario pnl: %w", err)
	}
	exposuresJSON, err := json.Marshal(report.Exposures)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exposures: %w", err)
	}
	metaJSON, err := json.Marshal(report.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report metadata: %w", err)
	}

	net := report.RiskMetrics[MetricNetExposure]
	gross := report.RiskMetrics[MetricGrossExposure]

	return []interface{}{
		uuid.NewString(), report.PortfolioID, contracts.DateOnly(report.AsOfDate),
		net, gross, gross, metricsJSON, pnlJSON, exposuresJSON, metaJSON,
	}, nil
}

func scanTarget(row pgx.Row) (*contracts.TargetPortfolio, error) {
	var (
		target              contracts.TargetPortfolio
		positionsJSON, meta []byte
	)
	err := row.Scan(&target.PortfolioID, &target.AsOfDate, &positionsJSON, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query target portfolio: %w", err)
	}

	var positions targetPositions
	if err := json.Unmarshal(positionsJSON, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode target positions: %w", err)
	}
	target.Weights = positions.Weights

	if len(meta) > 0 {
		var m targetMetadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("failed to decode target metadata: %w", err)
		}
		target.ExpectedReturn = m.ExpectedReturn
		target.ExpectedVolatility = m.ExpectedVolatility
		target.RiskMetrics = m.RiskMetrics
		target.FactorExposures = m.FactorExposures
		target.ConstraintsStatus = m.ConstraintsStatus
		target.Metadata = m.Metadata
	}
	return &target, nil
}
