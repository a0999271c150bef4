package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/brain"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
}

// Calendar resolves the date a run should use
type Calendar interface {
	LatestTradingDayOnOrBefore(d time.Time) time.Time
}

// PipelineJob runs the daily pipeline for the latest trading day
type PipelineJob struct {
	runner   Runner
	calendar Calendar
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewPipelineJob creates a pipeline job on schedule
func NewPipelineJob(runner Runner, calendar Calendar, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		runner:   runner,
		calendar: calendar,
		schedule: schedule,
		now:      time.Now,
		logger:   log,
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "daily_pipeline"
}

// Schedule returns the cron schedule (with seconds)
func (j *PipelineJob) Schedule() string {
	return j.schedule
}

// Run executes the pipeline for the latest trading day on or before today
func (j *PipelineJob) Run(ctx context.Context) error {
	asOf := j.calendar.LatestTradingDayOnOrBefore(j.now().UTC())
	runID := uuid.NewString()

	j.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"as_of":  asOf.Format("2006-01-02"),
	}).Info("Starting scheduled pipeline run")

	result, err := j.runner.Run(ctx, brain.RunConfig{Date: asOf, RunID: runID})
	if err != nil {
		return fmt.Errorf("pipeline run %s: %w", runID, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"stages":   len(result.CompletedStages),
		"duration": result.Duration.String(),
	}).Info("Scheduled pipeline run completed")

	return nil
}
