package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/internal/brain"
	"github.com/FeanorKingofNoldor/prometheus-v2/internal/s0_data"
	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

type recordingRunner struct {
	configs []brain.RunConfig
	err     error
}

func (r *recordingRunner) Run(_ context.Context, cfg brain.RunConfig) (*brain.RunResult, error) {
	r.configs = append(r.configs, cfg)
	if r.err != nil {
		return nil, r.err
	}
	return &brain.RunResult{RunID: cfg.RunID, Success: true}, nil
}

func TestPipelineJob_UsesLatestTradingDay(t *testing.T) {
	runner := &recordingRunner{}
	job := NewPipelineJob(runner, s0_data.NewCalendar("US_EQ", nil), "0 30 22 * * MON-FRI", logger.Nop())
	// Saturday evening
	job.now = func() time.Time { return time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC) }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, runner.configs, 1)
	assert.True(t, runner.configs[0].Date.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)))
	assert.NotEmpty(t, runner.configs[0].RunID)

	assert.Equal(t, "daily_pipeline", job.Name())
	assert.Equal(t, "0 30 22 * * MON-FRI", job.Schedule())
}

func TestPipelineJob_PropagatesFailure(t *testing.T) {
	runner := &recordingRunner{err: errors.New("stage failed")}
	job := NewPipelineJob(runner, s0_data.NewCalendar("US_EQ", nil), "@daily", logger.Nop())

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "stage failed")
}
