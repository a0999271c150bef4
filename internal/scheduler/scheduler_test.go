package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FeanorKingofNoldor/prometheus-v2/pkg/logger"
)

type countingJob struct {
	failures int
	calls    int
}

func (j *countingJob) Name() string     { return "counting" }
func (j *countingJob) Schedule() string { return "0 30 22 * * MON-FRI" }

func (j *countingJob) Run(context.Context) error {
	j.calls++
	if j.calls <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_RunNowRetries(t *testing.T) {
	s := New(logger.Nop(), WithRetry(2, 0))
	job := &countingJob{failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunNow("counting")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)

	h, err := s.GetJobHistory("counting")
	require.NoError(t, err)
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.True(t, latest.Success)
	assert.Equal(t, 1.0, h.SuccessRate())
}

func TestScheduler_GivesUp(t *testing.T) {
	s := New(logger.Nop(), WithRetry(1, 0))
	require.NoError(t, s.AddJob(&countingJob{failures: 10}))

	result, err := s.RunNow("counting")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "transient", result.Error)
}

func TestScheduler_Registration(t *testing.T) {
	s := New(logger.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job))
	assert.Equal(t, []string{"counting"}, s.JobNames())

	s.Start()
	next, ok := s.NextRun("counting")
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))
	s.Stop()

	require.NoError(t, s.RemoveJob("counting"))
	assert.Error(t, s.RemoveJob("counting"))
	_, err := s.RunNow("counting")
	assert.Error(t, err)

	_, ok = s.NextRun("counting")
	assert.False(t, ok)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(logger.Nop())
	err := s.AddJob(badJob{})
	assert.Error(t, err)
}

type badJob struct{}

func (badJob) Name() string              { return "bad" }
func (badJob) Schedule() string          { return "not a cron" }
func (badJob) Run(context.Context) error { return nil }

func TestJobHistory_Bounded(t *testing.T) {
	var h JobHistory
	for i := 0; i < historyLimit+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-12)

	var empty JobHistory
	_, ok := empty.Latest()
	assert.False(t, ok)
	assert.Zero(t, empty.SuccessRate())
}
