package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	fails    int32 // 처음 n번 실패
	calls    atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }

func (j *countingJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if n <= j.fails {
		return errors.New("transient")
	}
	return nil
}

func TestScheduler_AddRemove(t *testing.T) {
	s := New(logger.Nop())
	job := &countingJob{name: "mart_refresh", schedule: "0 0 6 * * 4"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate names are rejected")
	assert.Equal(t, []string{"mart_refresh"}, s.GetAllJobs())

	next, ok := s.NextRun("mart_refresh")
	require.True(t, ok)
	assert.True(t, next.IsZero(), "next run is computed on Start")

	require.NoError(t, s.RemoveJob("mart_refresh"))
	assert.Empty(t, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("mart_refresh"))
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(logger.Nop())
	assert.Error(t, s.AddJob(&countingJob{name: "bad", schedule: "every thursday"}))
}

func TestScheduler_RunJobSyncRetries(t *testing.T) {
	s := New(logger.Nop()).WithRetry(2, time.Millisecond)
	job := &countingJob{name: "flaky", schedule: "@weekly", fails: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("flaky")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), job.calls.Load())

	stats := s.GetJobStats()["flaky"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1.0, stats.SuccessRate)
	require.NotNil(t, stats.LastSuccess)
}

func TestScheduler_RunJobSyncGivesUp(t *testing.T) {
	s := New(logger.Nop()).WithRetry(1, time.Millisecond)
	job := &countingJob{name: "broken", schedule: "@weekly", fails: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync("broken")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "transient", result.Error)
	assert.Equal(t, int32(2), job.calls.Load())

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)

	_, err = s.RunJobSync("missing")
	assert.Error(t, err)
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}

func TestJobResult_Skipped(t *testing.T) {
	assert.True(t, JobResult{Error: skippedError}.Skipped())
	assert.False(t, JobResult{Error: "boom"}.Skipped())
}
