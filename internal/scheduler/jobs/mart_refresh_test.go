package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipeline"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/pkg/logger"
)

type stepLog []string

type fakeFetcher struct {
	steps *stepLog
	err   error
}

func (f fakeFetcher) FetchAll(context.Context) ([]s0_ingest.FetchResult, error) {
	*f.steps = append(*f.steps, "fetch")
	return nil, f.err
}

type fakeLoader struct{ steps *stepLog }

func (f fakeLoader) Load(context.Context) (*s0_ingest.Snapshot, error) {
	*f.steps = append(*f.steps, "load")
	return &s0_ingest.Snapshot{}, nil
}

type fakeRunner struct {
	steps *stepLog
	err   error
}

func (f fakeRunner) Run(context.Context, *s0_ingest.Snapshot) (*pipeline.Result, error) {
	*f.steps = append(*f.steps, "run")
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{Run: &contracts.PipelineRun{RunID: "r1", MartRows: 3}}, nil
}

type fakeExtender struct {
	steps *stepLog
	err   error
}

func (f fakeExtender) ExtendSeries(_ context.Context, runID string, _ []contracts.NationalDailyRow, horizon int) ([]contracts.NationalDailyRow, error) {
	*f.steps = append(*f.steps, "forecast:"+runID)
	return nil, f.err
}

type fakeCache struct{ steps *stepLog }

func (f fakeCache) InvalidateAll(context.Context) (int, error) {
	*f.steps = append(*f.steps, "invalidate")
	return 2, nil
}

func TestMartRefreshJob_Run(t *testing.T) {
	steps := &stepLog{}
	job := NewMartRefreshJob("0 0 6 * * 4", fakeFetcher{steps: steps}, fakeLoader{steps}, fakeRunner{steps: steps}, logger.Nop()).
		WithForecast(fakeExtender{steps: steps}, 14).
		WithCache(fakeCache{steps})

	assert.Equal(t, "mart_refresh", job.Name())
	assert.Equal(t, "0 0 6 * * 4", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, stepLog{"fetch", "load", "run", "forecast:r1", "invalidate"}, *steps)
}

func TestMartRefreshJob_FetchFailureStopsRun(t *testing.T) {
	steps := &stepLog{}
	job := NewMartRefreshJob("@weekly", fakeFetcher{steps: steps, err: errors.New("503")}, fakeLoader{steps}, fakeRunner{steps: steps}, logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch sources")
	assert.Equal(t, stepLog{"fetch"}, *steps)
}

func TestMartRefreshJob_PipelineFailure(t *testing.T) {
	steps := &stepLog{}
	job := NewMartRefreshJob("@weekly", nil, fakeLoader{steps}, fakeRunner{steps: steps, err: errors.New("integrity")}, logger.Nop()).
		WithCache(fakeCache{steps})

	require.Error(t, job.Run(context.Background()))
	assert.Equal(t, stepLog{"load", "run"}, *steps, "cache is kept when the run fails")
}

func TestMartRefreshJob_ForecastFailureIsNotFatal(t *testing.T) {
	steps := &stepLog{}
	job := NewMartRefreshJob("@weekly", nil, fakeLoader{steps}, fakeRunner{steps: steps}, logger.Nop()).
		WithForecast(fakeExtender{steps: steps, err: errors.New("too short")}, 7)

	assert.NoError(t, job.Run(context.Background()))
}
