package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipeline"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/pkg/logger"
)

// Fetcher downloads source snapshots
type Fetcher interface {
	FetchAll(ctx context.Context) ([]s0_ingest.FetchResult, error)
}

// SnapshotLoader parses the downloaded snapshots
type SnapshotLoader interface {
	Load(ctx context.Context) (*s0_ingest.Snapshot, error)
}

// Runner executes the pipeline on a snapshot
type Runner interface {
	Run(ctx context.Context, snap *s0_ingest.Snapshot) (*pipeline.Result, error)
}

// SeriesExtender appends forecasts to a national series
type SeriesExtender interface {
	ExtendSeries(ctx context.Context, runID string, series []contracts.NationalDailyRow, horizon int) ([]contracts.NationalDailyRow, error)
}

// CacheInvalidator drops cached API responses
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) (int, error)
}

// MartRefreshJob downloads the sources and rebuilds the mart
// ⭐ SSOT: 마트 갱신 스케줄은 이 Job에서만
type MartRefreshJob struct {
	schedule string
	fetcher  Fetcher // nil = use files already in the data dir
	loader   SnapshotLoader
	runner   Runner
	forecast SeriesExtender // optional
	horizon  int
	cache    CacheInvalidator // optional
	logger   *logger.Logger
}

// NewMartRefreshJob creates a new mart refresh job
func NewMartRefreshJob(schedule string, fetcher Fetcher, loader SnapshotLoader, runner Runner, log *logger.Logger) *MartRefreshJob {
	return &MartRefreshJob{
		schedule: schedule,
		fetcher:  fetcher,
		loader:   loader,
		runner:   runner,
		logger:   log.WithField("job", "mart_refresh"),
	}
}

// WithForecast extends the national series after each run
func (j *MartRefreshJob) WithForecast(extender SeriesExtender, horizon int) *MartRefreshJob {
	j.forecast = extender
	j.horizon = horizon
	return j
}

// WithCache invalidates API caches after each run
func (j *MartRefreshJob) WithCache(cache CacheInvalidator) *MartRefreshJob {
	j.cache = cache
	return j
}

// Name returns the job name
func (j *MartRefreshJob) Name() string {
	return "mart_refresh"
}

// Schedule returns the cron schedule (weekly by default, sources publish weekly)
func (j *MartRefreshJob) Schedule() string {
	return j.schedule
}

// Run executes fetch → load → pipeline → forecast → cache invalidation
func (j *MartRefreshJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled mart refresh")

	// 1. 다운로드
	if j.fetcher != nil {
		if _, err := j.fetcher.FetchAll(ctx); err != nil {
			return fmt.Errorf("fetch sources: %w", err)
		}
	}

	// 2. 파싱
	snap, err := j.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	// 3. 파이프라인 (저장 포함)
	result, err := j.runner.Run(ctx, snap)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	// 4. 예측
	if j.forecast != nil && j.horizon > 0 {
		if _, err := j.forecast.ExtendSeries(ctx, result.Run.RunID, result.National, j.horizon); err != nil {
			// 마트는 이미 저장됨
			j.logger.WithError(err).Warn("Forecast failed, mart kept without projection")
		}
	}

	// 5. 캐시 무효화
	if j.cache != nil {
		n, err := j.cache.InvalidateAll(ctx)
		if err != nil {
			j.logger.WithError(err).Warn("Cache invalidation failed")
		} else {
			j.logger.WithField("keys", n).Debug("Cache invalidated")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":    result.Run.RunID,
		"mart_rows": result.Run.MartRows,
	}).Info("Scheduled mart refresh completed")

	return nil
}
