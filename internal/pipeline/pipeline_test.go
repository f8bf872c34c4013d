package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipelineconfig"
	"github.com/wonny/epimart/internal/quality"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/metrics"
)

type memoryStore struct {
	runs     []*contracts.PipelineRun
	mart     []contracts.UnifiedMartRecord
	national []contracts.NationalDailyRow
	err      error
}

// Publish replaces everything or nothing, like the database store
func (s *memoryStore) Publish(_ context.Context, run *contracts.PipelineRun, records []contracts.UnifiedMartRecord, national []contracts.NationalDailyRow) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	s.mart = records
	s.national = national
	return nil
}

func loadFixture(t *testing.T) (*pipelineconfig.Config, *s0_ingest.Snapshot) {
	t.Helper()
	cfg, _, err := pipelineconfig.LoadDefault()
	require.NoError(t, err)

	snap, err := s0_ingest.NewLoader(cfg, "../s0_ingest/testdata", zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	return cfg, snap
}

func TestPipeline_Run(t *testing.T) {
	cfg, snap := loadFixture(t)
	store := &memoryStore{}
	m := metrics.New()

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	result, err := p.WithStore(store).WithMetrics(m).Run(context.Background(), snap)
	require.NoError(t, err)

	run := result.Run
	assert.False(t, run.StartedAt.IsZero())
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
	assert.Len(t, run.RunID, 36)
	assert.Equal(t, p.ConfigHash(), run.ConfigHash)

	// S1: NY 음수 new_case 1건, NY capacity 억제값 1건
	require.Len(t, run.Filter, 3)
	assert.Equal(t, 0, run.Filter[0].TotalRejected())
	assert.Equal(t, 1, run.Filter[1].Rejected[contracts.RejectNegativeIncrement])
	assert.Equal(t, 1, run.Filter[2].Rejected[contracts.RejectInvalidCapacity])

	// S2
	require.Len(t, run.Reduce, 3)
	assert.Equal(t, 5, run.Reduce[0].Keys)
	assert.Equal(t, 4, run.Reduce[1].Keys)
	assert.Equal(t, 3, run.Reduce[2].Keys)
	assert.Equal(t, "summation", run.Reduce[2].Policy)

	// S3: US는 case/death에 없음, NY W02는 capacity에 없음
	require.Len(t, run.Join.Stages, 3)
	assert.Equal(t, 1, run.Join.Stages[0].DroppedLeft)
	assert.Equal(t, 1, run.Join.Stages[1].DroppedLeft)
	assert.Equal(t, 0, run.Join.Stages[2].DroppedLeft)
	assert.InDelta(t, 0.25, run.Coverage.WorstRate, 1e-9)
	assert.True(t, run.Coverage.Passed)

	// S4
	require.Len(t, result.Mart, 3)
	keys := []string{result.Mart[0].Key, result.Mart[1].Key, result.Mart[2].Key}
	assert.Equal(t, []string{"CA202201", "CA202202", "NY202201"}, keys)

	ca := result.Mart[0]
	assert.Equal(t, 1150.0, ca.TotCases)
	assert.Equal(t, 4100.0, ca.Administered)
	assert.Equal(t, 250.0, ca.TotalBeds)
	assert.Equal(t, 2, ca.ReportingFacilities)
	assert.Equal(t, "California", ca.Name)
	assert.Equal(t, contracts.Defined(50), ca.ICUOccupancyPct)
	assert.InDelta(t, 11.0/1150.0*100, ca.CaseFatalityPct.Value, 1e-9)

	// S5: 1/3 ~ 1/11, 1/6 1/8 1/9 1/10 공백
	assert.Len(t, result.National, 9)
	assert.Equal(t, 4, run.GapDays)
	last := result.National[len(result.National)-1]
	assert.Equal(t, 200.0, last.NewCase)
	assert.Equal(t, 2, last.ReportingJurisdictions)

	// 저장
	require.Len(t, store.runs, 1)
	assert.Len(t, store.mart, 3)
	assert.Len(t, store.national, 9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MartRows))

	for _, r := range run.Results {
		assert.True(t, r.Success, r.Stage)
	}
}

func TestPipeline_ConcurrentMatchesSequential(t *testing.T) {
	cfg, snap := loadFixture(t)

	seq, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	want, err := seq.Run(context.Background(), snap)
	require.NoError(t, err)

	conc, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	got, err := conc.WithConcurrency(true).Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, want.Mart, got.Mart)
	assert.Equal(t, want.National, got.National)
	assert.Equal(t, want.Run.Filter, got.Run.Filter)
}

func TestPipeline_IntegrityErrorAbortsBeforePersist(t *testing.T) {
	cfg, snap := loadFixture(t)

	// capacity 테이블에서 date 컬럼 제거
	capacity := *snap.Tables[contracts.SourceCapacity]
	capacity.Columns = []string{contracts.ColumnJurisdiction, contracts.MeasureTotalBeds}
	snap.Tables[contracts.SourceCapacity] = &capacity

	store := &memoryStore{}
	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)

	result, err := p.WithStore(store).Run(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, contracts.IsIntegrityError(err))
	assert.Empty(t, store.runs)
	assert.Nil(t, store.mart)

	last := result.Run.Results[len(result.Run.Results)-1]
	assert.False(t, last.Success)
	assert.Equal(t, contracts.StageFilter, last.Stage)
}

func TestPipeline_EnforcedCoverage(t *testing.T) {
	cfg, snap := loadFixture(t)
	store := &memoryStore{}

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	_, err = p.WithStore(store).
		WithCoverage(quality.Config{MaxDropRate: 0.2, Enforce: true}).
		Run(context.Background(), snap)

	var ce *quality.CoverageError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"x_capacity"}, ce.Verdict.Breaches)
	assert.Empty(t, store.runs)
}

func TestPipeline_ObserveOnlyCoverage(t *testing.T) {
	cfg, snap := loadFixture(t)

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	result, err := p.WithCoverage(quality.Config{MaxDropRate: 0.2}).Run(context.Background(), snap)
	require.NoError(t, err)

	assert.False(t, result.Run.Coverage.Passed)
	assert.Len(t, result.Mart, 3)
}

func TestPipeline_StoreError(t *testing.T) {
	cfg, snap := loadFixture(t)
	m := metrics.New()

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	store := &memoryStore{
		mart: []contracts.UnifiedMartRecord{{Key: "TX202152"}},
		err:  errors.New("disk full"),
	}
	_, err = p.WithStore(store).WithMetrics(m).Run(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish run")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))

	// 실패한 저장은 이전 마트를 건드리지 않음
	assert.Empty(t, store.runs)
	assert.Equal(t, []contracts.UnifiedMartRecord{{Key: "TX202152"}}, store.mart)
	assert.Nil(t, store.national)
}

func TestPipeline_RepublishReplacesMart(t *testing.T) {
	cfg, snap := loadFixture(t)
	store := &memoryStore{}

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	p.WithStore(store)

	_, err = p.Run(context.Background(), snap)
	require.NoError(t, err)
	require.Len(t, store.mart, 3)

	// NY capacity 제거 → 두 번째 실행은 NY202201을 잃음
	capacity := *snap.Tables[contracts.SourceCapacity]
	capacity.Rows = nil
	for _, row := range snap.Tables[contracts.SourceCapacity].Rows {
		if row.Jurisdiction != "NY" {
			capacity.Rows = append(capacity.Rows, row)
		}
	}
	snap.Tables[contracts.SourceCapacity] = &capacity

	result, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, store.runs, 2)
	assert.Equal(t, result.Run.RunID, store.runs[1].RunID)
	keys := make([]string, 0, len(store.mart))
	for _, rec := range store.mart {
		keys = append(keys, rec.Key)
	}
	assert.Equal(t, []string{"CA202201", "CA202202"}, keys)
}

func TestPipeline_SequentialStopsAtFirstIntegrityError(t *testing.T) {
	tests := []struct {
		name       string
		concurrent bool
		ran        []bool // reduceSource ran, in FactSources order
	}{
		{"sequential", false, []bool{true, false, false}},
		{"concurrent", true, []bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, snap := loadFixture(t)

			// vaccination 테이블(첫 소스)에서 date 컬럼 제거
			vax := *snap.Tables[contracts.SourceVaccination]
			vax.Columns = []string{contracts.ColumnJurisdiction}
			snap.Tables[contracts.SourceVaccination] = &vax

			p, err := New(cfg, logger.Nop())
			require.NoError(t, err)
			p.WithConcurrency(tt.concurrent)

			outputs := p.reduceAll(context.Background(), snap, p.logger)
			require.Len(t, outputs, len(tt.ran))
			assert.True(t, contracts.IsIntegrityError(outputs[0].err))
			for i, ran := range tt.ran {
				assert.Equal(t, ran, len(outputs[i].results) > 0, "source %d", i)
			}

			result, err := p.Run(context.Background(), snap)
			require.Error(t, err)
			assert.True(t, contracts.IsIntegrityError(err))
			require.Len(t, result.Run.Results, 1)
			assert.Equal(t, contracts.SourceVaccination, result.Run.Results[0].Source)
			assert.Empty(t, result.Run.Filter)
		})
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	cfg, snap := loadFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	_, err = p.Run(ctx, snap)
	assert.ErrorIs(t, err, context.Canceled)
}
