// Package pipeline runs S1 → S5 over one ingested snapshot.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipelineconfig"
	"github.com/wonny/epimart/internal/quality"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/internal/s1_filter"
	"github.com/wonny/epimart/internal/s2_reduce"
	"github.com/wonny/epimart/internal/s3_join"
	"github.com/wonny/epimart/internal/s4_derive"
	"github.com/wonny/epimart/internal/s5_national"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/metrics"
)

// Result is everything one run produced
type Result struct {
	Run      *contracts.PipelineRun
	Mart     []contracts.UnifiedMartRecord
	National []contracts.NationalDailyRow
}

// Pipeline orchestrates the core stages
// ⭐ SSOT: 스테이지 실행 순서는 여기서만 결정
type Pipeline struct {
	cfg        *pipelineconfig.Config
	configHash string
	gate       *quality.CoverageGate
	store      contracts.MartStore
	metrics    *metrics.Metrics
	concurrent bool
	logger     *logger.Logger
}

// New creates a pipeline for a validated rule config
func New(cfg *pipelineconfig.Config, log *logger.Logger) (*Pipeline, error) {
	hash, err := pipelineconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}
	return &Pipeline{
		cfg:        cfg,
		configHash: hash,
		gate: quality.NewCoverageGate(quality.Config{
			MaxDropRate: cfg.Coverage.MaxDropRate,
			Enforce:     cfg.Coverage.Enforce,
		}),
		logger: log.WithField("module", "pipeline"),
	}, nil
}

// WithStore persists successful runs
func (p *Pipeline) WithStore(store contracts.MartStore) *Pipeline {
	p.store = store
	return p
}

// WithMetrics records stage observations
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithConcurrency runs the per-source filter+reduce pipelines in parallel
func (p *Pipeline) WithConcurrency(enabled bool) *Pipeline {
	p.concurrent = enabled
	return p
}

// WithCoverage overrides the coverage gate from the rule config
func (p *Pipeline) WithCoverage(cfg quality.Config) *Pipeline {
	p.gate = quality.NewCoverageGate(cfg)
	return p
}

// ConfigHash returns the hash recorded on every run
func (p *Pipeline) ConfigHash() string {
	return p.configHash
}

// sourceOutput is the S1+S2 output of one source
type sourceOutput struct {
	source   contracts.Source
	filtered *s1_filter.FilterResult
	reduced  *s2_reduce.ReduceResult
	results  []contracts.PipelineResult
	err      error
}

// Run executes S1 → S5 on a snapshot. Nothing is persisted unless every stage
// and the coverage gate succeed.
func (p *Pipeline) Run(ctx context.Context, snap *s0_ingest.Snapshot) (*Result, error) {
	run := &contracts.PipelineRun{
		RunID:      uuid.NewString(),
		ConfigHash: p.configHash,
		StartedAt:  time.Now().UTC(),
	}
	log := p.logger.WithRun(run.RunID)
	log.WithField("config_hash", p.configHash).Info("Pipeline started")

	result, err := p.run(ctx, run, snap, log)
	run.FinishedAt = time.Now().UTC()

	if p.metrics != nil {
		p.metrics.ObserveRun(run, err)
	}
	if err != nil {
		log.WithError(err).Error("Pipeline failed")
		return &Result{Run: run}, err
	}

	log.WithFields(map[string]interface{}{
		"mart_rows":     run.MartRows,
		"national_rows": run.NationalRows,
		"gap_days":      run.GapDays,
		"worst_drop":    run.Coverage.WorstRate,
		"duration":      run.Duration().String(),
	}).Info("Pipeline completed")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, run *contracts.PipelineRun, snap *s0_ingest.Snapshot, log *logger.Logger) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot")
	}

	// 1. S1 + S2 (소스별 독립)
	outputs := p.reduceAll(ctx, snap, log)
	facts := make(map[contracts.Source][]contracts.WeeklyFact, len(outputs))
	var caseRows []contracts.KeyedObservation
	for _, out := range outputs {
		run.Results = append(run.Results, out.results...)
		if out.err != nil {
			return nil, out.err
		}
		run.Filter = append(run.Filter, out.filtered.Stats)
		run.Reduce = append(run.Reduce, out.reduced.Stats)
		facts[out.source] = out.reduced.Facts
		if out.source == contracts.SourceCaseDeath {
			caseRows = out.filtered.Rows
		}
		if p.metrics != nil {
			p.metrics.ObserveFilter(out.filtered.Stats)
			p.metrics.ObserveReduce(out.reduced.Stats)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2. S3 join
	start := time.Now()
	joiner := s3_join.NewJoiner(log.WithStage(contracts.StageJoin, "").Zerolog())
	joined, err := joiner.Join(
		facts[contracts.SourceVaccination],
		facts[contracts.SourceCaseDeath],
		facts[contracts.SourceCapacity],
		snap.Geography,
	)
	if err != nil {
		run.Results = append(run.Results, failed(contracts.StageJoin, "", start, err))
		return nil, err
	}
	run.Join = joined.Report
	run.Results = append(run.Results, contracts.PipelineResult{
		Stage:       contracts.StageJoin,
		Success:     true,
		InputCount:  len(facts[contracts.SourceVaccination]),
		OutputCount: len(joined.Records),
		Duration:    time.Since(start).Milliseconds(),
		Metadata:    map[string]interface{}{"dropped": joined.Report.TotalDropped()},
	})
	if p.metrics != nil {
		p.metrics.ObserveJoin(joined.Report)
	}

	// 3. S4 derived metrics
	start = time.Now()
	mart := s4_derive.Compute(joined.Records)
	undefined := s4_derive.UndefinedCounts(mart)
	run.MartRows = len(mart)
	run.Results = append(run.Results, contracts.PipelineResult{
		Stage:       contracts.StageDerive,
		Success:     true,
		InputCount:  len(joined.Records),
		OutputCount: len(mart),
		Duration:    time.Since(start).Milliseconds(),
		Metadata:    map[string]interface{}{"undefined": undefined},
	})

	// 4. S5 national series (필터된 일별 case/death 기준)
	start = time.Now()
	national := s5_national.Build(caseRows)
	run.NationalRows = len(national)
	run.GapDays = s5_national.GapDays(national)
	run.Results = append(run.Results, contracts.PipelineResult{
		Stage:       contracts.StageNational,
		Success:     true,
		InputCount:  len(caseRows),
		OutputCount: len(national),
		Duration:    time.Since(start).Milliseconds(),
		Metadata:    map[string]interface{}{"gap_days": run.GapDays},
	})
	if run.GapDays > 0 {
		log.WithField("gap_days", run.GapDays).Warn("National series has dates with no reports")
	}

	// 5. 커버리지 판정
	run.Coverage = p.gate.Evaluate(joined.Report)
	if !run.Coverage.Passed {
		log.WithFields(map[string]interface{}{
			"breaches":      run.Coverage.Breaches,
			"max_drop_rate": run.Coverage.MaxDropRate,
			"worst_rate":    run.Coverage.WorstRate,
		}).Warn("Join coverage below threshold")
	}
	if err := p.gate.Check(run.Coverage); err != nil {
		return nil, err
	}

	result := &Result{Run: run, Mart: mart, National: national}

	// 6. 저장 (모든 스테이지 성공 후에만)
	if p.store != nil {
		run.FinishedAt = time.Now().UTC()
		if err := p.persist(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// reduceAll runs S1+S2 for every fact source, in FactSources order.
// Sequential runs stop at the first failing source.
func (p *Pipeline) reduceAll(ctx context.Context, snap *s0_ingest.Snapshot, log *logger.Logger) []sourceOutput {
	sources := contracts.FactSources()
	outputs := make([]sourceOutput, len(sources))

	if !p.concurrent {
		for i, source := range sources {
			outputs[i] = p.reduceSource(ctx, source, snap.Tables[source], log)
			// 구조 오류는 즉시 중단 (나머지 소스는 실행하지 않음)
			if outputs[i].err != nil {
				break
			}
		}
		return outputs
	}

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source contracts.Source) {
			defer wg.Done()
			outputs[i] = p.reduceSource(ctx, source, snap.Tables[source], log)
		}(i, source)
	}
	wg.Wait()
	return outputs
}

func (p *Pipeline) reduceSource(ctx context.Context, source contracts.Source, table *contracts.ObservationTable, log *logger.Logger) sourceOutput {
	out := sourceOutput{source: source}
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}

	rules, err := p.cfg.Source(source)
	if err != nil {
		out.err = err
		return out
	}

	// S1
	start := time.Now()
	filtered, err := s1_filter.Filter(table, rules.RuleSet(source))
	if err != nil {
		out.results = append(out.results, failed(contracts.StageFilter, source, start, err))
		out.err = err
		return out
	}
	out.filtered = filtered
	out.results = append(out.results, contracts.PipelineResult{
		Stage:       contracts.StageFilter,
		Source:      source,
		Success:     true,
		InputCount:  filtered.Stats.Input,
		OutputCount: filtered.Stats.Kept,
		Duration:    time.Since(start).Milliseconds(),
		Metadata:    map[string]interface{}{"rejected": filtered.Stats.Rejected},
	})

	stageLog := log.WithStage(contracts.StageFilter, source)
	if n := filtered.Stats.TotalRejected(); n > 0 {
		fields := map[string]interface{}{"rejected": n}
		for rule, count := range filtered.Stats.Rejected {
			fields[rule] = count
		}
		stageLog.WithFields(fields).Info("Records rejected")
	}

	// S2
	start = time.Now()
	policy, err := rules.ReducePolicy()
	if err != nil {
		out.results = append(out.results, failed(contracts.StageReduce, source, start, err))
		out.err = err
		return out
	}
	reducer := s2_reduce.NewReducer(log.WithStage(contracts.StageReduce, source).Zerolog())
	reduced, err := reducer.Reduce(source, filtered.Rows, policy)
	if err != nil {
		out.results = append(out.results, failed(contracts.StageReduce, source, start, err))
		out.err = err
		return out
	}
	out.reduced = reduced
	out.results = append(out.results, contracts.PipelineResult{
		Stage:       contracts.StageReduce,
		Source:      source,
		Success:     true,
		InputCount:  reduced.Stats.Input,
		OutputCount: reduced.Stats.Keys,
		Duration:    time.Since(start).Milliseconds(),
		Metadata:    map[string]interface{}{"policy": reduced.Stats.Policy, "ties": reduced.Stats.Ties},
	})
	return out
}

func (p *Pipeline) persist(ctx context.Context, result *Result) error {
	if err := p.store.Publish(ctx, result.Run, result.Mart, result.National); err != nil {
		return fmt.Errorf("publish run %s: %w", result.Run.RunID, err)
	}
	return nil
}

func failed(stage contracts.Stage, source contracts.Source, start time.Time, err error) contracts.PipelineResult {
	return contracts.PipelineResult{
		Stage:    stage,
		Source:   source,
		Success:  false,
		Duration: time.Since(start).Milliseconds(),
		Error:    err.Error(),
	}
}
