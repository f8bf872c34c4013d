package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/api"
	"github.com/wonny/epimart/internal/forecast"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/internal/pipeline"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/internal/scheduler"
	"github.com/wonny/epimart/internal/scheduler/jobs"
	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/database"
	"github.com/wonny/epimart/pkg/httputil"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/metrics"
	"github.com/wonny/epimart/pkg/redis"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `마트 갱신 스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/epimart scheduler start --serve
  go run ./cmd/epimart scheduler list
  go run ./cmd/epimart scheduler run mart_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- mart_refresh: REFRESH_SCHEDULE (기본 매주 목요일 06:00)
  다운로드 → 파이프라인 → DB 저장 → 예측 → API 캐시 무효화

--serve를 주면 같은 프로세스에서 API 서버도 실행합니다 (/metrics에 실행 지표 노출).
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

var (
	schedulerServe   bool
	schedulerNoFetch bool
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().BoolVar(&schedulerNoFetch, "no-fetch", false, "다운로드 없이 DATA_DIR의 기존 스냅샷 사용")
	schedulerStartCmd.Flags().BoolVar(&schedulerServe, "serve", false, "API 서버 함께 실행")
}

// schedulerEnv holds everything the scheduler process owns
type schedulerEnv struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	redis   *redis.Client
	cache   *redis.Cache
	metrics *metrics.Metrics
	sched   *scheduler.Scheduler
}

func (e *schedulerEnv) Close() {
	e.sched.Stop()
	_ = e.redis.Close()
	e.db.Close()
}

func runScheduler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	PrintHeader(out, "epimart Scheduler")

	// Initialize dependencies
	senv, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer senv.Close()

	// Start scheduler
	senv.sched.Start()

	var server *api.Server
	if schedulerServe {
		server = newAPIServer(senv.cfg, senv.db, senv.cache, senv.metrics, senv.log)
		go func() {
			if err := server.Start(); err != nil {
				senv.log.WithError(err).Fatal("Failed to start server")
			}
		}()
	}

	PrintSuccess(out, "Scheduler started successfully")
	printJobs(cmd, senv.sched)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	// Wait for interrupt signal
	waitForSignal()

	fmt.Fprintln(out, "Shutting down scheduler...")
	if server != nil {
		if err := shutdownServer(server, senv.log); err != nil {
			return err
		}
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	senv, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer senv.Close()

	// 다음 실행 시각은 cron 시작 후에 계산됨
	senv.sched.Start()
	printJobs(cmd, senv.sched)
	return nil
}

func printJobs(cmd *cobra.Command, sched *scheduler.Scheduler) {
	out := cmd.OutOrStdout()
	stats := sched.GetJobStats()

	widths := []int{16, 16, 20}
	PrintTableHeader(out, []string{"job", "schedule", "next run"}, widths)
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t, ok := sched.NextRun(name); ok && !t.IsZero() {
			next = t.Format("2006-01-02 15:04")
		}
		PrintTableRow(out, []string{name, stats[name].Schedule, next}, widths)
	}
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Running job: %s\n", jobName)

	senv, err := initScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer senv.Close()

	result, err := senv.sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		PrintError(out, fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration.Round(time.Millisecond), result.Error))
		return fmt.Errorf("job %s failed: %s", jobName, result.Error)
	}
	PrintSuccess(out, fmt.Sprintf("%s completed in %s", jobName, result.Duration.Round(time.Millisecond)))
	return nil
}

func initScheduler() (*schedulerEnv, error) {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	rules, err := loadRules(cfg, log)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	// 3. Connect to database
	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 4. Redis cache (disabled → no-op)
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	cache := redis.NewCache(rdb, "epimart", cfg.Redis.CacheTTL)

	// 5. Pipeline
	repo := mart.NewRepository(db.Pool)
	m := metrics.New()
	p, err := pipeline.New(rules, log)
	if err != nil {
		_ = rdb.Close()
		db.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	p.WithStore(repo).WithMetrics(m).WithConcurrency(cfg.Pipeline.Concurrent)

	// 6. Job
	var fetcher jobs.Fetcher
	if !schedulerNoFetch {
		fetcher = s0_ingest.NewFetcher(httputil.New(cfg, log), rules, cfg.Pipeline.DataDir, log)
	}
	loader := s0_ingest.NewLoader(rules, cfg.Pipeline.DataDir, log.Zerolog())

	job := jobs.NewMartRefreshJob(cfg.Pipeline.Schedule, fetcher, loader, p, log).WithCache(cache)
	if rules.Forecast.Horizon > 0 {
		forecaster, err := forecast.New(rules.Forecast.Model, rules.Forecast.Period, log.Zerolog())
		if err != nil {
			_ = rdb.Close()
			db.Close()
			return nil, err
		}
		job.WithForecast(forecast.NewService(forecaster, repo, log.Zerolog()), rules.Forecast.Horizon)
	}

	// 7. Scheduler
	sched := scheduler.New(log)
	if err := sched.AddJob(job); err != nil {
		_ = rdb.Close()
		db.Close()
		return nil, fmt.Errorf("add %s: %w", job.Name(), err)
	}

	return &schedulerEnv{
		cfg:     cfg,
		log:     log,
		db:      db,
		redis:   rdb,
		cache:   cache,
		metrics: m,
		sched:   sched,
	}, nil
}
