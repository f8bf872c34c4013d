package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/forecast"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/internal/pipeline"
	"github.com/wonny/epimart/internal/quality"
	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/database"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/metrics"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "마트 파이프라인 실행 (S0 → S5)",
	Long: `데이터 디렉터리의 CSV 스냅샷으로 마트를 생성합니다.

이 명령어는:
- S0 세 원천 CSV + 지리 테이블 로드
- S1 필터 → S2 주간 축약 → S3 조인 → S4 파생지표 → S5 전국 시계열
- 커버리지 게이트 평가 (--max-drop-rate, --enforce)
- 성공 시에만 DB 저장 (--dry-run이면 저장 안 함)
- JSON 내보내기 (--out, "-"는 stdout)

Example:
  go run ./cmd/epimart run --dry-run --out -
  go run ./cmd/epimart run --max-drop-rate 0.05 --enforce`,
	RunE: runPipeline,
}

var (
	runDryRun      bool
	runOut         string
	runDataDir     string
	runMaxDropRate float64
	runEnforce     bool
	runSequential  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "DB 저장 없이 실행")
	runCmd.Flags().StringVar(&runOut, "out", "", `JSON 출력 경로 ("-" = stdout, 기본: OUT_DIR/mart.json)`)
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "CSV 스냅샷 디렉터리 (기본: DATA_DIR)")
	runCmd.Flags().Float64Var(&runMaxDropRate, "max-drop-rate", 0, "조인 단계별 최대 손실률 (0 = 관측만)")
	runCmd.Flags().BoolVar(&runEnforce, "enforce", false, "임계값 초과 시 실행 실패")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "소스별 S1+S2를 순차 실행")
}

// martExport is the JSON document written by --out
type martExport struct {
	Run      *contracts.PipelineRun        `json:"run"`
	Mart     []contracts.UnifiedMartRecord `json:"mart"`
	National []contracts.NationalDailyRow  `json:"national"`
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDataDir != "" {
		cfg.Pipeline.DataDir = runDataDir
	}
	if cmd.Flags().Changed("max-drop-rate") {
		cfg.Pipeline.MaxDropRate = runMaxDropRate
	}
	if runEnforce {
		cfg.Pipeline.Enforce = true
	}
	if runSequential {
		cfg.Pipeline.Concurrent = false
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 요약은 JSON이 stdout으로 나가면 stderr로
	summary := cmd.OutOrStdout()
	if runOut == "-" {
		summary = cmd.ErrOrStderr()
	}

	rules, err := loadRules(cfg, log)
	if err != nil {
		return err
	}

	p, err := pipeline.New(rules, log)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	p.WithConcurrency(cfg.Pipeline.Concurrent).WithMetrics(metrics.New())
	// --max-drop-rate 0은 규칙 파일 임계값을 끄고 관측만
	if cmd.Flags().Changed("max-drop-rate") {
		p.WithCoverage(quality.Config{
			MaxDropRate: runMaxDropRate,
			Enforce:     rules.Coverage.Enforce,
		})
	}

	var store *mart.Repository
	if !runDryRun {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		store = mart.NewRepository(db.Pool)
		p.WithStore(store)
	}

	snap, err := s0_ingest.NewLoader(rules, cfg.Pipeline.DataDir, log.Zerolog()).Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	result, err := p.Run(ctx, snap)
	if result != nil && result.Run != nil {
		PrintRunSummary(summary, result.Run)
	}
	if err != nil {
		PrintError(summary, err.Error())
		return err
	}

	national := result.National
	if rules.Forecast.Horizon > 0 {
		national, err = extendForecast(ctx, rules.Forecast.Model, rules.Forecast.Period, rules.Forecast.Horizon, store, result, log)
		if err != nil {
			// 예측 실패는 마트 결과를 무효화하지 않음
			log.WithError(err).Warn("Forecast skipped")
			PrintWarning(summary, fmt.Sprintf("forecast skipped: %v", err))
			national = result.National
		}
	}

	if err := writeExport(cfg, runOut, martExport{Run: result.Run, Mart: result.Mart, National: national}, cmd.OutOrStdout()); err != nil {
		return err
	}

	if runDryRun {
		PrintSuccess(summary, "Dry run completed (nothing persisted)")
	} else {
		PrintSuccess(summary, fmt.Sprintf("Run %s persisted", result.Run.RunID))
	}
	return nil
}

// extendForecast appends the baseline forecast to the fresh national series
func extendForecast(ctx context.Context, model string, period, horizon int, store *mart.Repository, result *pipeline.Result, log *logger.Logger) ([]contracts.NationalDailyRow, error) {
	forecaster, err := forecast.New(model, period, log.Zerolog())
	if err != nil {
		return nil, err
	}

	// typed nil을 인터페이스에 넣지 않도록 분기
	var nationalStore forecast.NationalStore
	if store != nil {
		nationalStore = store
	}

	return forecast.NewService(forecaster, nationalStore, log.Zerolog()).
		ExtendSeries(ctx, result.Run.RunID, result.National, horizon)
}

// writeExport writes the run document as indented JSON
func writeExport(cfg *config.Config, out string, doc martExport, stdout io.Writer) error {
	if out == "-" {
		return encodeJSON(stdout, doc)
	}

	if out == "" {
		out = filepath.Join(cfg.Pipeline.OutDir, "mart.json")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := encodeJSON(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
