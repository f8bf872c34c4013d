package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/forecast"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/internal/s5_national"
	"github.com/wonny/epimart/pkg/database"
	"github.com/wonny/epimart/pkg/logger"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "전국 일별 시계열 예측",
	Long: `저장된 전국 일별 시계열의 끝에 예측값을 덧붙입니다.

- 실측 행은 절대 수정하지 않음
- 이전 예측 행은 새 예측으로 교체
- 기본 모델: seasonal_naive (주기 7일)

Example:
  go run ./cmd/epimart forecast --horizon 14
  go run ./cmd/epimart forecast --model naive --horizon 7`,
	RunE: runForecast,
}

var (
	forecastHorizon int
	forecastModel   string
	forecastPeriod  int
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 0, "예측 일수 (기본: 규칙 파일)")
	forecastCmd.Flags().StringVar(&forecastModel, "model", "", "seasonal_naive | naive (기본: 규칙 파일)")
	forecastCmd.Flags().IntVar(&forecastPeriod, "period", 0, "계절 주기 일수 (기본: 규칙 파일)")
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	rules, err := loadRules(cfg, log)
	if err != nil {
		return err
	}

	horizon, model, period := rules.Forecast.Horizon, rules.Forecast.Model, rules.Forecast.Period
	if forecastHorizon > 0 {
		horizon = forecastHorizon
	}
	if forecastModel != "" {
		model = forecastModel
	}
	if forecastPeriod > 0 {
		period = forecastPeriod
	}
	if horizon <= 0 {
		return fmt.Errorf("forecast horizon must be > 0")
	}

	forecaster, err := forecast.New(model, period, log.Zerolog())
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := mart.NewRepository(db.Pool)

	runID := ""
	if run, err := repo.LatestRun(ctx); err == nil {
		runID = run.RunID
	}

	series, err := forecast.NewService(forecaster, repo, log.Zerolog()).Extend(ctx, runID, horizon)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, fmt.Sprintf("Forecast (%s, %d days)", forecaster.Name(), horizon))

	widths := []int{12, 12, 12, 10}
	PrintTableHeader(out, []string{"date", "new_case", "forecast", "kind"}, widths)
	// 마지막 실측 1주 + 예측 구간만 표시
	start := len(s5_national.Actuals(series)) - 7
	if start < 0 {
		start = 0
	}
	for _, row := range series[start:] {
		kind, actual, predicted := "actual", fmt.Sprintf("%.0f", row.NewCase), "-"
		switch {
		case row.Projected:
			kind, actual = "projected", "-"
		case row.Gap:
			kind, actual = "gap", "-"
		}
		if row.Forecast.Valid {
			predicted = fmt.Sprintf("%.0f", row.Forecast.Value)
		}
		PrintTableRow(out, []string{row.Date.Format("2006-01-02"), actual, predicted, kind}, widths)
	}
	PrintSuccess(out, fmt.Sprintf("%d rows stored", len(series)))
	return nil
}
