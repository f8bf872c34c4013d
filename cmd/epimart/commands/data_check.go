package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/pkg/database"
)

// dataCheckCmd represents the data check command
var dataCheckCmd = &cobra.Command{
	Use:   "data-check",
	Short: "DB 마트 상태 확인",
	Long: `저장된 마트의 관할지역별 커버리지와 마지막 실행 기록을 확인합니다.

확인 항목:
- 관할지역별 주 수, 첫/마지막 키
- 정의되지 않은 파생지표 (ICU 점유율, 치명률) 개수
- 마지막 실행의 조인 손실률과 커버리지 판정

Example:
  go run ./cmd/epimart data-check`,
	RunE: runDataCheck,
}

func init() {
	rootCmd.AddCommand(dataCheckCmd)
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	// 2. Connect to database
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := mart.NewRepository(db.Pool)
	out := cmd.OutOrStdout()

	PrintHeader(out, "📊 마트 커버리지 (mart.weekly)")
	coverage, err := repo.Coverage(ctx)
	if err != nil {
		return err
	}
	printCoverage(out, coverage)

	run, err := repo.LatestRun(ctx)
	if errors.Is(err, mart.ErrNotFound) {
		PrintWarning(out, "실행 기록 없음 (mart.runs)")
		return nil
	}
	if err != nil {
		return err
	}
	PrintRunSummary(out, run)
	return nil
}

func printCoverage(w io.Writer, coverage []mart.JurisdictionCoverage) {
	if len(coverage) == 0 {
		PrintWarning(w, "데이터 없음 - epimart run을 먼저 실행하세요")
		return
	}

	widths := []int{6, 6, 12, 12, 8, 8}
	PrintTableHeader(w, []string{"code", "weeks", "first", "last", "icu=∅", "cfr=∅"}, widths)

	weeks := 0
	for _, c := range coverage {
		weeks += c.Weeks
		PrintTableRow(w, []string{
			c.Jurisdiction,
			fmt.Sprint(c.Weeks),
			c.FirstKey,
			c.LastKey,
			fmt.Sprint(c.UndefinedICU),
			fmt.Sprint(c.UndefinedCFR),
		}, widths)
	}
	PrintSeparator(w)
	fmt.Fprintf(w, "  전체: %d개 관할지역, %d 주-레코드\n", len(coverage), weeks)
}
