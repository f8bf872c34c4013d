package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/s0_ingest"
	"github.com/wonny/epimart/pkg/httputil"
	"github.com/wonny/epimart/pkg/logger"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "원천 CSV 스냅샷 다운로드",
	Long: `규칙 파일에 선언된 URL에서 세 원천 CSV와 지리 테이블을 내려받습니다.

- 다운로드는 임시 파일에 쓴 뒤 rename (실패 시 이전 스냅샷 유지)
- 요청 속도 제한: FETCH_RATE / FETCH_BURST
- Socrata 토큰: SOCRATA_APP_TOKEN

Example:
  go run ./cmd/epimart fetch
  go run ./cmd/epimart fetch --data-dir /tmp/epimart`,
	RunE: runFetch,
}

var fetchDataDir string

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchDataDir, "data-dir", "", "저장 디렉터리 (기본: DATA_DIR)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchDataDir != "" {
		cfg.Pipeline.DataDir = fetchDataDir
	}

	log := logger.New(cfg)
	out := cmd.OutOrStdout()

	rules, err := loadRules(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintHeader(out, "Source Fetch")
	fetcher := s0_ingest.NewFetcher(httputil.New(cfg, log), rules, cfg.Pipeline.DataDir, log)
	results, fetchErr := fetcher.FetchAll(ctx)

	widths := []int{12, 48, 12, 8}
	PrintTableHeader(out, []string{"source", "path", "bytes", "status"}, widths)
	for _, r := range results {
		status := "ok"
		if r.Error != nil {
			status = "failed"
		}
		PrintTableRow(out, []string{string(r.Source), r.Path, fmt.Sprint(r.Bytes), status}, widths)
	}
	PrintSeparator(out)

	if fetchErr != nil {
		PrintError(out, fetchErr.Error())
		return fetchErr
	}
	PrintSuccess(out, fmt.Sprintf("%d snapshots saved to %s", len(results), cfg.Pipeline.DataDir))
	return nil
}
