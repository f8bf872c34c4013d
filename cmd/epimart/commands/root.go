package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/pipelineconfig"
	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/logger"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
	rulesFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "epimart",
	Short: "epimart - COVID 주간 역학 마트 엔진",
	Long: `epimart Unified CLI

CDC 원천 CSV(백신, 확진/사망, 병상)를 관할지역-ISO주 단위 마트로 통합.
S0 수집 → S1 필터 → S2 주간 축약 → S3 조인 → S4 파생지표 → S5 전국 일별 시계열.

Usage:
  go run ./cmd/epimart [command]

Examples:
  go run ./cmd/epimart fetch
  go run ./cmd/epimart run --dry-run --out -
  go run ./cmd/epimart api
  go run ./cmd/epimart scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "pipeline rules YAML (default: PIPELINE_RULES or embedded rules)")
}

// loadConfig applies the global flags on top of the environment
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := godotenv.Overload(configFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", configFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if rulesFile != "" {
		cfg.Pipeline.RulesFile = rulesFile
	}
	return cfg, nil
}

// loadRules reads the pipeline rules and logs non-fatal warnings
func loadRules(cfg *config.Config, log *logger.Logger) (*pipelineconfig.Config, error) {
	rules, _, err := pipelineconfig.LoadOrDefault(cfg.Pipeline.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	for _, w := range pipelineconfig.Warn(rules) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	// CLI/env overrides
	if cfg.Pipeline.MaxDropRate > 0 {
		rules.Coverage.MaxDropRate = cfg.Pipeline.MaxDropRate
	}
	if cfg.Pipeline.Enforce {
		rules.Coverage.Enforce = true
	}
	if cfg.Pipeline.Horizon > 0 {
		rules.Forecast.Horizon = cfg.Pipeline.Horizon
	}
	return rules, nil
}
