package logger_test

import (
	"os"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/logger"
)

// Example shows the stage-tagged logging used by the pipeline
func Example() {
	cfg := &config.Config{Env: "development", LogLevel: "info", LogFormat: "console"}
	log := logger.NewWithWriter(cfg, os.Stderr)

	stageLog := log.WithRun("3f1c").WithStage(contracts.StageReduce, contracts.SourceCaseDeath)
	stageLog.Infof("reduced %d rows into %d keys", 1200, 180)
}
