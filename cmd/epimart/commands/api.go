package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/epimart/internal/api"
	"github.com/wonny/epimart/internal/api/handlers"
	"github.com/wonny/epimart/internal/mart"
	"github.com/wonny/epimart/pkg/config"
	"github.com/wonny/epimart/pkg/database"
	"github.com/wonny/epimart/pkg/logger"
	"github.com/wonny/epimart/pkg/metrics"
	"github.com/wonny/epimart/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `마트 조회용 REST API 서버를 시작합니다 (읽기 전용).

Endpoints:
  GET  /health                 - Health check
  GET  /metrics                - Prometheus metrics
  GET  /api/mart               - 마트 조회 (?jurisdiction=CA&from=202201&to=202210&limit=100)
  GET  /api/mart/{key}         - 단건 조회 (예: CA202201)
  GET  /api/national           - 전국 일별 시계열 (?from=2022-01-01&to=2022-03-31)
  GET  /api/runs/latest        - 마지막 실행 감사 기록

Example:
  go run ./cmd/epimart api
  go run ./cmd/epimart api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	ctx := context.Background()

	// 3. Connect to database
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Redis cache (disabled → no-op)
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 5. Server
	server := newAPIServer(cfg, db, redis.NewCache(rdb, "epimart", cfg.Redis.CacheTTL), metrics.New(), log)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	out := cmd.OutOrStdout()
	PrintSuccess(out, fmt.Sprintf("Server running on http://localhost:%s", cfg.Port))
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	// Wait for interrupt signal
	waitForSignal()

	return shutdownServer(server, log)
}

// newAPIServer wires repository, cache and metrics into the HTTP server
func newAPIServer(cfg *config.Config, db *database.DB, cache *redis.Cache, m *metrics.Metrics, log *logger.Logger) *api.Server {
	repo := mart.NewRepository(db.Pool)
	martHandler := handlers.NewMartHandler(repo, cache, log)

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = m.Handler()
	}

	router := api.NewRouter(martHandler, db, cfg.MetricsPath, metricsHandler, log)
	return api.New(cfg, log, router)
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
}

func shutdownServer(server *api.Server, log *logger.Logger) error {
	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
