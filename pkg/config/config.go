package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Pipeline
	Pipeline PipelineConfig

	// Source downloads
	Sources SourcesConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPath    string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration // API 응답 캐시
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PipelineConfig holds mart pipeline runtime settings
type PipelineConfig struct {
	RulesFile   string  // empty = embedded default rules
	DataDir     string  // downloaded CSV snapshots
	OutDir      string  // JSON exports
	MaxDropRate float64 // overrides coverage.max_drop_rate when > 0
	Enforce     bool
	Concurrent  bool   // run per-source filter+reduce concurrently
	Horizon     int    // forecast horizon override (days), 0 = rules file
	Schedule    string // mart_refresh cron spec (with seconds)
}

// SourcesConfig holds fetch settings for source snapshots
type SourcesConfig struct {
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
	MaxRetries    int
	UserAgent     string
	AppToken      string // Socrata app token (optional)
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "10m"),
		},

		// Pipeline
		Pipeline: PipelineConfig{
			RulesFile:   getEnv("PIPELINE_RULES", ""),
			DataDir:     getEnv("DATA_DIR", "data"),
			OutDir:      getEnv("OUT_DIR", "out"),
			MaxDropRate: getEnvAsFloat("MAX_DROP_RATE", 0),
			Enforce:     getEnvAsBool("ENFORCE_COVERAGE", false),
			Concurrent:  getEnvAsBool("PIPELINE_CONCURRENT", true),
			Horizon:     getEnvAsInt("FORECAST_HORIZON", 0),
			Schedule:    getEnv("REFRESH_SCHEDULE", "0 0 6 * * 4"), // 목 06:00
		},

		Sources: SourcesConfig{
			RatePerSecond: getEnvAsFloat("FETCH_RATE", 2),
			Burst:         getEnvAsInt("FETCH_BURST", 1),
			Timeout:       getEnvAsDuration("FETCH_TIMEOUT", "5m"),
			MaxRetries:    getEnvAsInt("FETCH_MAX_RETRIES", 3),
			UserAgent:     getEnv("FETCH_USER_AGENT", "epimart/1.0"),
			AppToken:      getEnv("SOCRATA_APP_TOKEN", ""),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// RequireDatabase fails when no DATABASE_URL is configured.
// Only commands that persist call it, so dry runs work offline.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsProduction reports whether ENV=production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.MaxDropRate < 0 || c.Pipeline.MaxDropRate > 1 {
		return fmt.Errorf("MAX_DROP_RATE must be in range [0, 1]")
	}

	if c.Sources.RatePerSecond <= 0 {
		return fmt.Errorf("FETCH_RATE must be > 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
