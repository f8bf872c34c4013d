package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/pkg/config"
)

func TestSchema_Embedded(t *testing.T) {
	schema := Schema()
	for _, table := range []string{"mart.runs", "mart.weekly", "mart.national_daily"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	// 파생 지표는 NULL 허용 (분모 0)
	assert.True(t, strings.Contains(schema, "icu_occupancy_pct       DOUBLE PRECISION,"))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "://not a url"}}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_Integration(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migration must be idempotent")

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Greater(t, status.Stats.MaxConns, int32(0))
}
