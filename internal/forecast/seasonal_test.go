package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC)
}

// series returns one row per value starting Jan 1; negative values are gap days
func series(values ...float64) []contracts.NationalDailyRow {
	rows := make([]contracts.NationalDailyRow, len(values))
	for i, v := range values {
		rows[i] = contracts.NationalDailyRow{Date: day(i + 1), NewCase: v}
		if v < 0 {
			rows[i] = contracts.NationalDailyRow{Date: day(i + 1), Gap: true}
		}
	}
	return rows
}

func TestSeasonalNaive_RepeatsLastSeason(t *testing.T) {
	f := NewSeasonalNaive(3, zerolog.Nop())
	points, err := f.Forecast(context.Background(), series(1, 2, 3, 10, 20, 30), 5)
	require.NoError(t, err)

	require.Len(t, points, 5)
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	assert.Equal(t, []float64{10, 20, 30, 10, 20}, values)
	assert.Equal(t, day(7), points[0].Date)
	assert.Equal(t, day(11), points[4].Date)
}

func TestSeasonalNaive_SkipsGapDays(t *testing.T) {
	f := NewSeasonalNaive(2, zerolog.Nop())
	points, err := f.Forecast(context.Background(), series(5, 6, -1, 8), 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, points[0].Value, "gap slot falls back one season")
	assert.Equal(t, 8.0, points[1].Value)
}

func TestSeasonalNaive_IgnoresProjectedRows(t *testing.T) {
	rows := series(1, 2)
	rows = append(rows, contracts.NationalDailyRow{Date: day(3), Projected: true, Forecast: contracts.Defined(99)})

	points, err := NewSeasonalNaive(1, zerolog.Nop()).Forecast(context.Background(), rows, 1)
	require.NoError(t, err)
	assert.Equal(t, day(3), points[0].Date)
	assert.Equal(t, 2.0, points[0].Value)
}

func TestSeasonalNaive_Errors(t *testing.T) {
	f := NewSeasonalNaive(7, zerolog.Nop())

	_, err := f.Forecast(context.Background(), series(1, 2, 3), 3)
	assert.Error(t, err, "shorter than one season")

	_, err = NewSeasonalNaive(1, zerolog.Nop()).Forecast(context.Background(), series(-1), 1)
	assert.Error(t, err, "only gaps")

	points, err := f.Forecast(context.Background(), nil, 0)
	assert.NoError(t, err)
	assert.Empty(t, points)
}

func TestNew(t *testing.T) {
	f, err := New(ModelSeasonalNaive, 7, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ModelSeasonalNaive, f.Name())

	f, err = New(ModelNaive, 7, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, ModelNaive, f.Name())

	_, err = New("arima", 7, zerolog.Nop())
	assert.Error(t, err)
}
