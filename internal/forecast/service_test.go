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

type memoryNational struct {
	rows  []contracts.NationalDailyRow
	saved []contracts.NationalDailyRow
}

func (m *memoryNational) GetNational(context.Context, time.Time, time.Time) ([]contracts.NationalDailyRow, error) {
	return m.rows, nil
}

func (m *memoryNational) SaveNational(_ context.Context, _ string, rows []contracts.NationalDailyRow) error {
	m.saved = rows
	return nil
}

type fixedForecaster struct {
	points []contracts.ForecastPoint
}

func (f fixedForecaster) Name() string { return "fixed" }

func (f fixedForecaster) Forecast(context.Context, []contracts.NationalDailyRow, int) ([]contracts.ForecastPoint, error) {
	return f.points, nil
}

func TestService_ExtendReplacesOldForecast(t *testing.T) {
	stored := series(1, 2, 3, 4)
	stored[3].Forecast = contracts.Defined(40)
	stored = append(stored, contracts.NationalDailyRow{Date: day(5), Projected: true, Forecast: contracts.Defined(50)})
	store := &memoryNational{rows: stored}

	svc := NewService(NewSeasonalNaive(2, zerolog.Nop()), store, zerolog.Nop())
	extended, err := svc.Extend(context.Background(), "run", 3)
	require.NoError(t, err)

	require.Len(t, extended, 7)
	assert.False(t, extended[3].Forecast.Valid, "stale forecast on an actual day is cleared")
	assert.Equal(t, 4.0, extended[3].NewCase)
	for _, row := range extended[4:] {
		assert.True(t, row.Projected)
	}
	assert.Equal(t, contracts.Defined(3), extended[4].Forecast)
	assert.Equal(t, contracts.Defined(4), extended[5].Forecast)
	assert.Equal(t, extended, store.saved)
}

func TestService_ForecastOnActualDateKeepsActual(t *testing.T) {
	svc := NewService(fixedForecaster{points: []contracts.ForecastPoint{
		{Date: day(2), Value: 100},
		{Date: day(3), Value: 200},
	}}, nil, zerolog.Nop())

	extended, err := svc.ExtendSeries(context.Background(), "run", series(1, 2), 2)
	require.NoError(t, err)
	require.Len(t, extended, 3)
	assert.Equal(t, 2.0, extended[1].NewCase)
	assert.Equal(t, contracts.Defined(100), extended[1].Forecast)
	assert.True(t, extended[2].Projected)
}

func TestService_NonContiguousForecastFails(t *testing.T) {
	svc := NewService(fixedForecaster{points: []contracts.ForecastPoint{{Date: day(9), Value: 1}}}, nil, zerolog.Nop())
	_, err := svc.ExtendSeries(context.Background(), "run", series(1, 2), 1)
	assert.Error(t, err)
}
