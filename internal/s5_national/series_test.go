package s5_national

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/epiweek"
)

func mar(d int) time.Time {
	return time.Date(2021, 3, d, 0, 0, 0, 0, time.UTC)
}

func obs(code string, date time.Time, tot, newCase, totDeath, newDeath float64) contracts.KeyedObservation {
	return contracts.KeyedObservation{
		Key: epiweek.MustDerive(code, date),
		RawObservation: contracts.RawObservation{
			Source:       contracts.SourceCaseDeath,
			Jurisdiction: code,
			Date:         date,
			Measures: map[string]float64{
				contracts.MeasureTotCases: tot,
				contracts.MeasureNewCase:  newCase,
				contracts.MeasureTotDeath: totDeath,
				contracts.MeasureNewDeath: newDeath,
			},
		},
	}
}

func TestBuild_SumsPerDate(t *testing.T) {
	series := Build([]contracts.KeyedObservation{
		obs("CA", mar(1), 100, 10, 5, 1),
		obs("NY", mar(1), 200, 20, 7, 2),
		obs("TX", mar(1), 300, 30, 9, 0),
		obs("CA", mar(2), 112, 12, 5, 0),
	})

	require.Len(t, series, 2)
	assert.Equal(t, mar(1), series[0].Date)
	assert.Equal(t, 60.0, series[0].NewCase)
	assert.Equal(t, 600.0, series[0].TotCases)
	assert.Equal(t, 21.0, series[0].TotDeath)
	assert.Equal(t, 3.0, series[0].NewDeath)
	assert.Equal(t, 3, series[0].ReportingJurisdictions)
	assert.Equal(t, 12.0, series[1].NewCase)
	assert.Equal(t, 1, series[1].ReportingJurisdictions)
}

func TestBuild_ReportingJurisdictionsUseNormalizedCode(t *testing.T) {
	tests := []struct {
		name  string
		codes []string
		want  int
	}{
		{"same code", []string{"CA", "CA"}, 1},
		{"case differs", []string{"ca", "CA"}, 1},
		{"padded", []string{" ny", "NY "}, 1},
		{"distinct", []string{"ca", "NY"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows []contracts.KeyedObservation
			for _, code := range tt.codes {
				rows = append(rows, obs(code, mar(1), 10, 1, 0, 0))
			}

			series := Build(rows)
			require.Len(t, series, 1)
			assert.Equal(t, tt.want, series[0].ReportingJurisdictions)
			assert.Equal(t, 2.0, series[0].NewCase)
		})
	}
}

func TestBuild_ContiguousWithGaps(t *testing.T) {
	// out of order input with Mar 3 and Mar 4 unreported
	series := Build([]contracts.KeyedObservation{
		obs("CA", mar(5), 1, 1, 0, 0),
		obs("CA", mar(1), 1, 1, 0, 0),
		obs("NY", mar(2), 1, 1, 0, 0),
	})

	require.Len(t, series, 5)
	seen := make(map[time.Time]bool)
	for i, row := range series {
		assert.Equal(t, mar(1+i), row.Date, "row %d", i)
		assert.False(t, seen[row.Date], "duplicate date")
		seen[row.Date] = true
	}

	assert.True(t, series[2].Gap)
	assert.True(t, series[3].Gap)
	assert.Equal(t, 0.0, series[2].NewCase)
	assert.Equal(t, 0, series[2].ReportingJurisdictions)
	assert.False(t, series[4].Gap)
	assert.Equal(t, 2, GapDays(series))
}

func TestBuild_NormalizesTimeOfDay(t *testing.T) {
	series := Build([]contracts.KeyedObservation{
		obs("CA", mar(1).Add(9*time.Hour), 1, 4, 0, 0),
		obs("NY", mar(1), 1, 6, 0, 0),
	})

	require.Len(t, series, 1)
	assert.Equal(t, 10.0, series[0].NewCase)
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil))
}

func TestAppendForecast(t *testing.T) {
	series := Build([]contracts.KeyedObservation{
		obs("CA", mar(1), 1, 10, 0, 0),
		obs("CA", mar(3), 1, 30, 0, 0),
	})
	require.Len(t, series, 3)

	points := []contracts.ForecastPoint{
		{Date: mar(5), Value: 50},
		{Date: mar(2), Value: 20},
		{Date: mar(4), Value: 40},
	}

	out, err := AppendForecast(series, points)
	require.NoError(t, err)
	require.Len(t, out, 5)

	// actuals untouched
	assert.Equal(t, 10.0, out[0].NewCase)
	assert.False(t, out[0].Forecast.Valid)
	assert.Equal(t, 30.0, out[2].NewCase)

	// gap row keeps its gap flag, gains only a forecast
	assert.True(t, out[1].Gap)
	assert.Equal(t, contracts.Defined(20), out[1].Forecast)

	assert.True(t, out[3].Projected)
	assert.Equal(t, mar(4), out[3].Date)
	assert.Equal(t, contracts.Defined(40), out[3].Forecast)
	assert.Equal(t, mar(5), out[4].Date)

	// input series is not modified
	assert.Len(t, series, 3)
	assert.False(t, series[1].Forecast.Valid)

	assert.Len(t, Actuals(out), 3)
}

func TestAppendForecast_Errors(t *testing.T) {
	series := Build([]contracts.KeyedObservation{obs("CA", mar(2), 1, 1, 0, 0)})

	_, err := AppendForecast(series, []contracts.ForecastPoint{{Date: mar(5), Value: 1}})
	assert.Error(t, err, "non-contiguous extension")

	_, err = AppendForecast(series, []contracts.ForecastPoint{{Date: mar(1), Value: 1}})
	assert.Error(t, err, "before series start")

	_, err = AppendForecast(series, []contracts.ForecastPoint{{Date: mar(3)}, {Date: mar(3)}})
	assert.Error(t, err, "duplicate")

	_, err = AppendForecast(nil, []contracts.ForecastPoint{{Date: mar(3)}})
	assert.Error(t, err, "empty series")
}
