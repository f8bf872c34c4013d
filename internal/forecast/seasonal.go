package forecast

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/s5_national"
)

// Model names accepted by New
const (
	ModelSeasonalNaive = "seasonal_naive"
	ModelNaive         = "naive"
)

// SeasonalNaive repeats the last observed season of new_case.
// Gap days never seed a forecast; the same slot one season earlier is used instead.
type SeasonalNaive struct {
	name   string
	period int
	log    zerolog.Logger
}

// NewSeasonalNaive creates a seasonal-naive forecaster (period 7 = weekly reporting cycle)
func NewSeasonalNaive(period int, log zerolog.Logger) *SeasonalNaive {
	if period < 1 {
		period = 1
	}
	return &SeasonalNaive{
		name:   ModelSeasonalNaive,
		period: period,
		log:    log.With().Str("component", "forecast.seasonal_naive").Logger(),
	}
}

// New returns the forecaster for a configured model name
func New(model string, period int, log zerolog.Logger) (contracts.Forecaster, error) {
	switch model {
	case ModelSeasonalNaive:
		return NewSeasonalNaive(period, log), nil
	case ModelNaive:
		f := NewSeasonalNaive(1, log)
		f.name = ModelNaive
		return f, nil
	}
	return nil, fmt.Errorf("unknown forecast model %q", model)
}

// Name returns the model name
func (f *SeasonalNaive) Name() string {
	return f.name
}

// Forecast returns horizon date-aligned points following the last actual date
func (f *SeasonalNaive) Forecast(ctx context.Context, series []contracts.NationalDailyRow, horizon int) ([]contracts.ForecastPoint, error) {
	if horizon <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	actuals := s5_national.Actuals(series)
	if len(actuals) < f.period {
		return nil, fmt.Errorf("%s needs at least %d days, series has %d", f.name, f.period, len(actuals))
	}

	last := len(actuals) - 1
	lastDate := actuals[last].Date
	points := make([]contracts.ForecastPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		// t+h ← 마지막 시즌의 같은 위치
		slot := last - f.period + 1 + (h-1)%f.period
		for slot >= 0 && actuals[slot].Gap {
			slot -= f.period
		}
		if slot < 0 {
			return nil, fmt.Errorf("%s: no reported value for horizon %d", f.name, h)
		}
		points = append(points, contracts.ForecastPoint{
			Date:  lastDate.AddDate(0, 0, h),
			Value: actuals[slot].NewCase,
		})
	}

	f.log.Debug().
		Int("horizon", horizon).
		Int("period", f.period).
		Time("from", points[0].Date).
		Msg("forecast generated")

	return points, nil
}
