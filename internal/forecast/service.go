package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/s5_national"
)

// NationalStore reads and writes the stored national series
type NationalStore interface {
	GetNational(ctx context.Context, from, to time.Time) ([]contracts.NationalDailyRow, error)
	SaveNational(ctx context.Context, runID string, rows []contracts.NationalDailyRow) error
}

// Service fills the forecast column of the stored national series
type Service struct {
	forecaster contracts.Forecaster
	store      NationalStore
	log        zerolog.Logger
}

// NewService creates a new forecast service
func NewService(forecaster contracts.Forecaster, store NationalStore, log zerolog.Logger) *Service {
	return &Service{
		forecaster: forecaster,
		store:      store,
		log:        log.With().Str("component", "forecast.service").Logger(),
	}
}

// Extend forecasts horizon days past the series and stores the result.
// Earlier forecasts are discarded; actual values are never modified.
func (s *Service) Extend(ctx context.Context, runID string, horizon int) ([]contracts.NationalDailyRow, error) {
	stored, err := s.store.GetNational(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load national series: %w", err)
	}
	return s.extend(ctx, runID, stored, horizon)
}

// ExtendSeries forecasts an in-memory series and stores the result
func (s *Service) ExtendSeries(ctx context.Context, runID string, series []contracts.NationalDailyRow, horizon int) ([]contracts.NationalDailyRow, error) {
	return s.extend(ctx, runID, series, horizon)
}

func (s *Service) extend(ctx context.Context, runID string, series []contracts.NationalDailyRow, horizon int) ([]contracts.NationalDailyRow, error) {
	actuals := s5_national.Actuals(series)
	for i := range actuals {
		actuals[i].Forecast = contracts.Undefined
	}

	points, err := s.forecaster.Forecast(ctx, actuals, horizon)
	if err != nil {
		return nil, fmt.Errorf("%s forecast: %w", s.forecaster.Name(), err)
	}

	extended, err := s5_national.AppendForecast(actuals, points)
	if err != nil {
		return nil, fmt.Errorf("append forecast: %w", err)
	}

	if s.store != nil {
		if err := s.store.SaveNational(ctx, runID, extended); err != nil {
			return nil, fmt.Errorf("save forecast: %w", err)
		}
	}

	s.log.Info().
		Str("model", s.forecaster.Name()).
		Int("actual_days", len(actuals)).
		Int("projected_days", len(extended)-len(actuals)).
		Msg("national series extended")
	return extended, nil
}
