package contracts

import "context"

// SourceAdapter hands one parsed source table to the core (S0)
// ⭐ SSOT: ingestion interface, the core never parses files itself
type SourceAdapter interface {
	Source() Source
	Load(ctx context.Context) (*ObservationTable, error)
}

// GeographyLookup is the static jurisdiction → place mapping used by the last join
type GeographyLookup interface {
	Lookup(jurisdiction string) (GeoPoint, bool)
	Len() int
}

// Forecaster is the external forecasting collaborator
// It returns date-aligned points; the core only appends them to the series.
type Forecaster interface {
	Name() string
	Forecast(ctx context.Context, series []NationalDailyRow, horizon int) ([]ForecastPoint, error)
}

// MartStore persists pipeline outputs
// Publish stores the run, its mart and its national series atomically and
// replaces whatever an earlier run left behind.
type MartStore interface {
	Publish(ctx context.Context, run *PipelineRun, records []UnifiedMartRecord, national []NationalDailyRow) error
}
