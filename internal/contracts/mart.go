package contracts

import (
	"bytes"
	"encoding/json"
	"time"
)

// WeeklyFact is the single reduced row per key within one source table.
// Measures never hold nulls: unreported measures are resolved to 0.
type WeeklyFact struct {
	Key          JurisdictionWeekKey `json:"key"`
	Source       Source              `json:"source"`
	Date         time.Time           `json:"date"`         // latest calendar date in the bucket
	Contributors int                 `json:"contributors"` // rows collapsed into this fact
	Measures     map[string]float64  `json:"measures"`
}

// Measure returns a measure value, 0 when absent
func (f WeeklyFact) Measure(name string) float64 {
	return f.Measures[name]
}

// Metric is a derived value with an explicit undefined marker.
// Undefined metrics serialize as JSON null.
type Metric struct {
	Value float64
	Valid bool
}

// Defined builds a valid metric
func Defined(v float64) Metric {
	return Metric{Value: v, Valid: true}
}

// Undefined is the marker for metrics with a zero denominator
var Undefined = Metric{}

// MarshalJSON encodes undefined metrics as null
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null into an undefined metric
func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Defined(v)
	return nil
}

// Ptr returns the value as a nullable pointer (nil when undefined)
func (m Metric) Ptr() *float64 {
	if !m.Valid {
		return nil
	}
	v := m.Value
	return &v
}

// MetricFromPtr is the inverse of Ptr
func MetricFromPtr(p *float64) Metric {
	if p == nil {
		return Undefined
	}
	return Defined(*p)
}

// UnifiedMartRecord is one jurisdiction-week row present in every joined source
type UnifiedMartRecord struct {
	Key          string    `json:"key"`
	Jurisdiction string    `json:"jurisdiction"`
	Date         time.Time `json:"date"`
	Year         int       `json:"iso_year"`
	Week         int       `json:"week"`
	WeekStart    time.Time `json:"week_start"` // Monday of the ISO week

	// case/death
	TotCases float64 `json:"tot_cases"`
	NewCase  float64 `json:"new_case"`
	TotDeath float64 `json:"tot_death"`
	NewDeath float64 `json:"new_death"`

	// vaccination
	VaccinationDate     time.Time `json:"vaccination_date"`
	Distributed         float64   `json:"distributed"`
	Administered        float64   `json:"administered"`
	AdministeredDose1   float64   `json:"administered_dose1"`
	SeriesComplete      float64   `json:"series_complete"`
	AdministeredPfizer  float64   `json:"administered_pfizer"`
	AdministeredModerna float64   `json:"administered_moderna"`
	AdministeredJanssen float64   `json:"administered_janssen"`
	AdministeredNovavax float64   `json:"administered_novavax"`
	AdministeredUnknown float64   `json:"administered_unk_manuf"`

	// capacity (state totals of facility 7-day sums)
	TotalBeds           float64 `json:"total_beds"`
	InpatientBedsUsed   float64 `json:"inpatient_beds_used"`
	TotalICUBeds        float64 `json:"total_icu_beds"`
	ICUBedsUsed         float64 `json:"icu_beds_used"`
	ReportingFacilities int     `json:"reporting_facilities"`

	// geography
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// derived
	ICUOccupancyPct       Metric `json:"icu_occupancy_pct"`
	InpatientOccupancyPct Metric `json:"inpatient_occupancy_pct"`
	CaseFatalityPct       Metric `json:"case_fatality_pct"`
}

// NationalDailyRow is one calendar date of the cross-jurisdiction series
type NationalDailyRow struct {
	Date                   time.Time `json:"date"`
	TotCases               float64   `json:"tot_cases"`
	NewCase                float64   `json:"new_case"`
	TotDeath               float64   `json:"tot_death"`
	NewDeath               float64   `json:"new_death"`
	ReportingJurisdictions int       `json:"reporting_jurisdictions"`
	Gap                    bool      `json:"gap"`       // no jurisdiction reported this date
	Projected              bool      `json:"projected"` // row exists only to carry a forecast
	Forecast               Metric    `json:"forecast_new_case"`
}

// ForecastPoint is one date-aligned value returned by a forecasting collaborator
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
