package contracts

import (
	"fmt"
	"time"
)

// Source identifies one of the independently published datasets
type Source string

const (
	SourceVaccination Source = "vaccination"
	SourceCaseDeath   Source = "case_death"
	SourceCapacity    Source = "capacity"
	SourceGeography   Source = "geography"
)

// FactSources returns the three fact sources in join order
func FactSources() []Source {
	return []Source{SourceVaccination, SourceCaseDeath, SourceCapacity}
}

// IsValid reports whether s names a known source
func (s Source) IsValid() bool {
	switch s {
	case SourceVaccination, SourceCaseDeath, SourceCapacity, SourceGeography:
		return true
	}
	return false
}

// Measure names shared by ingestion, rules, reduction and the mart
const (
	// case/death (daily, cumulative-to-date)
	MeasureTotCases = "tot_cases"
	MeasureNewCase  = "new_case"
	MeasureTotDeath = "tot_death"
	MeasureNewDeath = "new_death"

	// vaccination (daily, cumulative-to-date)
	MeasureDistributed         = "distributed"
	MeasureAdministered        = "administered"
	MeasureAdministeredDose1   = "administered_dose1"
	MeasureSeriesComplete      = "series_complete"
	MeasureAdministeredPfizer  = "administered_pfizer"
	MeasureAdministeredModerna = "administered_moderna"
	MeasureAdministeredJanssen = "administered_janssen"
	MeasureAdministeredNovavax = "administered_novavax"
	MeasureAdministeredUnknown = "administered_unk_manuf"

	// capacity (per facility, 7-day sums)
	MeasureTotalBeds         = "total_beds"
	MeasureInpatientBedsUsed = "inpatient_beds_used"
	MeasureTotalICUBeds      = "total_icu_beds"
	MeasureICUBedsUsed       = "icu_beds_used"
)

// Key columns every observation table must carry
const (
	ColumnJurisdiction = "jurisdiction"
	ColumnDate         = "date"
	ColumnFacility     = "facility"
)

// RawObservation is one reported measurement tied to a jurisdiction and a date.
// A measure missing from Measures is null.
type RawObservation struct {
	Source       Source
	Jurisdiction string
	Date         time.Time
	Facility     string // capacity rows only
	Measures     map[string]float64
	Line         int // 1-based source line, for diagnostics
}

// Value returns the measure and whether it was reported
func (o RawObservation) Value(name string) (float64, bool) {
	v, ok := o.Measures[name]
	return v, ok
}

// ObservationTable is the hand-off from an ingestion adapter to the core
type ObservationTable struct {
	Source  Source
	Columns []string // canonical column names the adapter saw
	Rows    []RawObservation
}

// HasColumn reports whether the adapter saw the canonical column
func (t ObservationTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// JurisdictionWeekKey is the (jurisdiction, ISO year, ISO week) join key.
// Build it with epiweek.Derive so numbering stays identical across sources.
type JurisdictionWeekKey struct {
	Jurisdiction string `json:"jurisdiction"`
	Year         int    `json:"iso_year"`
	Week         int    `json:"iso_week"`
}

// String serializes the key canonically: CODE + YYYY + WW
func (k JurisdictionWeekKey) String() string {
	return fmt.Sprintf("%s%04d%02d", k.Jurisdiction, k.Year, k.Week)
}

// IsZero reports whether the key is unset
func (k JurisdictionWeekKey) IsZero() bool {
	return k.Jurisdiction == "" && k.Year == 0 && k.Week == 0
}

// KeyedObservation is a RawObservation with its derived join key attached
type KeyedObservation struct {
	Key JurisdictionWeekKey
	RawObservation
}

// GeoPoint is the static geography attached at the final join stage
type GeoPoint struct {
	Jurisdiction string  `json:"jurisdiction"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// GeoTable is an in-memory GeographyLookup keyed by jurisdiction code
type GeoTable map[string]GeoPoint

// Lookup returns the point for a jurisdiction code
func (g GeoTable) Lookup(jurisdiction string) (GeoPoint, bool) {
	p, ok := g[jurisdiction]
	return p, ok
}

// Len returns the number of jurisdictions
func (g GeoTable) Len() int {
	return len(g)
}
