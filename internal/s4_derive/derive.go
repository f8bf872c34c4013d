package s4_derive

import (
	"math"

	"github.com/wonny/epimart/internal/contracts"
)

// Ratio returns numerator/denominator×100, undefined when the denominator is zero
// or when either side (or the result) is not a finite number
func Ratio(numerator, denominator float64) contracts.Metric {
	if denominator == 0 || !finite(numerator) || !finite(denominator) {
		return contracts.Undefined
	}
	v := numerator / denominator * 100
	if !finite(v) {
		return contracts.Undefined
	}
	return contracts.Defined(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Compute returns a copy of records with the derived percentages set.
// Each metric uses only its own row's columns.
// ⭐ SSOT: S3 → S4 파생 지표
func Compute(records []contracts.UnifiedMartRecord) []contracts.UnifiedMartRecord {
	out := make([]contracts.UnifiedMartRecord, len(records))
	for i, rec := range records {
		rec.ICUOccupancyPct = Ratio(rec.ICUBedsUsed, rec.TotalICUBeds)
		rec.InpatientOccupancyPct = Ratio(rec.InpatientBedsUsed, rec.TotalBeds)
		rec.CaseFatalityPct = Ratio(rec.TotDeath, rec.TotCases)
		out[i] = rec
	}
	return out
}

// UndefinedCounts counts rows per metric whose denominator was zero
func UndefinedCounts(records []contracts.UnifiedMartRecord) map[string]int {
	counts := map[string]int{
		"icu_occupancy_pct":       0,
		"inpatient_occupancy_pct": 0,
		"case_fatality_pct":       0,
	}
	for _, rec := range records {
		if !rec.ICUOccupancyPct.Valid {
			counts["icu_occupancy_pct"]++
		}
		if !rec.InpatientOccupancyPct.Valid {
			counts["inpatient_occupancy_pct"]++
		}
		if !rec.CaseFatalityPct.Valid {
			counts["case_fatality_pct"]++
		}
	}
	return counts
}
