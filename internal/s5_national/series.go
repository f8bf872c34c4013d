package s5_national

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/epimart/internal/contracts"
)

// dayOf truncates to the calendar date in UTC
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Build groups filtered daily case/death rows by date and sums them across jurisdictions.
// Every calendar date between the first and last input date gets exactly one row;
// dates nobody reported are explicit gap rows.
// ⭐ SSOT: S1 → S5 전국 일별 시계열 (주간 경로와 독립)
func Build(observations []contracts.KeyedObservation) []contracts.NationalDailyRow {
	if len(observations) == 0 {
		return []contracts.NationalDailyRow{}
	}

	type bucket struct {
		row           contracts.NationalDailyRow
		jurisdictions map[string]struct{}
	}

	byDate := make(map[time.Time]*bucket)
	first, last := dayOf(observations[0].Date), dayOf(observations[0].Date)

	for _, obs := range observations {
		d := dayOf(obs.Date)
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}

		b, ok := byDate[d]
		if !ok {
			b = &bucket{
				row:           contracts.NationalDailyRow{Date: d},
				jurisdictions: make(map[string]struct{}),
			}
			byDate[d] = b
		}
		b.row.TotCases += obs.Measures[contracts.MeasureTotCases]
		b.row.NewCase += obs.Measures[contracts.MeasureNewCase]
		b.row.TotDeath += obs.Measures[contracts.MeasureTotDeath]
		b.row.NewDeath += obs.Measures[contracts.MeasureNewDeath]
		// 정규화된 키 코드 기준 (ca/CA 중복 방지)
		b.jurisdictions[obs.Key.Jurisdiction] = struct{}{}
	}

	// 빈 날짜도 행으로 채움 (연속 일별 인덱스)
	days := int(last.Sub(first).Hours()/24) + 1
	series := make([]contracts.NationalDailyRow, 0, days)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		b, ok := byDate[d]
		if !ok {
			series = append(series, contracts.NationalDailyRow{Date: d, Gap: true})
			continue
		}
		b.row.ReportingJurisdictions = len(b.jurisdictions)
		series = append(series, b.row)
	}

	return series
}

// GapDays counts explicit gap rows
func GapDays(series []contracts.NationalDailyRow) int {
	n := 0
	for _, row := range series {
		if row.Gap {
			n++
		}
	}
	return n
}

// AppendForecast attaches forecast values to the series by date and returns a new series.
// Points inside the series set only the forecast column; points past the end add
// projected rows, which must continue the series day by day. Actual values are never
// touched, rows are never reordered and missing dates are never interpolated.
func AppendForecast(series []contracts.NationalDailyRow, points []contracts.ForecastPoint) ([]contracts.NationalDailyRow, error) {
	out := make([]contracts.NationalDailyRow, len(series), len(series)+len(points))
	copy(out, series)

	sorted := make([]contracts.ForecastPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	index := make(map[time.Time]int, len(out))
	for i, row := range out {
		index[dayOf(row.Date)] = i
	}

	seen := make(map[time.Time]struct{}, len(sorted))
	for _, p := range sorted {
		d := dayOf(p.Date)
		if _, dup := seen[d]; dup {
			return nil, fmt.Errorf("duplicate forecast for %s", d.Format("2006-01-02"))
		}
		seen[d] = struct{}{}

		if i, ok := index[d]; ok {
			out[i].Forecast = contracts.Defined(p.Value)
			continue
		}

		if len(out) == 0 {
			return nil, fmt.Errorf("forecast for %s on an empty series", d.Format("2006-01-02"))
		}
		lastDay := dayOf(out[len(out)-1].Date)
		if d.Before(lastDay) {
			return nil, fmt.Errorf("forecast for %s falls outside the series", d.Format("2006-01-02"))
		}
		if !d.Equal(lastDay.AddDate(0, 0, 1)) {
			return nil, fmt.Errorf("forecast for %s is not contiguous with %s", d.Format("2006-01-02"), lastDay.Format("2006-01-02"))
		}

		out = append(out, contracts.NationalDailyRow{
			Date:      d,
			Projected: true,
			Forecast:  contracts.Defined(p.Value),
		})
		index[d] = len(out) - 1
	}

	return out, nil
}

// Actuals returns the rows that carry reported values (no projected rows)
func Actuals(series []contracts.NationalDailyRow) []contracts.NationalDailyRow {
	out := make([]contracts.NationalDailyRow, 0, len(series))
	for _, row := range series {
		if !row.Projected {
			out = append(out, row)
		}
	}
	return out
}
