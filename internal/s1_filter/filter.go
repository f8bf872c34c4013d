package s1_filter

import (
	"math"
	"strings"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/epiweek"
)

// RuleSet holds the validity predicates for one source
type RuleSet struct {
	Source            contracts.Source `yaml:"source"`
	CoreFields        []string         `yaml:"core_fields"`        // 키/측정값 필수 필드
	IncrementalFields []string         `yaml:"incremental_fields"` // new_* (음수 불가)
	CapacityFields    []string         `yaml:"capacity_fields"`    // 병상 지표 (null/음수 불가)
}

// RequiredColumns returns every column the table must carry for the rules to apply
func (r RuleSet) RequiredColumns() []string {
	cols := []string{contracts.ColumnJurisdiction, contracts.ColumnDate}
	cols = append(cols, r.CoreFields...)
	cols = append(cols, r.CapacityFields...)
	return cols
}

// FilterResult is the S1 output for one source
type FilterResult struct {
	Rows  []contracts.KeyedObservation
	Stats contracts.FilterStats
}

// Filter keeps the observations passing every rule and attaches their week key
// ⭐ SSOT: S1 레코드 검증 (개별 레코드는 버리고 카운트, 구조 오류만 에러)
func Filter(table *contracts.ObservationTable, rules RuleSet) (*FilterResult, error) {
	if table == nil {
		return nil, contracts.NewIntegrityError(contracts.StageFilter, rules.Source,
			contracts.RuleMissingColumns, "no table")
	}

	// 1. 구조 검증: 키 컬럼이 아예 없으면 전체 실행 중단
	var missing []string
	for _, col := range rules.RequiredColumns() {
		if !table.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, contracts.NewIntegrityError(contracts.StageFilter, table.Source,
			contracts.RuleMissingColumns, "table lacks columns %s", strings.Join(missing, ", "))
	}

	result := &FilterResult{
		Rows: make([]contracts.KeyedObservation, 0, len(table.Rows)),
		Stats: contracts.FilterStats{
			Source:   table.Source,
			Input:    len(table.Rows),
			Rejected: make(map[string]int),
		},
	}

	// 2. 레코드별 규칙 적용 (첫 번째 실패 규칙만 카운트)
	for _, obs := range table.Rows {
		key, reason := check(obs, rules)
		if reason != "" {
			result.Stats.Rejected[reason]++
			continue
		}
		result.Rows = append(result.Rows, contracts.KeyedObservation{Key: key, RawObservation: obs})
	}

	result.Stats.Kept = len(result.Rows)
	return result, nil
}

// check returns the derived key, or the first rule the observation fails
func check(obs contracts.RawObservation, rules RuleSet) (contracts.JurisdictionWeekKey, string) {
	if strings.TrimSpace(obs.Jurisdiction) == "" || obs.Date.IsZero() {
		return contracts.JurisdictionWeekKey{}, contracts.RejectNullCoreField
	}
	for _, f := range rules.CoreFields {
		if _, ok := finiteValue(obs, f); !ok {
			return contracts.JurisdictionWeekKey{}, contracts.RejectNullCoreField
		}
	}

	key, err := epiweek.Derive(obs.Jurisdiction, obs.Date)
	if err != nil {
		return contracts.JurisdictionWeekKey{}, contracts.RejectUnkeyable
	}

	for _, f := range rules.IncrementalFields {
		if v, ok := obs.Value(f); ok && v < 0 {
			return key, contracts.RejectNegativeIncrement
		}
	}

	for _, f := range rules.CapacityFields {
		if v, ok := finiteValue(obs, f); !ok || v < 0 {
			return key, contracts.RejectInvalidCapacity
		}
	}

	// 누적값 음수는 WeeklyFact 불변식 위반
	for _, v := range obs.Measures {
		if v < 0 {
			return key, contracts.RejectNegativeMeasure
		}
	}
	for _, v := range obs.Measures {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return key, contracts.RejectNonFiniteMeasure
		}
	}

	return key, ""
}

// finiteValue treats NaN/Inf like a missing cell
func finiteValue(obs contracts.RawObservation, field string) (float64, bool) {
	v, ok := obs.Value(field)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
