package pipelineconfig

import (
	"fmt"
	"time"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/s2_reduce"
)

// WeekRuleISO8601 is the only supported week numbering rule
const WeekRuleISO8601 = "iso8601"

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.PipelineID == "" {
		return ValidationError{"meta.pipeline_id", "required"}
	}
	if cfg.Meta.WeekRule != WeekRuleISO8601 {
		return ValidationError{"meta.week_rule", fmt.Sprintf("must be '%s'", WeekRuleISO8601)}
	}

	// === Sources ===
	for _, source := range contracts.FactSources() {
		rules, err := cfg.Source(source)
		if err != nil {
			return err
		}
		if err := validateSource("sources."+string(source), rules); err != nil {
			return err
		}
	}
	if len(cfg.Sources.Capacity.CapacityFields) == 0 {
		return ValidationError{"sources.capacity.capacity_fields", "required"}
	}

	// === Geography ===
	if cfg.Geography.File == "" {
		return ValidationError{"geography.file", "required"}
	}
	if cfg.Geography.Format != "csv" && cfg.Geography.Format != "html" {
		return ValidationError{"geography.format", "must be csv or html"}
	}

	// === Coverage ===
	if cfg.Coverage.MaxDropRate < 0 || cfg.Coverage.MaxDropRate > 1 {
		return ValidationError{"coverage.max_drop_rate", "must be in range [0, 1]"}
	}
	if cfg.Coverage.Enforce && cfg.Coverage.MaxDropRate == 0 {
		return ValidationError{"coverage.enforce", "requires max_drop_rate > 0"}
	}

	// === Forecast ===
	if cfg.Forecast.Horizon < 0 {
		return ValidationError{"forecast.horizon", "must be >= 0"}
	}
	if cfg.Forecast.Period < 1 {
		return ValidationError{"forecast.period", "must be >= 1"}
	}

	return nil
}

func validateSource(prefix string, r SourceRules) error {
	if r.File == "" {
		return ValidationError{prefix + ".file", "required"}
	}
	if r.DateLayout == "" {
		return ValidationError{prefix + ".date_layout", "required"}
	}
	// 레이아웃이 자기 자신을 파싱할 수 있어야 함
	sample := time.Date(2021, 3, 14, 0, 0, 0, 0, time.UTC).Format(r.DateLayout)
	if _, err := time.Parse(r.DateLayout, sample); err != nil {
		return ValidationError{prefix + ".date_layout", err.Error()}
	}

	for _, col := range []string{contracts.ColumnJurisdiction, contracts.ColumnDate} {
		if r.Columns[col] == "" {
			return ValidationError{prefix + ".columns." + col, "required"}
		}
	}

	if len(r.Measures) == 0 {
		return ValidationError{prefix + ".measures", "must not be empty"}
	}
	known := make(map[string]bool, len(r.Measures))
	for _, m := range r.Measures {
		if r.Columns[m] == "" {
			return ValidationError{prefix + ".columns." + m, "measure has no column mapping"}
		}
		known[m] = true
	}

	fieldSets := []struct {
		name   string
		fields []string
	}{
		{"core_fields", r.CoreFields},
		{"incremental_fields", r.IncrementalFields},
		{"capacity_fields", r.CapacityFields},
	}
	for _, set := range fieldSets {
		for i, f := range set.fields {
			if !known[f] {
				return ValidationError{
					Field:   fmt.Sprintf("%s.%s[%d]", prefix, set.name, i),
					Message: fmt.Sprintf("%q is not a declared measure", f),
				}
			}
		}
	}

	if _, ok := s2_reduce.PolicyFor(r.Policy, r.Measures); !ok {
		return ValidationError{prefix + ".policy", "must be latest_wins or summation"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 누적 일별 소스에 합산 정책 → 이중 집계
	for _, source := range []contracts.Source{contracts.SourceVaccination, contracts.SourceCaseDeath} {
		rules, _ := cfg.Source(source)
		if rules.Policy == s2_reduce.PolicySummation {
			warnings = append(warnings, Warning{
				Code:    "CUMULATIVE_SUMMATION",
				Message: fmt.Sprintf("%s reports cumulative snapshots: summation double counts", source),
			})
		}
	}

	// 시설 단위 소스에 최신값 정책 → 시설 하나만 남음
	if cfg.Sources.Capacity.Policy == s2_reduce.PolicyLatestWins {
		warnings = append(warnings, Warning{
			Code:    "FACILITY_LATEST_WINS",
			Message: "capacity is reported per facility: latest_wins keeps a single facility",
		})
	}

	if cfg.Coverage.MaxDropRate == 0 {
		warnings = append(warnings, Warning{
			Code:    "COVERAGE_OBSERVE_ONLY",
			Message: "max_drop_rate is 0: join drops are reported but never fail the run",
		})
	}

	return warnings
}
