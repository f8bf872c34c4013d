package pipelineconfig

import (
	"fmt"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/s1_filter"
	"github.com/wonny/epimart/internal/s2_reduce"
)

// Config는 마트 파이프라인의 전체 규칙 설정
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Sources   Sources   `yaml:"sources" json:"sources"`
	Geography Geography `yaml:"geography" json:"geography"`
	Coverage  Coverage  `yaml:"coverage" json:"coverage"`
	Forecast  Forecast  `yaml:"forecast" json:"forecast"`
}

// Meta 메타 정보
type Meta struct {
	PipelineID string `yaml:"pipeline_id" json:"pipeline_id"`
	Version    string `yaml:"version" json:"version"`
	WeekRule   string `yaml:"week_rule" json:"week_rule"` // 고정: iso8601
}

// Sources holds the per-source rules, one block per fact source
type Sources struct {
	Vaccination SourceRules `yaml:"vaccination" json:"vaccination"`
	CaseDeath   SourceRules `yaml:"case_death" json:"case_death"`
	Capacity    SourceRules `yaml:"capacity" json:"capacity"`
}

// SourceRules describes how one CSV source maps onto the core
type SourceRules struct {
	File       string            `yaml:"file" json:"file"`
	URL        string            `yaml:"url" json:"url"`
	DateLayout string            `yaml:"date_layout" json:"date_layout"` // Go time layout
	Columns    map[string]string `yaml:"columns" json:"columns"`         // canonical → CSV header
	NullValues []string          `yaml:"null_values" json:"null_values"` // 결측 표기 (예: -999999)

	Measures          []string `yaml:"measures" json:"measures"`
	CoreFields        []string `yaml:"core_fields" json:"core_fields"`
	IncrementalFields []string `yaml:"incremental_fields" json:"incremental_fields"`
	CapacityFields    []string `yaml:"capacity_fields" json:"capacity_fields"`
	Policy            string   `yaml:"policy" json:"policy"` // latest_wins | summation
}

// Geography 지리 조회 테이블
type Geography struct {
	File   string `yaml:"file" json:"file"`
	URL    string `yaml:"url" json:"url"`
	Format string `yaml:"format" json:"format"` // csv | html
}

// Coverage 조인 커버리지 임계값
type Coverage struct {
	MaxDropRate float64 `yaml:"max_drop_rate" json:"max_drop_rate"` // 0 = 관측만
	Enforce     bool    `yaml:"enforce" json:"enforce"`
}

// Forecast 예측 설정
type Forecast struct {
	Horizon int    `yaml:"horizon" json:"horizon"` // days
	Period  int    `yaml:"period" json:"period"`   // seasonal period (days)
	Model   string `yaml:"model" json:"model"`     // seasonal_naive
}

// Source returns the rules for a fact source
func (c *Config) Source(s contracts.Source) (SourceRules, error) {
	switch s {
	case contracts.SourceVaccination:
		return c.Sources.Vaccination, nil
	case contracts.SourceCaseDeath:
		return c.Sources.CaseDeath, nil
	case contracts.SourceCapacity:
		return c.Sources.Capacity, nil
	}
	return SourceRules{}, fmt.Errorf("no rules for source %q", s)
}

// RuleSet converts the rules into the S1 filter form
func (r SourceRules) RuleSet(source contracts.Source) s1_filter.RuleSet {
	return s1_filter.RuleSet{
		Source:            source,
		CoreFields:        r.CoreFields,
		IncrementalFields: r.IncrementalFields,
		CapacityFields:    r.CapacityFields,
	}
}

// ReducePolicy builds the S2 policy for this source
func (r SourceRules) ReducePolicy() (s2_reduce.Policy, error) {
	policy, ok := s2_reduce.PolicyFor(r.Policy, r.Measures)
	if !ok {
		return nil, fmt.Errorf("unknown reduce policy %q", r.Policy)
	}
	return policy, nil
}

// IsNull reports whether a raw CSV cell means "not reported"
func (r SourceRules) IsNull(cell string) bool {
	if cell == "" {
		return true
	}
	for _, v := range r.NullValues {
		if cell == v {
			return true
		}
	}
	return false
}
