package s0_ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/pipelineconfig"
)

// ctx 확인 주기 (행 단위)
const cancelCheckEvery = 10_000

// CSVAdapter reads one source snapshot from a CSV file
type CSVAdapter struct {
	source contracts.Source
	rules  pipelineconfig.SourceRules
	path   string
}

// NewCSVAdapter creates an adapter for a fact source
func NewCSVAdapter(source contracts.Source, rules pipelineconfig.SourceRules, path string) *CSVAdapter {
	return &CSVAdapter{source: source, rules: rules, path: path}
}

// Source returns the fact source this adapter reads
func (a *CSVAdapter) Source() contracts.Source {
	return a.source
}

// Load parses the file into an ObservationTable
func (a *CSVAdapter) Load(ctx context.Context) (*contracts.ObservationTable, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.source, err)
	}
	defer f.Close()

	table, err := ParseCSV(ctx, a.source, f, a.rules)
	if err != nil {
		return nil, fmt.Errorf("parse %s (%s): %w", a.source, a.path, err)
	}
	return table, nil
}

// ParseCSV maps CSV headers onto canonical columns and decodes every row.
// Unparsable cells become nulls; the filter stage decides what to do with them.
func ParseCSV(ctx context.Context, source contracts.Source, r io.Reader, rules pipelineconfig.SourceRules) (*contracts.ObservationTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	// 1. 헤더 → 표준 컬럼 인덱스
	position := make(map[string]int, len(header))
	for i, h := range header {
		position[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	index := make(map[string]int, len(rules.Columns))
	table := &contracts.ObservationTable{Source: source}
	for canonical, sourceHeader := range rules.Columns {
		if i, ok := position[sourceHeader]; ok {
			index[canonical] = i
			table.Columns = append(table.Columns, canonical)
		}
	}

	sort.Strings(table.Columns)

	jurIdx, hasJur := index[contracts.ColumnJurisdiction]
	dateIdx, hasDate := index[contracts.ColumnDate]
	facIdx, hasFac := index[contracts.ColumnFacility]

	// 2. 행 파싱
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		obs := contracts.RawObservation{
			Source:   source,
			Line:     line,
			Measures: make(map[string]float64, len(rules.Measures)),
		}
		if hasJur {
			obs.Jurisdiction = cell(record, jurIdx)
		}
		if hasDate {
			obs.Date = parseDate(cell(record, dateIdx), rules.DateLayout)
		}
		if hasFac {
			obs.Facility = cell(record, facIdx)
		}

		for _, m := range rules.Measures {
			i, ok := index[m]
			if !ok {
				continue
			}
			raw := cell(record, i)
			if rules.IsNull(raw) {
				continue
			}
			if v, ok := parseNumber(raw); ok {
				obs.Measures[m] = v
			}
		}

		table.Rows = append(table.Rows, obs)
	}

	return table, nil
}

func cell(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseDate accepts the configured layout, with or without a trailing time part
func parseDate(s, layout string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(layout, s); err == nil {
		return t
	}
	// "01/02/2006 12:00:00 AM" 형태 대응
	if i := strings.IndexByte(s, ' '); i > 0 {
		if t, err := time.Parse(layout, s[:i]); err == nil {
			return t
		}
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		if t, err := time.Parse(layout, s[:i]); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseNumber parses counts like "1,234" or "12.0"
// NaN/Inf 셀은 null 취급
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
