package s3_join

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/wonny/epimart/internal/contracts"
	"github.com/wonny/epimart/internal/epiweek"
)

// Join stage names, in execution order
const (
	StageVaxCases  = "vaccination_x_case_death"
	StageCapacity  = "x_capacity"
	StageGeography = "x_geography"
)

// JoinResult is the S3 output: the unified mart (sorted by key) plus drop counts
type JoinResult struct {
	Records []contracts.UnifiedMartRecord
	Report  contracts.JoinReport
}

// Joiner performs the ordered inner joins
type Joiner struct {
	log zerolog.Logger
}

// NewJoiner creates a new Joiner
func NewJoiner(log zerolog.Logger) *Joiner {
	return &Joiner{
		log: log.With().Str("component", "s3_join").Logger(),
	}
}

// Join runs vaccination ⋈ case/death ⋈ capacity ⋈ geography.
// Keys missing from any input drop the row; drops are reported, never fatal.
// ⭐ SSOT: S2 → S3 교차 소스 조인
func (j *Joiner) Join(vax, cases, capacity []contracts.WeeklyFact, geo contracts.GeographyLookup) (*JoinResult, error) {
	// 1. 무결성 검증 (중복 키, 주차 불일치)
	vaxIdx, err := index(contracts.SourceVaccination, vax)
	if err != nil {
		return nil, err
	}
	caseIdx, err := index(contracts.SourceCaseDeath, cases)
	if err != nil {
		return nil, err
	}
	capIdx, err := index(contracts.SourceCapacity, capacity)
	if err != nil {
		return nil, err
	}

	result := &JoinResult{}

	// 2. vaccination ⋈ case/death
	stage1 := contracts.JoinStage{Name: StageVaxCases, LeftRows: len(vax), RightRows: len(cases)}
	type pair struct{ vax, cases contracts.WeeklyFact }
	matched := make([]pair, 0, len(vax))
	for _, v := range vax {
		c, ok := caseIdx[v.Key]
		if !ok {
			stage1.DroppedLeft++
			continue
		}
		matched = append(matched, pair{v, c})
	}
	stage1.Matched = len(matched)
	stage1.DroppedRight = len(cases) - countIn(cases, vaxIdx)
	result.Report.Stages = append(result.Report.Stages, stage1)

	// 3. ⋈ capacity
	stage2 := contracts.JoinStage{Name: StageCapacity, LeftRows: len(matched), RightRows: len(capacity)}
	records := make([]contracts.UnifiedMartRecord, 0, len(matched))
	for _, m := range matched {
		c, ok := capIdx[m.vax.Key]
		if !ok {
			stage2.DroppedLeft++
			continue
		}
		records = append(records, buildRecord(m.vax, m.cases, c))
	}
	stage2.Matched = len(records)
	stage2.DroppedRight = len(capacity) - countMatched(capacity, records)
	result.Report.Stages = append(result.Report.Stages, stage2)

	// 4. ⋈ geography (관할 코드 기준, 시간 불변)
	stage3 := contracts.JoinStage{Name: StageGeography, LeftRows: len(records)}
	if geo != nil {
		stage3.RightRows = geo.Len()
	}
	missingCodes := make(map[string]int)
	final := make([]contracts.UnifiedMartRecord, 0, len(records))
	for _, rec := range records {
		var point contracts.GeoPoint
		ok := false
		if geo != nil {
			point, ok = geo.Lookup(rec.Jurisdiction)
		}
		if !ok {
			stage3.DroppedLeft++
			missingCodes[rec.Jurisdiction]++
			continue
		}
		rec.Name = point.Name
		rec.Latitude = point.Latitude
		rec.Longitude = point.Longitude
		final = append(final, rec)
	}
	stage3.Matched = len(final)
	result.Report.Stages = append(result.Report.Stages, stage3)

	if len(missingCodes) > 0 {
		codes := make([]string, 0, len(missingCodes))
		for code := range missingCodes {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		j.log.Warn().
			Strs("jurisdictions", codes).
			Int("rows", stage3.DroppedLeft).
			Msg("jurisdictions missing from geography lookup")
	}

	sort.Slice(final, func(a, b int) bool { return final[a].Key < final[b].Key })
	result.Records = final

	for _, s := range result.Report.Stages {
		j.log.Info().
			Str("stage", s.Name).
			Int("left", s.LeftRows).
			Int("right", s.RightRows).
			Int("matched", s.Matched).
			Int("dropped_left", s.DroppedLeft).
			Int("dropped_right", s.DroppedRight).
			Float64("drop_rate", s.DropRate()).
			Msg("join stage")
	}

	return result, nil
}

// index maps facts by key, rejecting duplicates and keys inconsistent with their date
func index(source contracts.Source, facts []contracts.WeeklyFact) (map[contracts.JurisdictionWeekKey]contracts.WeeklyFact, error) {
	idx := make(map[contracts.JurisdictionWeekKey]contracts.WeeklyFact, len(facts))
	for _, f := range facts {
		if _, dup := idx[f.Key]; dup {
			return nil, contracts.NewIntegrityError(contracts.StageJoin, source,
				contracts.RuleDuplicateKey, "key %s appears more than once", f.Key)
		}

		derived, err := epiweek.Derive(f.Key.Jurisdiction, f.Date)
		if err != nil || derived != f.Key {
			return nil, contracts.NewIntegrityError(contracts.StageJoin, source,
				contracts.RuleWeekMismatch, "key %s does not match date %s (derived %s)",
				f.Key, f.Date.Format("2006-01-02"), derived)
		}

		idx[f.Key] = f
	}
	return idx, nil
}

func countIn(facts []contracts.WeeklyFact, idx map[contracts.JurisdictionWeekKey]contracts.WeeklyFact) int {
	n := 0
	for _, f := range facts {
		if _, ok := idx[f.Key]; ok {
			n++
		}
	}
	return n
}

func countMatched(facts []contracts.WeeklyFact, records []contracts.UnifiedMartRecord) int {
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		keys[r.Key] = struct{}{}
	}
	n := 0
	for _, f := range facts {
		if _, ok := keys[f.Key.String()]; ok {
			n++
		}
	}
	return n
}

// buildRecord copies the three facts into one mart row
func buildRecord(vax, cases, capacity contracts.WeeklyFact) contracts.UnifiedMartRecord {
	return contracts.UnifiedMartRecord{
		Key:          cases.Key.String(),
		Jurisdiction: cases.Key.Jurisdiction,
		Date:         cases.Date,
		Year:         cases.Key.Year,
		Week:         cases.Key.Week,
		WeekStart:    epiweek.WeekStart(cases.Key.Year, cases.Key.Week),

		TotCases: cases.Measure(contracts.MeasureTotCases),
		NewCase:  cases.Measure(contracts.MeasureNewCase),
		TotDeath: cases.Measure(contracts.MeasureTotDeath),
		NewDeath: cases.Measure(contracts.MeasureNewDeath),

		VaccinationDate:     vax.Date,
		Distributed:         vax.Measure(contracts.MeasureDistributed),
		Administered:        vax.Measure(contracts.MeasureAdministered),
		AdministeredDose1:   vax.Measure(contracts.MeasureAdministeredDose1),
		SeriesComplete:      vax.Measure(contracts.MeasureSeriesComplete),
		AdministeredPfizer:  vax.Measure(contracts.MeasureAdministeredPfizer),
		AdministeredModerna: vax.Measure(contracts.MeasureAdministeredModerna),
		AdministeredJanssen: vax.Measure(contracts.MeasureAdministeredJanssen),
		AdministeredNovavax: vax.Measure(contracts.MeasureAdministeredNovavax),
		AdministeredUnknown: vax.Measure(contracts.MeasureAdministeredUnknown),

		TotalBeds:           capacity.Measure(contracts.MeasureTotalBeds),
		InpatientBedsUsed:   capacity.Measure(contracts.MeasureInpatientBedsUsed),
		TotalICUBeds:        capacity.Measure(contracts.MeasureTotalICUBeds),
		ICUBedsUsed:         capacity.Measure(contracts.MeasureICUBedsUsed),
		ReportingFacilities: capacity.Contributors,
	}
}
