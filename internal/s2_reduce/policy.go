package s2_reduce

import (
	"time"

	"github.com/wonny/epimart/internal/contracts"
)

// Policy collapses one key's bucket into a single WeeklyFact.
// The bucket is never empty and keeps first-encountered order.
type Policy interface {
	Name() string
	Apply(key contracts.JurisdictionWeekKey, bucket []contracts.KeyedObservation) (fact contracts.WeeklyFact, tie bool)
}

// Policy names used in pipeline config
const (
	PolicyLatestWins = "latest_wins"
	PolicySummation  = "summation"
)

// LatestWins keeps the row with the maximum calendar date.
// For cumulative-to-date daily snapshots the latest report subsumes the rest.
type LatestWins struct {
	Measures []string
}

// Name returns the policy name
func (p LatestWins) Name() string { return PolicyLatestWins }

// Apply keeps the max-date row; on an identical max date the first-encountered row survives
func (p LatestWins) Apply(key contracts.JurisdictionWeekKey, bucket []contracts.KeyedObservation) (contracts.WeeklyFact, bool) {
	survivor := bucket[0]
	tie := false
	for _, obs := range bucket[1:] {
		switch {
		case obs.Date.After(survivor.Date):
			survivor = obs
			tie = false
		case obs.Date.Equal(survivor.Date):
			tie = true
		}
	}

	fact := newFact(key, survivor.Source, survivor.Date, len(bucket), p.Measures)
	for _, m := range p.Measures {
		if v, ok := survivor.Value(m); ok {
			fact.Measures[m] = v
		}
	}
	return fact, tie
}

// Summation sums every tracked measure across the bucket (facility → state total)
type Summation struct {
	Measures []string
}

// Name returns the policy name
func (p Summation) Name() string { return PolicySummation }

// Apply sums the tracked measures; the fact date is the latest contributing date
func (p Summation) Apply(key contracts.JurisdictionWeekKey, bucket []contracts.KeyedObservation) (contracts.WeeklyFact, bool) {
	latest := bucket[0].Date
	for _, obs := range bucket[1:] {
		if obs.Date.After(latest) {
			latest = obs.Date
		}
	}

	fact := newFact(key, bucket[0].Source, latest, len(bucket), p.Measures)
	for _, obs := range bucket {
		for _, m := range p.Measures {
			if v, ok := obs.Value(m); ok {
				fact.Measures[m] += v
			}
		}
	}
	return fact, false
}

// newFact builds a fact with every tracked measure resolved to 0
func newFact(key contracts.JurisdictionWeekKey, source contracts.Source, date time.Time, contributors int, measures []string) contracts.WeeklyFact {
	fact := contracts.WeeklyFact{
		Key:          key,
		Source:       source,
		Date:         date,
		Contributors: contributors,
		Measures:     make(map[string]float64, len(measures)),
	}
	for _, m := range measures {
		fact.Measures[m] = 0
	}
	return fact
}

// PolicyFor builds a policy by config name
func PolicyFor(name string, measures []string) (Policy, bool) {
	switch name {
	case PolicyLatestWins:
		return LatestWins{Measures: measures}, true
	case PolicySummation:
		return Summation{Measures: measures}, true
	}
	return nil, false
}
