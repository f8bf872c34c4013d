package s2_reduce

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/wonny/epimart/internal/contracts"
)

// ReduceResult is the S2 output for one source: one fact per key, sorted by key
type ReduceResult struct {
	Facts []contracts.WeeklyFact
	Stats contracts.ReduceStats
}

// Reducer buckets keyed observations and applies a per-source policy
type Reducer struct {
	log zerolog.Logger
}

// NewReducer creates a new Reducer
func NewReducer(log zerolog.Logger) *Reducer {
	return &Reducer{
		log: log.With().Str("component", "s2_reduce").Logger(),
	}
}

// Reduce produces exactly one WeeklyFact per key
// ⭐ SSOT: S1 → S2 주간 집계 (정책은 소스별 주입)
func (r *Reducer) Reduce(source contracts.Source, observations []contracts.KeyedObservation, policy Policy) (*ReduceResult, error) {
	if policy == nil {
		return nil, fmt.Errorf("reduce %s: no policy", source)
	}

	// 1. 키별 버킷 (입력 순서 유지)
	buckets := make(map[contracts.JurisdictionWeekKey][]contracts.KeyedObservation)
	for _, obs := range observations {
		if obs.Key.IsZero() {
			return nil, fmt.Errorf("reduce %s: line %d has no key", source, obs.Line)
		}
		buckets[obs.Key] = append(buckets[obs.Key], obs)
	}

	result := &ReduceResult{
		Facts: make([]contracts.WeeklyFact, 0, len(buckets)),
		Stats: contracts.ReduceStats{
			Source: source,
			Policy: policy.Name(),
			Input:  len(observations),
		},
	}

	// 2. 버킷별 정책 적용
	for key, bucket := range buckets {
		fact, tie := policy.Apply(key, bucket)
		fact.Source = source
		if tie {
			result.Stats.Ties++
			r.log.Warn().
				Str("source", string(source)).
				Str("key", key.String()).
				Time("date", fact.Date).
				Int("rows", len(bucket)).
				Msg("duplicate report for max date, keeping first encountered")
		}
		result.Facts = append(result.Facts, fact)
	}

	// 3. 키 순 정렬 (결정적 출력)
	sort.Slice(result.Facts, func(i, j int) bool {
		return result.Facts[i].Key.String() < result.Facts[j].Key.String()
	})

	result.Stats.Keys = len(result.Facts)
	return result, nil
}
