package contracts

import "time"

// Filter rule identifiers (RecordRejected reasons)
const (
	RejectNullCoreField     = "null_core_field"
	RejectNegativeIncrement = "negative_increment"
	RejectInvalidCapacity   = "invalid_capacity"
	RejectNegativeMeasure   = "negative_measure"
	RejectUnkeyable         = "unkeyable_record"
	RejectNonFiniteMeasure  = "non_finite_measure"
)

// RejectRules lists every rejection rule in evaluation order
func RejectRules() []string {
	return []string{
		RejectNullCoreField,
		RejectUnkeyable,
		RejectNegativeIncrement,
		RejectInvalidCapacity,
		RejectNegativeMeasure,
		RejectNonFiniteMeasure,
	}
}

// FilterStats summarizes S1 for one source
type FilterStats struct {
	Source   Source         `json:"source"`
	Input    int            `json:"input"`
	Kept     int            `json:"kept"`
	Rejected map[string]int `json:"rejected"` // rule → count
}

// TotalRejected sums rejections across rules
func (s FilterStats) TotalRejected() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// ReduceStats summarizes S2 for one source
type ReduceStats struct {
	Source Source `json:"source"`
	Policy string `json:"policy"`
	Input  int    `json:"input"`
	Keys   int    `json:"keys"`
	Ties   int    `json:"ties"` // latest-wins buckets with a duplicated max date
}

// JoinStage is the coverage observation for one inner join
type JoinStage struct {
	Name         string `json:"name"`
	LeftRows     int    `json:"left_rows"`
	RightRows    int    `json:"right_rows"`
	Matched      int    `json:"matched"`
	DroppedLeft  int    `json:"dropped_left"`
	DroppedRight int    `json:"dropped_right"`
}

// DropRate is the share of left rows lost at this stage
func (s JoinStage) DropRate() float64 {
	if s.LeftRows == 0 {
		return 0
	}
	return float64(s.DroppedLeft) / float64(s.LeftRows)
}

// JoinReport collects every join stage in order
type JoinReport struct {
	Stages []JoinStage `json:"stages"`
}

// TotalDropped sums left-side drops across stages
func (r JoinReport) TotalDropped() int {
	total := 0
	for _, s := range r.Stages {
		total += s.DroppedLeft
	}
	return total
}

// MaxDropRate returns the worst stage drop rate
func (r JoinReport) MaxDropRate() float64 {
	worst := 0.0
	for _, s := range r.Stages {
		if rate := s.DropRate(); rate > worst {
			worst = rate
		}
	}
	return worst
}

// CoverageVerdict is the operator-threshold decision over a JoinReport
type CoverageVerdict struct {
	MaxDropRate float64  `json:"max_drop_rate"` // configured threshold, 0 = observe only
	WorstRate   float64  `json:"worst_rate"`
	Breaches    []string `json:"breaches,omitempty"` // stage names over threshold
	Passed      bool     `json:"passed"`
}

// PipelineRun records one complete run for reproducibility
type PipelineRun struct {
	RunID        string           `json:"run_id"`
	ConfigHash   string           `json:"config_hash"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Filter       []FilterStats    `json:"filter"`
	Reduce       []ReduceStats    `json:"reduce"`
	Join         JoinReport       `json:"join"`
	Coverage     CoverageVerdict  `json:"coverage"`
	MartRows     int              `json:"mart_rows"`
	NationalRows int              `json:"national_rows"`
	GapDays      int              `json:"gap_days"`
	Results      []PipelineResult `json:"results"`
}

// Duration returns the wall-clock time of the run
func (r PipelineRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
