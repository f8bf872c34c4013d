package contracts

// Pipeline Stage definitions (SSOT)
// Every log line, run snapshot and DB row uses these constants.
//
// Pipeline flow:
//   S0 → S1 → S2 → S3 → S4 → S5
//   Ingest  Filter  Reduce  Join  Derive  National

// Stage represents a pipeline stage
type Stage string

const (
	// StageIngest S0: source ingestion
	// Responsibility: hand typed observation tables to the core
	// Location: internal/s0_ingest/
	StageIngest Stage = "S0_INGEST"

	// StageFilter S1: record validity rules
	// Responsibility: null-core, negative-increment and capacity rules, rejection counters
	// Location: internal/s1_filter/
	StageFilter Stage = "S1_FILTER"

	// StageReduce S2: weekly reduction
	// Responsibility: one WeeklyFact per key (latest-wins / summation)
	// Location: internal/s2_reduce/
	StageReduce Stage = "S2_REDUCE"

	// StageJoin S3: cross-source inner joins
	// Responsibility: vaccination ⋈ case/death ⋈ capacity ⋈ geography, drop counts
	// Location: internal/s3_join/
	StageJoin Stage = "S3_JOIN"

	// StageDerive S4: derived ratio metrics
	// Location: internal/s4_derive/
	StageDerive Stage = "S4_DERIVE"

	// StageNational S5: national daily series
	// Location: internal/s5_national/
	StageNational Stage = "S5_NATIONAL"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// ShortName returns abbreviated stage name (e.g., "S0", "S1")
func (s Stage) ShortName() string {
	switch s {
	case StageIngest:
		return "S0"
	case StageFilter:
		return "S1"
	case StageReduce:
		return "S2"
	case StageJoin:
		return "S3"
	case StageDerive:
		return "S4"
	case StageNational:
		return "S5"
	default:
		return "UNKNOWN"
	}
}

// Description returns a short human description of the stage
func (s Stage) Description() string {
	switch s {
	case StageIngest:
		return "source ingestion"
	case StageFilter:
		return "record filtering"
	case StageReduce:
		return "weekly reduction"
	case StageJoin:
		return "cross-source join"
	case StageDerive:
		return "derived metrics"
	case StageNational:
		return "national daily series"
	default:
		return "unknown"
	}
}

// AllStages returns all pipeline stages in order
func AllStages() []Stage {
	return []Stage{
		StageIngest,
		StageFilter,
		StageReduce,
		StageJoin,
		StageDerive,
		StageNational,
	}
}

// IsValidStage checks if a stage string is valid
func IsValidStage(s string) bool {
	for _, stage := range AllStages() {
		if string(stage) == s {
			return true
		}
	}
	return false
}

// PipelineResult represents the result of a pipeline stage execution
type PipelineResult struct {
	Stage       Stage                  `json:"stage"`
	Source      Source                 `json:"source,omitempty"`
	Success     bool                   `json:"success"`
	InputCount  int                    `json:"input_count"`
	OutputCount int                    `json:"output_count"`
	Duration    int64                  `json:"duration_ms"`
	Error       string                 `json:"error,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}
