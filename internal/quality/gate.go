package quality

import (
	"fmt"
	"strings"

	"github.com/wonny/epimart/internal/contracts"
)

// CoverageGate compares join drop rates with an operator threshold
type CoverageGate struct {
	config Config
}

// Config holds gate thresholds
type Config struct {
	MaxDropRate float64 `yaml:"max_drop_rate"` // 0 = observe only
	Enforce     bool    `yaml:"enforce"`       // fail the run on a breach
}

// CoverageError is returned by Check when an enforced gate is breached
type CoverageError struct {
	Verdict contracts.CoverageVerdict
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("join coverage below threshold: stages %s exceed max drop rate %.4f (worst %.4f)",
		strings.Join(e.Verdict.Breaches, ", "), e.Verdict.MaxDropRate, e.Verdict.WorstRate)
}

// NewCoverageGate creates a new CoverageGate instance
func NewCoverageGate(config Config) *CoverageGate {
	return &CoverageGate{config: config}
}

// Evaluate builds the verdict for a join report.
// Without a threshold every report passes; the rates are still recorded.
// ⭐ SSOT: S3 커버리지 판정
func (g *CoverageGate) Evaluate(report contracts.JoinReport) contracts.CoverageVerdict {
	verdict := contracts.CoverageVerdict{
		MaxDropRate: g.config.MaxDropRate,
		WorstRate:   report.MaxDropRate(),
		Passed:      true,
	}
	if g.config.MaxDropRate <= 0 {
		return verdict
	}

	for _, stage := range report.Stages {
		if stage.DropRate() > g.config.MaxDropRate {
			verdict.Breaches = append(verdict.Breaches, stage.Name)
		}
	}
	verdict.Passed = len(verdict.Breaches) == 0
	return verdict
}

// Check returns a CoverageError when the gate is enforced and the verdict failed
func (g *CoverageGate) Check(verdict contracts.CoverageVerdict) error {
	if !g.config.Enforce || verdict.Passed {
		return nil
	}
	return &CoverageError{Verdict: verdict}
}

// Enforced reports whether breaches fail the run
func (g *CoverageGate) Enforced() bool {
	return g.config.Enforce && g.config.MaxDropRate > 0
}
