package quality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
)

func testReport() contracts.JoinReport {
	return contracts.JoinReport{Stages: []contracts.JoinStage{
		{Name: "vaccination_x_case_death", LeftRows: 100, DroppedLeft: 2},
		{Name: "x_capacity", LeftRows: 98, DroppedLeft: 20},
		{Name: "x_geography", LeftRows: 78, DroppedLeft: 0},
	}}
}

func TestCoverageGate_Evaluate(t *testing.T) {
	tests := []struct {
		name         string
		config       Config
		wantPassed   bool
		wantBreaches []string
	}{
		{"observe only", Config{}, true, nil},
		{"loose threshold", Config{MaxDropRate: 0.5}, true, nil},
		{"tight threshold", Config{MaxDropRate: 0.01}, false, []string{"vaccination_x_case_death", "x_capacity"}},
		{"middle threshold", Config{MaxDropRate: 0.1, Enforce: true}, false, []string{"x_capacity"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := NewCoverageGate(tt.config).Evaluate(testReport())

			assert.Equal(t, tt.wantPassed, verdict.Passed)
			assert.Equal(t, tt.wantBreaches, verdict.Breaches)
			assert.InDelta(t, 20.0/98.0, verdict.WorstRate, 1e-9)
			assert.Equal(t, tt.config.MaxDropRate, verdict.MaxDropRate)
		})
	}
}

func TestCoverageGate_Check(t *testing.T) {
	observe := NewCoverageGate(Config{MaxDropRate: 0.1})
	verdict := observe.Evaluate(testReport())
	require.False(t, verdict.Passed)
	assert.NoError(t, observe.Check(verdict), "breach is only reported when not enforced")
	assert.False(t, observe.Enforced())

	enforced := NewCoverageGate(Config{MaxDropRate: 0.1, Enforce: true})
	err := enforced.Check(enforced.Evaluate(testReport()))
	require.Error(t, err)
	assert.True(t, enforced.Enforced())

	var ce *CoverageError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"x_capacity"}, ce.Verdict.Breaches)
	assert.Contains(t, err.Error(), "x_capacity")
}
