package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/epimart/internal/contracts"
)

func TestObserveFilter(t *testing.T) {
	m := New()
	m.ObserveFilter(contracts.FilterStats{
		Source: contracts.SourceCaseDeath,
		Input:  10,
		Rejected: map[string]int{
			contracts.RejectNegativeIncrement: 1,
			contracts.RejectNullCoreField:     2,
		},
	})

	assert.Equal(t, 10.0, testutil.ToFloat64(m.RecordsIn.WithLabelValues("case_death")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("case_death", contracts.RejectNegativeIncrement)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsRejected.WithLabelValues("case_death", contracts.RejectNullCoreField)))
}

func TestObserveJoin(t *testing.T) {
	m := New()
	m.ObserveJoin(contracts.JoinReport{Stages: []contracts.JoinStage{
		{Name: "x_capacity", LeftRows: 4, DroppedLeft: 1},
	}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinDropped.WithLabelValues("x_capacity")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.JoinDropRate.WithLabelValues("x_capacity")))
}

func TestObserveRun(t *testing.T) {
	m := New()
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	run := &contracts.PipelineRun{StartedAt: start, FinishedAt: start.Add(3 * time.Second), MartRows: 52, GapDays: 2}

	m.ObserveRun(run, nil)
	m.ObserveRun(nil, errors.New("integrity"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 52.0, testutil.ToFloat64(m.MartRows))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NationalGapDays))
	assert.Equal(t, float64(start.Add(3*time.Second).Unix()), testutil.ToFloat64(m.LastSuccess))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReduce(contracts.ReduceStats{Source: contracts.SourceVaccination, Ties: 3})

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `epimart_reduce_ties_total{source="vaccination"} 3`)
}
