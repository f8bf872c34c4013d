// Package metrics exposes pipeline observations as Prometheus series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/epimart/internal/contracts"
)

const namespace = "epimart"

// Metrics holds every collector on its own registry
// ⭐ SSOT: 메트릭 정의는 여기서만
type Metrics struct {
	registry *prometheus.Registry

	RecordsIn       *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	ReduceTies      *prometheus.CounterVec
	JoinDropped     *prometheus.CounterVec
	JoinDropRate    *prometheus.GaugeVec
	MartRows        prometheus.Gauge
	NationalGapDays prometheus.Gauge
	RunDuration     prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
	LastSuccess     prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_in_total",
			Help:      "Observations handed to the filter stage.",
		}, []string{"source"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Observations dropped by a validity rule.",
		}, []string{"source", "rule"}),
		ReduceTies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reduce_ties_total",
			Help:      "Latest-wins buckets with more than one row on the max date.",
		}, []string{"source"}),
		JoinDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_dropped_total",
			Help:      "Left-side rows lost at each inner join stage.",
		}, []string{"stage"}),
		JoinDropRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "join_drop_rate",
			Help:      "Drop rate of each join stage in the last run.",
		}, []string{"stage"}),
		MartRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mart_rows",
			Help:      "Rows in the last produced mart.",
		}),
		NationalGapDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "national_gap_days",
			Help:      "Dates in the national series with no reporting jurisdiction.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RecordsIn,
		m.RecordsRejected,
		m.ReduceTies,
		m.JoinDropped,
		m.JoinDropRate,
		m.MartRows,
		m.NationalGapDays,
		m.RunDuration,
		m.RunsTotal,
		m.LastSuccess,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFilter records S1 counters for one source
func (m *Metrics) ObserveFilter(stats contracts.FilterStats) {
	m.RecordsIn.WithLabelValues(string(stats.Source)).Add(float64(stats.Input))
	for rule, n := range stats.Rejected {
		m.RecordsRejected.WithLabelValues(string(stats.Source), rule).Add(float64(n))
	}
}

// ObserveReduce records S2 tie counts
func (m *Metrics) ObserveReduce(stats contracts.ReduceStats) {
	m.ReduceTies.WithLabelValues(string(stats.Source)).Add(float64(stats.Ties))
}

// ObserveJoin records S3 drop counts and rates
func (m *Metrics) ObserveJoin(report contracts.JoinReport) {
	for _, s := range report.Stages {
		m.JoinDropped.WithLabelValues(s.Name).Add(float64(s.DroppedLeft))
		m.JoinDropRate.WithLabelValues(s.Name).Set(s.DropRate())
	}
}

// ObserveRun records the outcome of a finished run
func (m *Metrics) ObserveRun(run *contracts.PipelineRun, err error) {
	if err != nil {
		m.RunsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunDuration.Observe(run.Duration().Seconds())
	m.MartRows.Set(float64(run.MartRows))
	m.NationalGapDays.Set(float64(run.GapDays))
	m.LastSuccess.Set(float64(run.FinishedAt.Unix()))
}
