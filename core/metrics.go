package core

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dm "capm.service/data/models"
)

const (
	resultOk        = "ok"
	resultUserError = "user_error"
	resultError     = "error"
)

// Metrics owns its registry so every service context, and every test, starts from zero
type Metrics struct {
	Registry *prometheus.Registry

	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	AlignedRows      prometheus.Histogram
	SourceRequests   *prometheus.CounterVec
	SourceDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capm_analysis_runs_total",
				Help: "Analysis runs by result",
			},
			[]string{"result"},
		),

		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capm_analysis_stage_duration_seconds",
				Help:    "Duration of each analysis stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		AlignedRows: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "capm_aligned_rows",
				Help:    "Rows left in the aligned price table after the inner join",
				Buckets: prometheus.ExponentialBuckets(16, 2, 9),
			},
		),

		SourceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capm_source_requests_total",
				Help: "Market data source requests by source and result",
			},
			[]string{"source", "result"},
		),

		SourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capm_source_request_duration_seconds",
				Help:    "Market data source request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}

	m.Registry.MustRegister(
		m.AnalysisRuns,
		m.AnalysisDuration,
		m.AlignedRows,
		m.SourceRequests,
		m.SourceDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.AnalysisDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeRun(err error) {
	if m == nil {
		return
	}
	m.AnalysisRuns.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeSource(source string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.SourceRequests.WithLabelValues(source, resultLabel(err)).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultOk
	case IsUserError(err):
		return resultUserError
	default:
		return resultError
	}
}

type instrumentedPriceSource struct {
	PriceSource
	name    string
	metrics *Metrics
}

func (s instrumentedPriceSource) GetPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*dm.TimeSeriesData, error) {
	t := time.Now()
	res, err := s.PriceSource.GetPriceHistory(ctx, symbol, start, end)
	s.metrics.observeSource(s.name, t, err)
	return res, err
}

type instrumentedBenchmarkSource struct {
	BenchmarkSource
	name    string
	metrics *Metrics
}

func (s instrumentedBenchmarkSource) GetBenchmarkHistory(ctx context.Context, series string, start, end time.Time) ([]dm.BenchmarkObservation, error) {
	t := time.Now()
	res, err := s.BenchmarkSource.GetBenchmarkHistory(ctx, series, start, end)
	s.metrics.observeSource(s.name, t, err)
	return res, err
}

// InstrumentPriceSource counts and times every request made through source
func (m *Metrics) InstrumentPriceSource(name string, source PriceSource) PriceSource {
	return instrumentedPriceSource{PriceSource: source, name: name, metrics: m}
}

// InstrumentBenchmarkSource counts and times every request made through source
func (m *Metrics) InstrumentBenchmarkSource(name string, source BenchmarkSource) BenchmarkSource {
	return instrumentedBenchmarkSource{BenchmarkSource: source, name: name, metrics: m}
}
