package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capm.service/config"
	ex "capm.service/data/extensions"
	dm "capm.service/data/models"
	sm "capm.service/models"
)

var testNow = time.Date(2025, time.October, 31, 15, 30, 0, 0, time.UTC)

type fakePriceSource struct {
	data  map[string][]*dm.TimeSeriesData
	err   error
	calls atomic.Int32
}

func (f *fakePriceSource) GetPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*dm.TimeSeriesData, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return ex.FilterMultiplePtr(data, func(d *dm.TimeSeriesData) bool {
		return !d.Timestamp.Before(start) && !ex.TruncateToDate(d.Timestamp).After(end)
	}), nil
}

type fakeBenchmarkSource struct {
	data []dm.BenchmarkObservation
	err  error
}

func (f *fakeBenchmarkSource) GetBenchmarkHistory(ctx context.Context, series string, start, end time.Time) ([]dm.BenchmarkObservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return ex.FilterMultiple(f.data, func(o dm.BenchmarkObservation) bool {
		return !o.Date.Before(start) && !o.Date.After(end)
	}), nil
}

// testSources builds n days of history ending on testNow, one stock per beta
func testSources(n int, betas map[string]float64) (*fakePriceSource, *fakeBenchmarkSource) {
	ps := &fakePriceSource{data: make(map[string][]*dm.TimeSeriesData)}
	bs := &fakeBenchmarkSource{}
	end := ex.TruncateToDate(testNow)

	for symbol, beta := range betas {
		instrument, benchmark := generateCorrelatedPrices(n, beta, 99)
		for i := range n {
			date := end.AddDate(0, 0, i-n+1)
			ps.data[symbol] = append(ps.data[symbol], &dm.TimeSeriesData{
				Timestamp:     date,
				Close:         null.FloatFrom(instrument[i] * 1.01),
				AdjustedClose: null.FloatFrom(instrument[i]),
			})
			if len(bs.data) < n {
				bs.data = append(bs.data, dm.BenchmarkObservation{Date: date, Value: null.FloatFrom(benchmark[i])})
			}
		}
	}
	return ps, bs
}

func testServiceContext(ps PriceSource, bs BenchmarkSource) *ServiceContext {
	return &ServiceContext{
		PriceSource:     ps,
		BenchmarkSource: bs,
		Universe:        config.DefaultUniverse(),
		Metrics:         NewMetrics(),
		Now:             func() time.Time { return testNow },
	}
}

func TestRunAnalysis(t *testing.T) {
	ps, bs := testSources(400, map[string]float64{"TSLA": 1.8, "AAPL": 1.1})
	sc := testServiceContext(ps, bs)

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{" tsla", "AAPL", "TSLA"}, Years: 1, RiskFreeRate: 0.01})
	require.NoError(t, err)

	assert.Equal(t, []string{"TSLA", "AAPL"}, res.Request.Stocks)
	assert.Equal(t, "2024-10-31", ex.FmtShort(res.Start))
	assert.Equal(t, "2025-10-31", ex.FmtShort(res.End))
	assert.Equal(t, 366, res.Table.Len())
	assert.Equal(t, res.Table.Len()-1, res.Returns.Len())
	assert.NotEmpty(t, res.RunId)

	require.Len(t, res.Profiles, 2)
	assert.Equal(t, "TSLA", res.Profiles[0].InstrumentID)
	assert.InDelta(t, 1.8, res.Profiles[0].Beta, 0.1)
	assert.InDelta(t, 1.1, res.Profiles[1].Beta, 0.1)

	require.Len(t, res.Capm, 2)
	expected := 0.01 + res.Profiles[0].Beta*(res.BenchmarkMeanDailyReturn*252-0.01)
	assert.InDelta(t, expected, res.Capm[0].ExpectedReturn, 1e-12)
	assert.InDelta(t, res.BenchmarkMeanDailyReturn*252, res.BenchmarkAnnualizedReturn, 1e-12)

	assert.Equal(t, 2, int(ps.calls.Load()))
	assert.Equal(t, 1.0, testutil.ToFloat64(sc.Metrics.AnalysisRuns.WithLabelValues(resultOk)))
}

func TestRunAnalysis_UsesConfiguredPriceField(t *testing.T) {
	ps, bs := testSources(100, map[string]float64{"MSFT": 0.9})
	sc := testServiceContext(ps, bs)
	sc.Universe.PriceField = sm.PriceFieldClose

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"MSFT"}, Years: 1})
	require.NoError(t, err)

	first := res.Table.Row(0)
	assert.InDelta(t, ps.data["MSFT"][0].Close.Float64, first.Prices["MSFT"], 1e-9)
}

func TestRunAnalysis_InvalidSelection(t *testing.T) {
	ps, bs := testSources(50, map[string]float64{"TSLA": 1})
	sc := testServiceContext(ps, bs)

	cases := map[string]sm.AnalysisRequest{
		"no stocks":      {Years: 1},
		"blank stocks":   {Stocks: []string{" ", ""}, Years: 1},
		"not allowed":    {Stocks: []string{"TSLA", "IBM"}, Years: 1},
		"zero years":     {Stocks: []string{"TSLA"}, Years: 0},
		"too many years": {Stocks: []string{"TSLA"}, Years: 11},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := sc.RunAnalysis(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidSelection)
			assert.True(t, IsUserError(err))
		})
	}

	assert.Equal(t, int32(0), ps.calls.Load(), "an invalid selection never reaches the source")
	assert.Equal(t, float64(len(cases)), testutil.ToFloat64(sc.Metrics.AnalysisRuns.WithLabelValues(resultUserError)))
}

func TestRunAnalysis_SourceFailureIsDataUnavailable(t *testing.T) {
	ps, bs := testSources(50, map[string]float64{"TSLA": 1})
	providerErr := errors.New("alpha vantage rejected TSLA: Note: rate limit")
	ps.err = providerErr
	sc := testServiceContext(ps, bs)

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"TSLA"}, Years: 1})
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, providerErr)
}

func TestRunAnalysis_BenchmarkFailureIsDataUnavailable(t *testing.T) {
	ps, bs := testSources(50, map[string]float64{"TSLA": 1})
	bs.err = errors.New("api.stlouisfed.org returned 500")
	sc := testServiceContext(ps, bs)

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"TSLA"}, Years: 1})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestRunAnalysis_UnknownSymbolIsDataUnavailable(t *testing.T) {
	ps, bs := testSources(50, map[string]float64{"TSLA": 1})
	sc := testServiceContext(ps, bs)

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"TSLA", "NFLX"}, Years: 1})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestRunAnalysis_EmptyWindowIsDataUnavailable(t *testing.T) {
	ps, bs := testSources(50, map[string]float64{"TSLA": 1})
	sc := testServiceContext(ps, bs)
	sc.Now = func() time.Time { return testNow.AddDate(-3, 0, 0) }

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"TSLA"}, Years: 1})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestBuildAnalysisResponse(t *testing.T) {
	ps, bs := testSources(30, map[string]float64{"GOOGL": 1.234, "AMZN": 0.5})
	sc := testServiceContext(ps, bs)

	analysis, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{Stocks: []string{"GOOGL", "AMZN"}, Years: 1})
	require.NoError(t, err)

	res := BuildAnalysisResponse(analysis)
	assert.Equal(t, BenchmarkColumn, res.Benchmark)
	assert.Equal(t, 30, res.Rows)
	require.Len(t, res.Head, 5)
	require.Len(t, res.Tail, 5)
	assert.Equal(t, ex.FmtShort(analysis.Table.Dates[0]), res.Head[0].Date)
	assert.Equal(t, "2025-10-31", res.Tail[4].Date)
	assert.Contains(t, res.Head[0].Prices, "GOOGL")

	require.Len(t, res.Betas, 2)
	assert.Equal(t, "GOOGL", res.Betas[0].Stock)
	assert.Equal(t, sm.Round2(res.Betas[0].Beta), res.Betas[0].BetaRounded)
	require.Len(t, res.Returns, 2)
	assert.Equal(t, sm.Round2(res.Returns[1].ExpectedReturn), res.Returns[1].ReturnRounded)
}
