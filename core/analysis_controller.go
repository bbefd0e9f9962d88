package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	ex "capm.service/data/extensions"
	sm "capm.service/models"
)

const previewRows = 5

// Analysis is everything one run computed, it is discarded once rendered
type Analysis struct {
	RunId    string
	Request  sm.AnalysisRequest
	Start    time.Time
	End      time.Time
	Settings CapmSettings

	Table    *AlignedPriceTable
	Returns  *ReturnTable
	Profiles []RiskProfile
	Capm     []CapmResult

	BenchmarkMeanDailyReturn  float64
	BenchmarkAnnualizedReturn float64
	Elapsed                   time.Duration
}

// ValidateRequest normalizes the stock symbols and checks them and the window against the universe
func (sc *ServiceContext) ValidateRequest(req sm.AnalysisRequest) (sm.AnalysisRequest, error) {
	res := sm.AnalysisRequest{
		Years:        req.Years,
		RiskFreeRate: req.RiskFreeRate,
	}

	for _, s := range req.Stocks {
		symbol := strings.ToUpper(strings.TrimSpace(s))
		if symbol == "" || ex.Contains(res.Stocks, symbol) {
			continue
		}
		if !ex.Contains(sc.Universe.AllowedStocks, symbol) {
			return res, invalidSelection("%s is not one of %s", symbol, strings.Join(sc.Universe.AllowedStocks, ", "))
		}
		res.Stocks = append(res.Stocks, symbol)
	}

	if len(res.Stocks) == 0 {
		return res, invalidSelection("select at least one stock")
	}

	if req.Years < sc.Universe.MinYears || req.Years > sc.Universe.MaxYears {
		return res, invalidSelection("years must be between %d and %d, got %d", sc.Universe.MinYears, sc.Universe.MaxYears, req.Years)
	}

	if math.IsNaN(req.RiskFreeRate) || math.IsInf(req.RiskFreeRate, 0) {
		return res, invalidSelection("risk free rate must be a finite number")
	}

	return res, nil
}

// Window is the calendar range of a request ending today, the same month and day years ago
func (sc *ServiceContext) Window(years int) (time.Time, time.Time) {
	end := ex.TruncateToDate(sc.now())
	return end.AddDate(-years, 0, 0), end
}

// RunAnalysis fetches the selected stocks and the benchmark, aligns them, and computes every
// beta, alpha and CAPM expected return. Any failure fails the whole run.
func (sc *ServiceContext) RunAnalysis(ctx context.Context, req sm.AnalysisRequest) (res *Analysis, err error) {
	start := time.Now()
	runId := uuid.NewString()
	logger := log.With().Str("run_id", runId).Logger()

	defer func() {
		sc.Metrics.observeRun(err)
		if err != nil {
			logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("analysis failed")
		}
	}()

	req, err = sc.ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	from, to := sc.Window(req.Years)
	logger.Info().Strs("stocks", req.Stocks).Int("years", req.Years).Str("start", ex.FmtShort(from)).Str("end", ex.FmtShort(to)).Msg("received analysis request")

	logger.Debug().Dur("elapsed", time.Since(start)).Msg("fetching price history")
	t := time.Now()
	instruments, benchmark, err := sc.fetch(ctx, logger, req.Stocks, from, to)
	sc.Metrics.observeStage("fetch", t)
	if err != nil {
		return nil, err
	}

	logger.Debug().Dur("elapsed", time.Since(start)).Msg("aligning price history")
	t = time.Now()
	table, err := Align(instruments, benchmark)
	sc.Metrics.observeStage("align", t)
	if err != nil {
		return nil, err
	}
	if sc.Metrics != nil {
		sc.Metrics.AlignedRows.Observe(float64(table.Len()))
	}

	logger.Debug().Dur("elapsed", time.Since(start)).Int("rows", table.Len()).Msg("calculating daily returns")
	t = time.Now()
	returns := DailyReturns(table)

	profiles, err := CalculateRiskProfiles(returns)
	if err != nil {
		return nil, err
	}

	meanDaily, err := BenchmarkMeanDailyReturn(returns)
	if err != nil {
		return nil, err
	}
	sc.Metrics.observeStage("statistics", t)

	settings := CapmSettings{
		TradingDaysPerYear: sc.Universe.TradingDaysPerYear,
		RiskFreeRate:       req.RiskFreeRate,
	}

	res = &Analysis{
		RunId:                     runId,
		Request:                   req,
		Start:                     from,
		End:                       to,
		Settings:                  settings,
		Table:                     table,
		Returns:                   returns,
		Profiles:                  orderProfiles(profiles, req.Stocks),
		BenchmarkMeanDailyReturn:  meanDaily,
		BenchmarkAnnualizedReturn: settings.AnnualizedReturn(meanDaily),
	}
	res.Capm = CapmResults(res.Profiles, meanDaily, settings)
	res.Elapsed = time.Since(start)

	logger.Info().Dur("elapsed", res.Elapsed).Int("rows", table.Len()).Msg("analysis completed")
	return res, nil
}

// fetch loads every stock and the benchmark concurrently, the first failure cancels the rest
func (sc *ServiceContext) fetch(ctx context.Context, logger zerolog.Logger, stocks []string, from, to time.Time) (map[string][]PricePoint, []BenchmarkPoint, error) {
	var mu sync.Mutex
	instruments := make(map[string][]PricePoint, len(stocks))
	var benchmark []BenchmarkPoint

	g, ctx := errgroup.WithContext(ctx)

	for _, symbol := range stocks {
		g.Go(func() error {
			data, err := sc.PriceSource.GetPriceHistory(ctx, symbol, from, to)
			if err != nil {
				return fmt.Errorf("%w: price history for %s: %w", ErrDataUnavailable, symbol, err)
			}

			frame, err := NewInstrumentFrame(symbol, data)
			if err != nil {
				return err
			}

			series, err := frame.PriceSeries(sc.Universe.PriceField)
			if err != nil {
				return err
			}

			logger.Debug().Str("symbol", symbol).Int("observations", frame.Len()).Int("prices", len(series)).Msg("price history loaded")

			mu.Lock()
			defer mu.Unlock()
			instruments[symbol] = series
			return nil
		})
	}

	g.Go(func() error {
		observations, err := sc.BenchmarkSource.GetBenchmarkHistory(ctx, sc.Universe.BenchmarkSeries, from, to)
		if err != nil {
			return fmt.Errorf("%w: benchmark %s: %w", ErrDataUnavailable, sc.Universe.BenchmarkSeries, err)
		}

		series, err := BenchmarkSeries(sc.Universe.BenchmarkSeries, observations)
		if err != nil {
			return err
		}

		logger.Debug().Str("series", sc.Universe.BenchmarkSeries).Int("observations", len(observations)).Int("values", len(series)).Msg("benchmark loaded")
		benchmark = series
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return instruments, benchmark, nil
}

// orderProfiles puts the profiles back in the order the stocks were selected
func orderProfiles(profiles []RiskProfile, stocks []string) []RiskProfile {
	byId := make(map[string]RiskProfile, len(profiles))
	for _, p := range profiles {
		byId[p.InstrumentID] = p
	}

	res := make([]RiskProfile, 0, len(profiles))
	for _, s := range stocks {
		if p, ok := byId[s]; ok {
			res = append(res, p)
		}
	}
	return res
}

// BuildAnalysisResponse maps a run onto the display model, beta and return are also given rounded
func BuildAnalysisResponse(a *Analysis) *sm.AnalysisResponse {
	res := &sm.AnalysisResponse{
		RunId:                     a.RunId,
		Start:                     ex.FmtShort(a.Start),
		End:                       ex.FmtShort(a.End),
		Stocks:                    a.Request.Stocks,
		Benchmark:                 BenchmarkColumn,
		RiskFreeRate:              a.Settings.RiskFreeRate,
		Rows:                      a.Table.Len(),
		Head:                      mapPriceRows(a.Table.Head(previewRows)),
		Tail:                      mapPriceRows(a.Table.Tail(previewRows)),
		Betas:                     make([]sm.BetaRow, len(a.Profiles)),
		Returns:                   make([]sm.CapmRow, len(a.Capm)),
		BenchmarkAnnualizedReturn: a.BenchmarkAnnualizedReturn,
		Elapsed:                   sm.JsonDuration(a.Elapsed),
	}

	for i, p := range a.Profiles {
		res.Betas[i] = sm.BetaRow{
			Stock:       p.InstrumentID,
			Beta:        p.Beta,
			Alpha:       p.Alpha,
			BetaRounded: sm.Round2(p.Beta),
		}
	}

	for i, c := range a.Capm {
		res.Returns[i] = sm.CapmRow{
			Stock:          c.InstrumentID,
			ExpectedReturn: c.ExpectedReturn,
			ReturnRounded:  sm.Round2(c.ExpectedReturn),
		}
	}

	return res
}

func mapPriceRows(rows []PriceRow) []sm.PriceRow {
	res := make([]sm.PriceRow, len(rows))
	for i, r := range rows {
		res[i] = sm.PriceRow{
			Date:      ex.FmtShort(r.Date),
			Prices:    r.Prices,
			Benchmark: r.Benchmark,
		}
	}
	return res
}
