package core

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// a benchmark whose return variance is at or below this is treated as flat, rounding on
// constant returns leaves variances around 1e-34 rather than exact zeros
const minBenchmarkVariance = 1e-20

type RiskProfile struct {
	InstrumentID string
	Beta         float64
	Alpha        float64
	Samples      int
}

// CalculateBeta regresses the instrument's daily returns on the benchmark's over the whole window.
// beta = Cov(r_i, r_m) / Var(r_m), alpha = mean(r_i) - beta * mean(r_m). Only dates where both
// returns are defined are used.
func CalculateBeta(returns *ReturnTable, instrumentID string) (beta, alpha float64, err error) {
	profile, err := calculateRiskProfile(returns, instrumentID)
	if err != nil {
		return 0, 0, err
	}
	return profile.Beta, profile.Alpha, nil
}

// CalculateRiskProfiles returns a profile per instrument in the table's order, the first instrument
// that cannot be computed fails the whole set
func CalculateRiskProfiles(returns *ReturnTable) ([]RiskProfile, error) {
	if returns == nil || len(returns.Instruments) == 0 {
		return nil, degenerate("return table has no instruments")
	}

	res := make([]RiskProfile, 0, len(returns.Instruments))
	for _, id := range returns.Instruments {
		profile, err := calculateRiskProfile(returns, id)
		if err != nil {
			return nil, err
		}
		res = append(res, profile)
	}
	return res, nil
}

// BenchmarkMeanDailyReturn is the mean of the defined benchmark returns
func BenchmarkMeanDailyReturn(returns *ReturnTable) (float64, error) {
	benchmark, ok := returns.Column(BenchmarkColumn)
	if !ok {
		return 0, dataUnavailable("return table has no %s column", BenchmarkColumn)
	}

	defined := make([]float64, 0, len(benchmark))
	for _, r := range benchmark {
		if !math.IsNaN(r) {
			defined = append(defined, r)
		}
	}

	if len(defined) == 0 {
		return 0, degenerate("benchmark has no defined returns")
	}

	return stat.Mean(defined, nil), nil
}

func calculateRiskProfile(returns *ReturnTable, instrumentID string) (RiskProfile, error) {
	instrument, ok := returns.Column(instrumentID)
	if !ok {
		return RiskProfile{}, dataUnavailable("return table has no %s column", instrumentID)
	}

	benchmark, ok := returns.Column(BenchmarkColumn)
	if !ok {
		return RiskProfile{}, dataUnavailable("return table has no %s column", BenchmarkColumn)
	}

	x, m := pairwiseComplete(instrument, benchmark)
	if len(x) < 2 {
		return RiskProfile{}, degenerate("%s has %d paired returns, at least 2 are needed", instrumentID, len(x))
	}

	variance := stat.Variance(m, nil)
	if math.IsNaN(variance) || variance <= minBenchmarkVariance {
		return RiskProfile{}, degenerate("benchmark variance is zero over the window, beta of %s is undefined", instrumentID)
	}

	beta := stat.Covariance(x, m, nil) / variance
	alpha := stat.Mean(x, nil) - beta*stat.Mean(m, nil)
	if math.IsNaN(beta) || math.IsInf(beta, 0) || math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return RiskProfile{}, degenerate("beta of %s is not finite", instrumentID)
	}

	return RiskProfile{
		InstrumentID: instrumentID,
		Beta:         beta,
		Alpha:        alpha,
		Samples:      len(x),
	}, nil
}

func pairwiseComplete(x, y []float64) ([]float64, []float64) {
	n := min(len(x), len(y))
	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	for i := range n {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys
}
