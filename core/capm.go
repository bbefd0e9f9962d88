package core

import (
	sm "capm.service/models"
)

type CapmSettings struct {
	TradingDaysPerYear int
	RiskFreeRate       float64
}

type CapmResult struct {
	InstrumentID   string
	ExpectedReturn float64
}

func DefaultCapmSettings() CapmSettings {
	return CapmSettings{
		TradingDaysPerYear: sm.Daily,
		RiskFreeRate:       0,
	}
}

// AnnualizedReturn scales a mean daily return by the trading days in a year
func (s CapmSettings) AnnualizedReturn(meanDailyReturn float64) float64 {
	return meanDailyReturn * float64(s.tradingDays())
}

func (s CapmSettings) tradingDays() int {
	if s.TradingDaysPerYear <= 0 {
		return sm.Daily
	}
	return s.TradingDaysPerYear
}

// EvaluateCapm computes rf + beta * (annualized benchmark return - rf) per instrument.
// An undefined beta gives an undefined expected return.
func EvaluateCapm(betas map[string]float64, benchmarkMeanDailyReturn float64, settings CapmSettings) map[string]float64 {
	marketReturn := settings.AnnualizedReturn(benchmarkMeanDailyReturn)

	res := make(map[string]float64, len(betas))
	for id, beta := range betas {
		res[id] = settings.RiskFreeRate + beta*(marketReturn-settings.RiskFreeRate)
	}
	return res
}

// CapmResults evaluates every profile and keeps the profiles' order
func CapmResults(profiles []RiskProfile, benchmarkMeanDailyReturn float64, settings CapmSettings) []CapmResult {
	betas := make(map[string]float64, len(profiles))
	for _, p := range profiles {
		betas[p.InstrumentID] = p.Beta
	}

	expected := EvaluateCapm(betas, benchmarkMeanDailyReturn, settings)

	res := make([]CapmResult, len(profiles))
	for i, p := range profiles {
		res[i] = CapmResult{InstrumentID: p.InstrumentID, ExpectedReturn: expected[p.InstrumentID]}
	}
	return res
}
