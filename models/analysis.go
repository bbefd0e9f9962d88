package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// AnalysisRequest is one user selection, it is the only input to an analysis run
type AnalysisRequest struct {
	Stocks       []string `json:"stocks"`
	Years        int      `json:"years"`
	RiskFreeRate float64  `json:"riskFreeRate"`
}

// AnalysisResponse is what the caller displays, values ending in Rounded are kept to two decimals
type AnalysisResponse struct {
	RunId                     string       `json:"runId"`
	Start                     string       `json:"start"`
	End                       string       `json:"end"`
	Stocks                    []string     `json:"stocks"`
	Benchmark                 string       `json:"benchmark"`
	RiskFreeRate              float64      `json:"riskFreeRate"`
	Rows                      int          `json:"rows"`
	Head                      []PriceRow   `json:"head"`
	Tail                      []PriceRow   `json:"tail"`
	Betas                     []BetaRow    `json:"betas"`
	Returns                   []CapmRow    `json:"returns"`
	BenchmarkAnnualizedReturn float64      `json:"benchmarkAnnualizedReturn"`
	Elapsed                   JsonDuration `json:"elapsed"`
}

type PriceRow struct {
	Date      string             `json:"date"`
	Prices    map[string]float64 `json:"prices"`
	Benchmark float64            `json:"benchmark"`
}

type BetaRow struct {
	Stock       string  `json:"stock"`
	Beta        float64 `json:"beta"`
	Alpha       float64 `json:"alpha"`
	BetaRounded float64 `json:"betaRounded"`
}

type CapmRow struct {
	Stock          string  `json:"stock"`
	ExpectedReturn float64 `json:"expectedReturn"`
	ReturnRounded  float64 `json:"returnRounded"`
}

// JsonDuration renders as a human readable string rather than nanoseconds
type JsonDuration time.Duration

func (d JsonDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).Round(time.Millisecond).String()), nil
}

func (d *JsonDuration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = JsonDuration(parsed)
	return nil
}

// Round2 rounds half away from zero to two decimals, the precision values are displayed at
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	res, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return res
}
