package models

const (
	Daily     = 252
	Weekly    = 52
	Monthly   = 12
	Quarterly = 4
	Yearly    = 1
)

const (
	MinYears = 1
	MaxYears = 10

	// BenchmarkSeries is the FRED series id of the S&P 500 index
	BenchmarkSeries = "SP500"

	// PriceFieldAdjustedClose is the provider field used as the instrument price unless configured otherwise
	PriceFieldAdjustedClose = "AdjustedClose"
	PriceFieldClose         = "Close"
)

var (
	AllowedStocks = []string{"TSLA", "AAPL", "NFLX", "MSFT", "MGM", "AMZN", "NVDA", "GOOGL"}
	DefaultStocks = []string{"TSLA", "AAPL", "AMZN", "GOOGL"}
)

// StocksResponse lists what a caller may select
type StocksResponse struct {
	Allowed  []string `json:"allowed"`
	Defaults []string `json:"defaults"`
	MinYears int      `json:"minYears"`
	MaxYears int      `json:"maxYears"`
}
