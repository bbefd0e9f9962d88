package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	ex "capm.service/data/extensions"
	sm "capm.service/models"
)

const (
	PriceSourceAlphaVantage = "alphavantage"
	PriceSourcePostgres     = "postgres"

	DefaultAddr = ":8080"
)

type Config struct {
	AlphaVantageApiKey string
	FredApiKey         string
	DatabaseUrl        string
	Addr               string
	PriceSource        string
	LogLevel           zerolog.Level
	Universe           Universe
}

// Universe is everything about a run that is not picked by the user
type Universe struct {
	AllowedStocks      []string `yaml:"allowed_stocks"`
	DefaultStocks      []string `yaml:"default_stocks"`
	BenchmarkSeries    string   `yaml:"benchmark_series"`
	PriceField         string   `yaml:"price_field"`
	RiskFreeRate       float64  `yaml:"risk_free_rate"`
	TradingDaysPerYear int      `yaml:"trading_days_per_year"`
	MinYears           int      `yaml:"min_years"`
	MaxYears           int      `yaml:"max_years"`

	// alpha vantage free tier allows 5 requests a minute
	AlphaVantageRequestsPerMinute int `yaml:"alphavantage_requests_per_minute"`
}

func DefaultUniverse() Universe {
	return Universe{
		AllowedStocks:                 slices.Clone(sm.AllowedStocks),
		DefaultStocks:                 slices.Clone(sm.DefaultStocks),
		BenchmarkSeries:               sm.BenchmarkSeries,
		PriceField:                    sm.PriceFieldAdjustedClose,
		RiskFreeRate:                  0,
		TradingDaysPerYear:            sm.Daily,
		MinYears:                      sm.MinYears,
		MaxYears:                      sm.MaxYears,
		AlphaVantageRequestsPerMinute: 5,
	}
}

// Load reads .env if present, then the environment, then the optional universe file named by CAPM_UNIVERSE
func Load() (Config, error) {
	// load in environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg(".env not loaded")
	}

	cfg := Config{
		AlphaVantageApiKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
		FredApiKey:         os.Getenv("FRED_API_KEY"),
		DatabaseUrl:        os.Getenv("DATABASE_URL"),
		Addr:               envOr("ADDR", DefaultAddr),
		PriceSource:        strings.ToLower(envOr("PRICE_SOURCE", PriceSourceAlphaVantage)),
		LogLevel:           zerolog.InfoLevel,
		Universe:           DefaultUniverse(),
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return cfg, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
		cfg.LogLevel = parsed
	}

	if path := os.Getenv("CAPM_UNIVERSE"); path != "" {
		universe, err := LoadUniverse(path)
		if err != nil {
			return cfg, err
		}
		cfg.Universe = universe
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadUniverse reads a yaml file on top of the defaults, keys missing from the file keep their default
func LoadUniverse(path string) (Universe, error) {
	res := DefaultUniverse()

	content, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("error reading universe file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, &res); err != nil {
		return res, fmt.Errorf("error parsing universe file %s: %w", path, err)
	}

	for i, s := range res.AllowedStocks {
		res.AllowedStocks[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i, s := range res.DefaultStocks {
		res.DefaultStocks[i] = strings.ToUpper(strings.TrimSpace(s))
	}

	return res, res.Validate()
}

func (c Config) Validate() error {
	switch c.PriceSource {
	case PriceSourceAlphaVantage, PriceSourcePostgres:
	default:
		return fmt.Errorf("PRICE_SOURCE must be %s or %s, got %q", PriceSourceAlphaVantage, PriceSourcePostgres, c.PriceSource)
	}
	return c.Universe.Validate()
}

func (u Universe) Validate() error {
	if len(u.AllowedStocks) == 0 {
		return fmt.Errorf("universe has no allowed stocks")
	}
	for _, s := range u.DefaultStocks {
		if !ex.Contains(u.AllowedStocks, s) {
			return fmt.Errorf("default stock %s is not in the allowed list", s)
		}
	}
	if u.BenchmarkSeries == "" {
		return fmt.Errorf("universe has no benchmark series")
	}
	if u.PriceField != sm.PriceFieldAdjustedClose && u.PriceField != sm.PriceFieldClose {
		return fmt.Errorf("price field must be %s or %s, got %q", sm.PriceFieldAdjustedClose, sm.PriceFieldClose, u.PriceField)
	}
	if u.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading days per year must be positive, got %d", u.TradingDaysPerYear)
	}
	if u.MinYears < 1 || u.MaxYears < u.MinYears {
		return fmt.Errorf("invalid year bounds [%d, %d]", u.MinYears, u.MaxYears)
	}
	if u.AlphaVantageRequestsPerMinute <= 0 {
		return fmt.Errorf("alpha vantage requests per minute must be positive, got %d", u.AlphaVantageRequestsPerMinute)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
