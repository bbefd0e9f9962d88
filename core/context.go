package core

import (
	"context"
	"time"

	av "capm.service/api/alpha_vantage"
	"capm.service/config"
	dm "capm.service/data/models"
	r "capm.service/data/repos"
)

// PriceSource returns an instrument's daily observations between start and end inclusive
type PriceSource interface {
	GetPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*dm.TimeSeriesData, error)
}

// BenchmarkSource returns a benchmark series' daily values between start and end inclusive
type BenchmarkSource interface {
	GetBenchmarkHistory(ctx context.Context, series string, start, end time.Time) ([]dm.BenchmarkObservation, error)
}

type ServiceContext struct {
	PriceSource     PriceSource
	BenchmarkSource BenchmarkSource
	Universe        config.Universe
	Metrics         *Metrics

	// only needed by sync, nil when prices come straight from alpha vantage
	PostgresConnection *r.Postgres
	AlphaVantageClient *av.AlphaVantageClient

	Now func() time.Time
}

func (sc *ServiceContext) now() time.Time {
	if sc.Now != nil {
		return sc.Now()
	}
	return time.Now()
}
