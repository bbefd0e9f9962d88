package models

import (
	"time"

	"github.com/guregu/null/v6"
)

type TimeSeriesResult struct {
	Metadata   *TimeSeriesMetadata
	TimeSeries []*TimeSeriesData
}

// TimeSeriesMetadata is one row per symbol, last refreshed drives the weekly sync cutoff
type TimeSeriesMetadata struct {
	Id            int32       `db:"id"`
	Information   null.String `db:"-"`
	Symbol        string      `db:"symbol"`
	LastRefreshed time.Time   `db:"last_refreshed"`
	OutputSize    null.String `db:"-"`
	TimeZone      string      `db:"-"`
}

// TimeSeriesData is a single provider observation. Every field is nullable since providers
// occasionally send values that are not numbers; those stay invalid rather than becoming zero.
type TimeSeriesData struct {
	SourceId       int32      `db:"source_id"`
	Timestamp      time.Time  `db:"timestamp"`
	Open           null.Float `db:"open"`
	High           null.Float `db:"high"`
	Low            null.Float `db:"low"`
	Close          null.Float `db:"close"`
	AdjustedClose  null.Float `db:"adjusted_close"`
	Volume         null.Float `db:"volume"`
	DividendAmount null.Float `db:"dividend_amount"`
}

// BenchmarkObservation is a single index value, Value is invalid when the publisher reported no value for the date
type BenchmarkObservation struct {
	Date  time.Time
	Value null.Float
}
