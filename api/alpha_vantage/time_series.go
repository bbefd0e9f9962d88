package alpha_vantage

import (
	"strings"
)

type TimeSeries uint8

// TimeSeries specifies a daily endpoint to query for stock data.
const (
	TimeSeriesDaily TimeSeries = iota
	TimeSeriesDailyAdjusted
)

func (t TimeSeries) Name() string {
	switch t {
	case TimeSeriesDaily:
		return "TimeSeriesDaily"
	case TimeSeriesDailyAdjusted:
		return "TimeSeriesDailyAdjusted"
	default:
		return ""
	}
}

func (t TimeSeries) Function() string {
	switch t {
	case TimeSeriesDaily:
		return "TIME_SERIES_DAILY"
	case TimeSeriesDailyAdjusted:
		return "TIME_SERIES_DAILY_ADJUSTED"
	default:
		return ""
	}
}

// TimeSeriesKey is the top level json key holding the observations, both daily endpoints share it
func (t TimeSeries) TimeSeriesKey() string {
	switch t {
	case TimeSeriesDaily, TimeSeriesDailyAdjusted:
		return "Time Series (Daily)"
	default:
		return ""
	}
}

func (t TimeSeries) IsAdjusted() bool {
	return strings.HasSuffix(t.Function(), "_ADJUSTED")
}

// TimeSeriesForField picks the cheapest endpoint that carries the requested price field
func TimeSeriesForField(field string) TimeSeries {
	if strings.EqualFold(field, "AdjustedClose") {
		return TimeSeriesDailyAdjusted
	}
	return TimeSeriesDaily
}
