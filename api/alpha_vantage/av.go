package alpha_vantage

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"

	c "capm.service/api"
	e "capm.service/data/extensions"
	m "capm.service/data/models"
)

// public
const (
	HostDefault = "www.alphavantage.co"

	OutputSizeCompact = "compact"
	OutputSizeFull    = "full"
)

// private
const (
	// default query parameters
	defaultDataType = "json"
	defaultTimeout  = time.Second * 30

	// compact responses carry the latest 100 observations
	compactObservations = 100

	// api request elements
	query      = "query"
	apiKey     = "apikey"
	dataType   = "datatype"
	outputSize = "outputsize"
	symbol     = "symbol"
	function   = "function"
)

var (
	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}

	// struct field -> suffix of the numbered json key, "1. open", "5. adjusted close", ...
	timeSeriesResultKeys = map[string]string{
		"Open":           ". open",
		"High":           ". high",
		"Low":            ". low",
		"Close":          ". close",
		"AdjustedClose":  ". adjusted close",
		"Volume":         ". volume",
		"DividendAmount": ". dividend amount",
	}

	// keys alpha vantage uses for a 200 response that carries no data
	errorKeys = []string{"Error Message", "Note", "Information"}
)

type AlphaVantageClient struct {
	*c.Client
	TimeSeries TimeSeries
}

func GetClient(apiKey string, requestsPerMinute int, timeSeries TimeSeries) AlphaVantageClient {
	return AlphaVantageClient{
		Client:     c.ClientFactory(HostDefault, apiKey, defaultTimeout, c.WithRequestsPerMinute(requestsPerMinute)),
		TimeSeries: timeSeries,
	}
}

// https://www.alphavantage.co/documentation/#dailyadj
func (avc *AlphaVantageClient) GetStockDailyMetrics(ctx context.Context, ticker string, size string) (*m.TimeSeriesResult, error) {
	if avc == nil || avc.Client == nil {
		panic("alpha vantage client has not been set.")
	}

	endpoint := avc.buildRequestPath(map[string]string{
		function:   avc.TimeSeries.Function(),
		symbol:     ticker,
		outputSize: size,
	})

	response, err := avc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	defer response.Body.Close()

	raw, err := parseRawJson(response.Body)
	if err != nil {
		return nil, err
	}

	if err := checkErrorResponse(raw); err != nil {
		return nil, fmt.Errorf("alpha vantage rejected %s: %w", ticker, err)
	}

	metaData, timeZone, err := parseMetaData(raw)
	if err != nil {
		return nil, err
	}

	timeSeriesData, err := parseTimeSeriesDataResult(raw, avc.TimeSeries.TimeSeriesKey(), timeZone)
	if err != nil {
		return nil, err
	}

	return &m.TimeSeriesResult{
		Metadata:   metaData,
		TimeSeries: timeSeriesData,
	}, nil
}

// GetPriceHistory returns the observations between start and end inclusive, oldest first
func (avc *AlphaVantageClient) GetPriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]*m.TimeSeriesData, error) {
	res, err := avc.GetStockDailyMetrics(ctx, ticker, OutputSizeFor(start, time.Now()))
	if err != nil {
		return nil, err
	}

	from := e.TruncateToDate(start)
	to := e.TruncateToDate(end)
	f := func(d *m.TimeSeriesData) bool {
		day := e.TruncateToDate(d.Timestamp)
		return !day.Before(from) && !day.After(to)
	}
	inRange := e.FilterMultiplePtr(res.TimeSeries, f)

	log.Debug().Str("symbol", ticker).Int("received", len(res.TimeSeries)).Int("in_range", len(inRange)).Msg("alpha vantage time series")
	return inRange, nil
}

// OutputSizeFor asks for the full history only when the compact window cannot cover start
func OutputSizeFor(start, now time.Time) string {
	// 100 trading days is a little under five calendar months
	if now.Sub(start) > time.Duration(compactObservations)*24*time.Hour*7/5 {
		return OutputSizeFull
	}
	return OutputSizeCompact
}

func (avc *AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	// build our URL
	endpoint := &url.URL{}
	endpoint.Path = query

	// base parameters
	query := endpoint.Query()
	query.Set(apiKey, avc.Client.ApiKey)
	query.Set(dataType, defaultDataType)
	query.Set(outputSize, OutputSizeCompact)

	// additional parameters
	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(reader io.Reader) (raw map[string]json.RawMessage, err error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	// converting to a <string, raw message> map
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return
}

func checkErrorResponse(raw map[string]json.RawMessage) error {
	if _, ok := raw["Meta Data"]; ok {
		return nil
	}

	for _, key := range errorKeys {
		if msg, ok := raw[key]; ok {
			var text string
			if err := json.Unmarshal(msg, &text); err != nil {
				text = string(msg)
			}
			return fmt.Errorf("%s: %s", key, text)
		}
	}

	return fmt.Errorf("response has no meta data, keys: %v", slices.Sorted(maps.Keys(raw)))
}

func parseMetaData(raw map[string]json.RawMessage) (*m.TimeSeriesMetadata, *time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw["Meta Data"], &metadataElements); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	metaDataKeys := slices.Collect(maps.Keys(metadataElements))

	// parse symbol
	sf := func(s string) bool { return strings.HasSuffix(s, ". Symbol") }
	symbolKey, err := e.FilterSingle(metaDataKeys, sf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting symbol for meta data")
	}

	// parse time zone
	tzf := func(s string) bool { return strings.HasSuffix(s, ". Time Zone") }
	timeZoneKey, err := e.FilterSingle(metaDataKeys, tzf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting time zone for meta data")
	}

	timeZone, err := getTimeZone(metadataElements[timeZoneKey])
	if err != nil {
		return nil, nil, fmt.Errorf("error converting time zone key %s, to time.Location: %w", metadataElements[timeZoneKey], err)
	}

	// parse last refreshed
	lrf := func(s string) bool { return strings.HasSuffix(s, ". Last Refreshed") }
	lastRefreshedKey, err := e.FilterSingle(metaDataKeys, lrf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting last refreshed date")
	}

	lastRefreshed, err := parseDate(metadataElements[lastRefreshedKey], timeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing last refreshed date")
	}

	res := m.TimeSeriesMetadata{
		Symbol:        metadataElements[symbolKey],
		LastRefreshed: lastRefreshed,
		TimeZone:      metadataElements[timeZoneKey],
		Information:   optionalMetaData(metadataElements, metaDataKeys, ". Information"),
		OutputSize:    optionalMetaData(metadataElements, metaDataKeys, ". Output Size"),
	}

	return &res, timeZone, nil
}

func optionalMetaData(elements map[string]string, keys []string, suffix string) null.String {
	key, err := e.FilterSingle(keys, func(s string) bool { return strings.HasSuffix(s, suffix) })
	if err != nil {
		return null.String{}
	}
	return null.StringFrom(elements[key])
}

func parseTimeSeriesDataResult(raw map[string]json.RawMessage, key string, location *time.Location) ([]*m.TimeSeriesData, error) {
	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(raw[key], &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series %q: %w", key, err)
	}

	if len(timeSeriesElements) == 0 {
		return nil, fmt.Errorf("time series %q has no observations", key)
	}

	// populate the lookups
	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}

	lookup, err := getLookupKey(timeSeriesResultKeys, firstValue)
	if err != nil {
		return nil, err
	}

	timeSeries := make([]*m.TimeSeriesData, 0, len(timeSeriesElements))
	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		// get timestamp
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		data := &m.TimeSeriesData{Timestamp: timestamp}
		if err := parseFields(data, timeSeriesValue, lookup); err != nil {
			return nil, fmt.Errorf("error parsing observation %s: %w", timeSeriesKey, err)
		}

		timeSeries = append(timeSeries, data)
	}

	// map iteration order is random, callers get the observations oldest first
	slices.SortFunc(timeSeries, func(a, b *m.TimeSeriesData) int {
		return cmp.Compare(a.Timestamp.Unix(), b.Timestamp.Unix())
	})

	return timeSeries, nil
}

func parseFields(res *m.TimeSeriesData, value, lookup map[string]string) error {
	v := reflect.ValueOf(res).Elem()
	for jsonKey, structAttribute := range lookup {
		field := v.FieldByName(structAttribute)
		if !field.IsValid() {
			return fmt.Errorf("field %s does not exist", structAttribute)
		}
		if !field.CanSet() {
			return fmt.Errorf("field %s cannot be set", structAttribute)
		}

		field.Set(reflect.ValueOf(parseFloat(value[jsonKey])))
	}
	return nil
}

func getLookupKey(expectedKeys, values map[string]string) (map[string]string, error) {
	res := make(map[string]string)
	responseValueHeaders := slices.Collect(maps.Keys(values))

	for key, value := range expectedKeys {
		f := func(s string) bool {
			return strings.HasSuffix(strings.ToLower(s), strings.ToLower(value))
		}
		if jsonKey, err := e.FilterSingle(responseValueHeaders, f); err == nil {
			res[jsonKey] = key
		}
	}

	if len(res) == 0 {
		ex := slices.Sorted(maps.Keys(values))
		return nil, fmt.Errorf("error generating key value map from av response object. Available headers: %v", ex)
	}

	return res, nil
}

func getTimeZone(location string) (*time.Location, error) {
	var loc string
	switch strings.ToUpper(location) {
	case "US/EASTERN":
		loc = "America/New_York"
	default:
		log.Warn().Str("time_zone", location).Msg("time zone is not recognized, using UTC")
		return time.UTC, nil
	}

	res, err := time.LoadLocation(loc)
	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", loc)
	}

	return res, nil
}

func parseDate(dateString string, location *time.Location) (time.Time, error) {
	for _, format := range timeSeriesDateFormats {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}

// parseFloat leaves the value invalid when the provider sent something that is not a number
func parseFloat(val string) null.Float {
	if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return null.FloatFrom(f)
	}
	return null.Float{}
}
