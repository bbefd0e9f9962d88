package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"

	c "capm.service/api"
	m "capm.service/data/models"
)

const (
	HostDefault = "api.stlouisfed.org"
)

const (
	defaultTimeout  = time.Second * 30
	defaultFileType = "json"

	// fred publishes a single dot for dates without a value, holidays mostly
	missingValue = "."

	observations     = "fred/series/observations"
	seriesId         = "series_id"
	apiKey           = "api_key"
	fileType         = "file_type"
	observationStart = "observation_start"
	observationEnd   = "observation_end"
)

type FredClient struct {
	*c.Client
}

type observationsResponse struct {
	Count        int           `json:"count"`
	Observations []observation `json:"observations"`
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

func GetClient(apiKey string) FredClient {
	return FredClient{
		Client: c.ClientFactory(HostDefault, apiKey, defaultTimeout),
	}
}

// GetBenchmarkHistory returns the series observations between start and end inclusive, oldest first.
// https://fred.stlouisfed.org/docs/api/fred/series_observations.html
func (fc *FredClient) GetBenchmarkHistory(ctx context.Context, series string, start, end time.Time) ([]m.BenchmarkObservation, error) {
	if fc == nil || fc.Client == nil {
		panic("fred client has not been set.")
	}

	endpoint := fc.buildRequestPath(map[string]string{
		seriesId:         series,
		observationStart: start.Format(time.DateOnly),
		observationEnd:   end.Format(time.DateOnly),
	})

	response, err := fc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading fred response body: %w", err)
	}

	var res observationsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("error unmarshaling fred observations for %s: %w", series, err)
	}

	if len(res.Observations) == 0 {
		return nil, fmt.Errorf("fred returned no observations for %s between %s and %s", series, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	parsed := make([]m.BenchmarkObservation, 0, len(res.Observations))
	missing := 0
	for _, o := range res.Observations {
		date, err := time.Parse(time.DateOnly, o.Date)
		if err != nil {
			return nil, fmt.Errorf("error parsing fred observation date %q: %w", o.Date, err)
		}

		value := parseValue(o.Value)
		if !value.Valid {
			missing++
		}

		parsed = append(parsed, m.BenchmarkObservation{Date: date, Value: value})
	}

	log.Debug().Str("series", series).Int("received", len(parsed)).Int("missing", missing).Msg("fred observations")
	return parsed, nil
}

func (fc *FredClient) buildRequestPath(params map[string]string) *url.URL {
	endpoint := &url.URL{}
	endpoint.Path = observations

	query := endpoint.Query()
	query.Set(apiKey, fc.Client.ApiKey)
	query.Set(fileType, defaultFileType)

	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseValue(val string) null.Float {
	val = strings.TrimSpace(val)
	if val == missingValue {
		return null.Float{}
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return null.FloatFrom(f)
	}
	return null.Float{}
}
