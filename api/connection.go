package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	SchemeHttps = "https"

	errorPreviewLength = 120
)

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

// ClientHost sends every request to one host. Requests wait on the limiter and are refused
// while the breaker is open, so a provider that is down fails fast instead of timing out per symbol.
type ClientHost struct {
	client  *http.Client
	scheme  string
	host    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type Client struct {
	Connection Connection
	ApiKey     string
}

type ClientOption func(*ClientHost)

// WithScheme overrides https, used to point a client at a plain http test server
func WithScheme(scheme string) ClientOption {
	return func(ch *ClientHost) { ch.scheme = scheme }
}

// WithRequestsPerMinute limits the request rate, burst is one request
func WithRequestsPerMinute(n int) ClientOption {
	return func(ch *ClientHost) {
		if n > 0 {
			ch.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting on rate limit for %s: %w", conn.host, err)
		}
	}

	endpoint.Scheme = conn.scheme
	endpoint.Host = conn.host

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %w", conn.host, err)
	}

	res, err := conn.breaker.Execute(func() (interface{}, error) {
		response, err := conn.client.Do(req)
		if err != nil {
			return nil, err
		}

		if response.StatusCode != http.StatusOK {
			defer response.Body.Close()
			preview, _ := io.ReadAll(io.LimitReader(response.Body, errorPreviewLength))
			return nil, fmt.Errorf("%s returned %d: %s", conn.host, response.StatusCode, preview)
		}

		return response, nil
	})
	if err != nil {
		return nil, err
	}

	return res.(*http.Response), nil
}

func ClientFactory(host string, apiKey string, timeout time.Duration, opts ...ClientOption) *Client {
	client := &http.Client{
		Timeout: timeout,
	}

	clientHost := &ClientHost{
		client: client,
		scheme: SchemeHttps,
		host:   host,
	}

	for _, opt := range opts {
		opt(clientHost)
	}

	clientHost.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker changed state")
		},
	})

	return &Client{
		Connection: clientHost,
		ApiKey:     apiKey,
	}
}
