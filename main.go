package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	av "capm.service/api/alpha_vantage"
	"capm.service/api/fred"
	"capm.service/config"
	c "capm.service/core"
	r "capm.service/data/repos"
)

func main() {
	// initialize context and signal handler, listen for interrupt and term signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "capm",
		Short:         "CAPM beta, alpha and expected return against the S&P 500",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), analyzeCmd(), syncCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		if c.IsUserError(err) {
			fmt.Fprintln(os.Stderr, c.UserMessage(err))
		} else {
			log.Error().Err(err).Msg("command failed")
		}
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up the global logger, console output unless json is asked for
func loadConfig(json bool) (config.Config, error) {
	if !json {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	return cfg, nil
}

// getServiceContext wires the market data sources, postgres is only connected when something reads or writes it
func getServiceContext(ctx context.Context, cfg config.Config, withSync bool) (*c.ServiceContext, func(), error) {
	metrics := c.NewMetrics()
	cleanup := func() {}

	// get alpha vantage client
	avClient := av.GetClient(cfg.AlphaVantageApiKey, cfg.Universe.AlphaVantageRequestsPerMinute, av.TimeSeriesForField(cfg.Universe.PriceField))
	fredClient := fred.GetClient(cfg.FredApiKey)

	sc := &c.ServiceContext{
		BenchmarkSource: metrics.InstrumentBenchmarkSource("fred", &fredClient),
		Universe:        cfg.Universe,
		Metrics:         metrics,
	}

	if cfg.PriceSource == config.PriceSourcePostgres || withSync {
		// get postgres connection
		pg, err := r.GetPostgresConnection(ctx, cfg.DatabaseUrl)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup = pg.Close

		if err := pg.InitSchema(ctx); err != nil {
			return nil, cleanup, err
		}
		sc.PostgresConnection = pg
	}

	switch cfg.PriceSource {
	case config.PriceSourcePostgres:
		sc.PriceSource = metrics.InstrumentPriceSource("postgres", sc.PostgresConnection)
	default:
		sc.PriceSource = metrics.InstrumentPriceSource("alphavantage", &avClient)
	}

	if withSync {
		// the store keeps both closes, so sync always asks for the adjusted series
		syncClient := av.GetClient(cfg.AlphaVantageApiKey, cfg.Universe.AlphaVantageRequestsPerMinute, av.TimeSeriesDailyAdjusted)
		sc.AlphaVantageClient = &syncClient
	}

	return sc, cleanup, nil
}
