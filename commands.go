package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	c "capm.service/core"
	ex "capm.service/data/extensions"
	sm "capm.service/models"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis over http",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sc, cleanup, err := getServiceContext(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := c.GetHttpServer(sc, cfg.Addr)

			// start server in a goroutine so it doesn't block the graceful shutdown handling below
			serverErr := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Str("price_source", cfg.PriceSource).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			select {
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")

			// the context is used to inform the server it has 10 seconds to finish the requests it is currently handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Info().Msg("server exiting")
			return nil
		},
	}
}

func analyzeCmd() *cobra.Command {
	var (
		stocks    []string
		years     int
		riskFree  float64
		chartPath string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute beta and CAPM expected return for a selection of stocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sc, cleanup, err := getServiceContext(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			req := sm.AnalysisRequest{Stocks: stocks, Years: years, RiskFreeRate: riskFree}
			if !cmd.Flags().Changed("stocks") {
				req.Stocks = cfg.Universe.DefaultStocks
			}
			if !cmd.Flags().Changed("risk-free") {
				req.RiskFreeRate = cfg.Universe.RiskFreeRate
			}

			analysis, err := sc.RunAnalysis(ctx, req)
			if err != nil {
				return err
			}

			printAnalysis(os.Stdout, c.BuildAnalysisResponse(analysis))

			if chartPath != "" {
				png, err := c.RenderPriceChart(analysis.Table, strings.Join(analysis.Request.Stocks, ", "))
				if err != nil {
					return err
				}
				if err := os.WriteFile(chartPath, png, 0o644); err != nil {
					return fmt.Errorf("failed to write chart: %w", err)
				}
				log.Info().Str("path", chartPath).Msg("price chart written")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stocks, "stocks", nil, "comma separated stock symbols")
	cmd.Flags().IntVar(&years, "years", sm.MinYears, "number of years of history")
	cmd.Flags().Float64Var(&riskFree, "risk-free", 0, "annual risk free rate as a fraction")
	cmd.Flags().StringVar(&chartPath, "chart", "", "write a png of the aligned prices to this path")
	return cmd
}

func syncCmd() *cobra.Command {
	var (
		stocks []string
		reset  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Store daily price history from alpha vantage in postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sc, cleanup, err := getServiceContext(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer cleanup()

			if len(stocks) == 0 {
				stocks = cfg.Universe.AllowedStocks
			}
			stocks = ex.Map(stocks, strings.ToUpper)

			if reset {
				for _, s := range stocks {
					if err := sc.ResetSymbol(ctx, s); err != nil {
						return err
					}
				}
			}

			bar := progressBar(len(stocks))
			results := sc.SyncSymbols(ctx, stocks, func(res c.SyncResult) {
				bar.Describe(res.Symbol)
				_ = bar.Add(1)
			})
			_ = bar.Finish()

			failed := 0
			for _, res := range results {
				switch {
				case errors.Is(res.Err, c.ErrRecentlyRefreshed):
					log.Info().Str("symbol", res.Symbol).Msg("skipped, refreshed less than a week ago")
				case res.Err != nil:
					failed++
					log.Error().Err(res.Err).Str("symbol", res.Symbol).Msg("sync failed")
				default:
					log.Info().Str("symbol", res.Symbol).Int64("inserted", res.Inserted).Str("last_refreshed", ex.FmtShort(res.LastRefreshed)).Msg("synced")
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d symbols failed to sync", failed, len(stocks))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&stocks, "stocks", nil, "comma separated stock symbols, all allowed stocks when empty")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete stored history for the symbols before syncing")
	return cmd
}

func progressBar(length int) *progressbar.ProgressBar {
	return progressbar.NewOptions(length,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetVisibility(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func printAnalysis(out io.Writer, res *sm.AnalysisResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "window\t%s to %s\t(%d rows)\n", res.Start, res.End, res.Rows)
	fmt.Fprintf(w, "risk free rate\t%g\n", res.RiskFreeRate)
	fmt.Fprintf(w, "%s annualized\t%.2f\n\n", res.Benchmark, sm.Round2(res.BenchmarkAnnualizedReturn))

	header := append([]string{"date"}, res.Stocks...)
	header = append(header, res.Benchmark)

	printRows := func(title string, rows []sm.PriceRow) {
		fmt.Fprintln(w, title)
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, row := range rows {
			cells := []string{row.Date}
			for _, s := range res.Stocks {
				cells = append(cells, fmt.Sprintf("%.2f", row.Prices[s]))
			}
			cells = append(cells, fmt.Sprintf("%.2f", row.Benchmark))
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
		fmt.Fprintln(w)
	}
	printRows("first rows", res.Head)
	printRows("last rows", res.Tail)

	fmt.Fprintln(w, "stock\tbeta\talpha")
	for _, b := range res.Betas {
		fmt.Fprintf(w, "%s\t%.2f\t%.6f\n", b.Stock, b.BetaRounded, b.Alpha)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "stock\texpected return")
	for _, r := range res.Returns {
		fmt.Fprintf(w, "%s\t%.2f\n", r.Stock, r.ReturnRounded)
	}
	fmt.Fprintf(w, "\nelapsed\t%s\n", time.Duration(res.Elapsed).Round(time.Millisecond))
}
