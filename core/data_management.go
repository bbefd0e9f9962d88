package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	av "capm.service/api/alpha_vantage"
	ex "capm.service/data/extensions"
	m "capm.service/data/models"
)

const (
	// alpha vantage is rate limited per key, more workers only queue on the limiter
	syncWorkers = 2

	refreshCutoff = 7 * 24 * time.Hour
)

// ErrRecentlyRefreshed is a symbol synced less than a week ago, it is skipped rather than failed
var ErrRecentlyRefreshed = errors.New("refreshed less than a week ago")

type SyncResult struct {
	Symbol        string
	LastRefreshed time.Time
	Inserted      int64
	Err           error
}

// SyncSymbols syncs every symbol, onDone is called once per symbol as it finishes and may be nil
func (sc *ServiceContext) SyncSymbols(ctx context.Context, symbols []string, onDone func(SyncResult)) []SyncResult {
	res := make([]SyncResult, len(symbols))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncWorkers)

	for i, symbol := range symbols {
		g.Go(func() error {
			lastRefreshed, inserted, err := sc.SyncSymbolTimeSeriesData(ctx, symbol)
			res[i] = SyncResult{Symbol: symbol, LastRefreshed: lastRefreshed, Inserted: inserted, Err: err}
			if onDone != nil {
				onDone(res[i])
			}
			// one symbol failing does not stop the others
			return nil
		})
	}

	_ = g.Wait()
	return res
}

// SyncSymbolTimeSeriesData stores the daily observations alpha vantage has for symbol that are newer
// than the latest stored one, and returns the provider's last refreshed date and the rows inserted
func (sc *ServiceContext) SyncSymbolTimeSeriesData(ctx context.Context, symbol string) (time.Time, int64, error) {
	if sc.PostgresConnection == nil || sc.AlphaVantageClient == nil {
		return time.Time{}, 0, fmt.Errorf("sync needs both a database connection and an alpha vantage client")
	}

	md, err := sc.PostgresConnection.GetMetaDataBySymbol(ctx, symbol)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("error determining if meta data exists in sync data: %w", err)
	}

	if md == nil {
		log.Info().Str("symbol", symbol).Msg("adding new symbol to db")
		md = &m.TimeSeriesMetadata{
			Symbol:        symbol,
			LastRefreshed: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		if err := sc.PostgresConnection.InsertNewMetaData(ctx, md, nil); err != nil {
			return time.Time{}, 0, fmt.Errorf("error adding %s to db: %w", symbol, err)
		}
	}

	if md.LastRefreshed.After(sc.now().Add(-refreshCutoff)) {
		return md.LastRefreshed, 0, fmt.Errorf("%w (%s), will not sync symbol %s", ErrRecentlyRefreshed, ex.FmtShort(md.LastRefreshed), symbol)
	}

	mrd, err := sc.PostgresConnection.GetMostRecentTimestampForSymbol(ctx, symbol)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("error getting most recent time series date for symbol %s: %w", symbol, err)
	}

	// the full history is only needed the first time, or after a gap longer than a compact response covers
	size := av.OutputSizeFull
	if mrd != nil {
		size = av.OutputSizeFor(*mrd, sc.now())
	}

	tsr, err := sc.AlphaVantageClient.GetStockDailyMetrics(ctx, symbol, size)
	if err != nil {
		return time.Time{}, 0, err
	}

	f := func(t *m.TimeSeriesData) bool { return mrd == nil || t.Timestamp.After(*mrd) }
	toInsert := ex.FilterMultiplePtr(tsr.TimeSeries, f)

	tx, err := sc.PostgresConnection.GetTransaction(ctx)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	var ra int64
	if len(toInsert) > 0 {
		ra, err = sc.PostgresConnection.InsertTimeSeriesData(ctx, toInsert, &md.Id, &tx)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("error inserting time series data: %w", err)
		}
	}

	if err := sc.PostgresConnection.UpdateLastRefreshedDate(ctx, symbol, tsr.Metadata.LastRefreshed, &tx); err != nil {
		return time.Time{}, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, 0, fmt.Errorf("error committing transaction to sync symbol %s: %w", symbol, err)
	}

	log.Info().Str("symbol", symbol).Int("received", len(tsr.TimeSeries)).Int64("inserted", ra).Msg("symbol synced")
	return tsr.Metadata.LastRefreshed, ra, nil
}

// ResetSymbol drops everything stored for symbol so the next sync reloads the full history
func (sc *ServiceContext) ResetSymbol(ctx context.Context, symbol string) error {
	if sc.PostgresConnection == nil {
		return fmt.Errorf("reset needs a database connection")
	}
	return sc.PostgresConnection.DeleteSymbol(ctx, symbol)
}
