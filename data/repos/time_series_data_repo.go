package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	m "capm.service/data/models"
	q "capm.service/data/queries"
)

var timeSeriesDataColumns = []string{
	"source_id", "timestamp", "open", "high", "low",
	"close", "volume", "adjusted_close", "dividend_amount",
}

// GetTimeSeriesData returns the stored observations for symbol between start and end inclusive, oldest first
func (pg *Postgres) GetTimeSeriesData(ctx context.Context, symbol string, start, end time.Time) ([]*m.TimeSeriesData, error) {
	args := pgx.NamedArgs{
		"symbol": symbol,
		"start":  start,
		"end":    end,
	}

	res, err := Query[m.TimeSeriesData](ctx, pg, q.Get(q.QueryHelper.Select.TimeSeriesData), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query data by symbol (%s): %w", symbol, err)
	}
	return res, nil
}

// GetPriceHistory lets the synced store stand in for a live provider
func (pg *Postgres) GetPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]*m.TimeSeriesData, error) {
	res, err := pg.GetTimeSeriesData(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no stored observations for %s between %s and %s, run sync first", symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return res, nil
}

// GetMostRecentTimestampForSymbol returns nil when nothing has been stored for the symbol yet
func (pg *Postgres) GetMostRecentTimestampForSymbol(ctx context.Context, symbol string) (*time.Time, error) {
	var res *time.Time
	args := pgx.NamedArgs{"symbol": symbol}
	if err := pg.db.QueryRow(ctx, q.Get(q.QueryHelper.Select.MostRecentTimestampBySymbol), args).Scan(&res); err != nil {
		return nil, fmt.Errorf("unable to query most recent timestamp for %s: %w", symbol, err)
	}
	return res, nil
}

func (pg *Postgres) InsertTimeSeriesData(ctx context.Context, data []*m.TimeSeriesData, sourceId *int32, tx *pgx.Tx) (int64, error) {
	entries := make([][]any, len(data))
	for i, ent := range data {
		id := ent.SourceId
		if sourceId != nil {
			id = *sourceId
		}
		entries[i] = []any{
			id, ent.Timestamp, ent.Open, ent.High, ent.Low,
			ent.Close, ent.Volume, ent.AdjustedClose, ent.DividendAmount,
		}
	}

	return pg.BulkInsert(ctx, "av_time_series_data", timeSeriesDataColumns, entries, tx)
}
