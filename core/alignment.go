package core

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	ex "capm.service/data/extensions"
)

// BenchmarkColumn is the fixed name of the benchmark column in every table
const BenchmarkColumn = "sp500"

type PricePoint struct {
	InstrumentID string
	Date         time.Time
	Price        float64
}

type BenchmarkPoint struct {
	Date  time.Time
	Value float64
}

// AlignedPriceTable holds only dates present in every instrument and the benchmark, strictly
// ascending, with a price in every cell. Columns are stored by instrument in Instruments order.
type AlignedPriceTable struct {
	Dates       []time.Time
	Instruments []string
	Prices      map[string][]float64
	Benchmark   []float64
}

// PriceRow is one date of an AlignedPriceTable
type PriceRow struct {
	Date      time.Time
	Prices    map[string]float64
	Benchmark float64
}

func (t *AlignedPriceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Dates)
}

func (t *AlignedPriceTable) Row(i int) PriceRow {
	row := PriceRow{
		Date:      t.Dates[i],
		Prices:    make(map[string]float64, len(t.Instruments)),
		Benchmark: t.Benchmark[i],
	}
	for _, id := range t.Instruments {
		row.Prices[id] = t.Prices[id][i]
	}
	return row
}

// Head returns up to the first n rows
func (t *AlignedPriceTable) Head(n int) []PriceRow {
	return t.rows(0, ex.Min(n, t.Len()))
}

// Tail returns up to the last n rows
func (t *AlignedPriceTable) Tail(n int) []PriceRow {
	return t.rows(t.Len()-ex.Min(n, t.Len()), t.Len())
}

func (t *AlignedPriceTable) rows(from, to int) []PriceRow {
	res := make([]PriceRow, 0, max(to-from, 0))
	for i := from; i < to; i++ {
		res = append(res, t.Row(i))
	}
	return res
}

// Align inner joins every instrument series and the benchmark on calendar date. Instruments are
// ordered by id. Nothing is interpolated or carried forward, a date missing from any one series
// is dropped from the table.
func Align(instruments map[string][]PricePoint, benchmark []BenchmarkPoint) (*AlignedPriceTable, error) {
	if len(instruments) == 0 {
		return nil, invalidSelection("no instruments selected")
	}

	ids := make([]string, 0, len(instruments))
	for id := range instruments {
		if strings.TrimSpace(id) == "" {
			return nil, invalidSelection("instrument with an empty id")
		}
		if ex.AreEqual(id, BenchmarkColumn) {
			return nil, invalidSelection("instrument id %q collides with the benchmark column", id)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	benchmarkByDate, err := indexBenchmark(benchmark)
	if err != nil {
		return nil, err
	}

	pricesByDate := make(map[string]map[time.Time]float64, len(ids))
	for _, id := range ids {
		prices, err := indexPrices(id, instruments[id])
		if err != nil {
			return nil, err
		}
		pricesByDate[id] = prices
	}

	dates := make([]time.Time, 0, len(benchmarkByDate))
	for date := range benchmarkByDate {
		inAll := true
		for _, id := range ids {
			if _, ok := pricesByDate[id][date]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			dates = append(dates, date)
		}
	}

	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: %s and %s", ErrAlignmentEmpty, strings.Join(ids, ", "), BenchmarkColumn)
	}

	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	table := &AlignedPriceTable{
		Dates:       dates,
		Instruments: ids,
		Prices:      make(map[string][]float64, len(ids)),
		Benchmark:   make([]float64, len(dates)),
	}
	for _, id := range ids {
		table.Prices[id] = make([]float64, len(dates))
	}

	for i, date := range dates {
		table.Benchmark[i] = benchmarkByDate[date]
		for _, id := range ids {
			table.Prices[id][i] = pricesByDate[id][date]
		}
	}

	return table, nil
}

func indexPrices(id string, series []PricePoint) (map[time.Time]float64, error) {
	if len(series) == 0 {
		return nil, dataUnavailable("no prices for %s", id)
	}

	res := make(map[time.Time]float64, len(series))
	for _, p := range series {
		date := ex.TruncateToDate(p.Date)
		if _, ok := res[date]; ok {
			return nil, dataUnavailable("%s has more than one price on %s", id, ex.FmtShort(date))
		}
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, dataUnavailable("%s has a non-finite price on %s", id, ex.FmtShort(date))
		}
		res[date] = p.Price
	}
	return res, nil
}

func indexBenchmark(series []BenchmarkPoint) (map[time.Time]float64, error) {
	if len(series) == 0 {
		return nil, dataUnavailable("no benchmark values")
	}

	res := make(map[time.Time]float64, len(series))
	for _, p := range series {
		date := ex.TruncateToDate(p.Date)
		if _, ok := res[date]; ok {
			return nil, dataUnavailable("benchmark has more than one value on %s", ex.FmtShort(date))
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, dataUnavailable("benchmark has a non-finite value on %s", ex.FmtShort(date))
		}
		res[date] = p.Value
	}
	return res, nil
}
