package core

import (
	"math"
	"slices"
	"time"
)

// ReturnTable has the schema of the AlignedPriceTable it came from. A cell is NaN where the
// return is undefined, a zero or missing prior price.
type ReturnTable struct {
	Dates       []time.Time
	Instruments []string
	Returns     map[string][]float64
	Benchmark   []float64
}

func (r *ReturnTable) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Dates)
}

// Column resolves an instrument id or BenchmarkColumn
func (r *ReturnTable) Column(name string) ([]float64, bool) {
	if r == nil {
		return nil, false
	}
	if name == BenchmarkColumn {
		return r.Benchmark, true
	}
	if !slices.Contains(r.Instruments, name) {
		return nil, false
	}
	return r.Returns[name], true
}

// DailyReturns maps every column to its day over day fractional change. The first row has no prior
// price and is dropped, as is any later row where no column has a defined return. A table with
// fewer than 2 rows gives an empty table with the same schema.
func DailyReturns(table *AlignedPriceTable) *ReturnTable {
	res := &ReturnTable{
		Returns: make(map[string][]float64),
	}
	if table == nil {
		return res
	}

	res.Instruments = slices.Clone(table.Instruments)
	for _, id := range res.Instruments {
		res.Returns[id] = []float64{}
	}
	res.Dates = []time.Time{}
	res.Benchmark = []float64{}

	for t := 1; t < table.Len(); t++ {
		benchmark := dailyReturn(table.Benchmark[t-1], table.Benchmark[t])
		defined := !math.IsNaN(benchmark)

		row := make([]float64, len(res.Instruments))
		for i, id := range res.Instruments {
			row[i] = dailyReturn(table.Prices[id][t-1], table.Prices[id][t])
			defined = defined || !math.IsNaN(row[i])
		}

		if !defined {
			continue
		}

		res.Dates = append(res.Dates, table.Dates[t])
		res.Benchmark = append(res.Benchmark, benchmark)
		for i, id := range res.Instruments {
			res.Returns[id] = append(res.Returns[id], row[i])
		}
	}

	return res
}

func dailyReturn(prev, cur float64) float64 {
	r := (cur - prev) / prev
	if prev == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return math.NaN()
	}
	return r
}
