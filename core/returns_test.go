package core

import (
	"math"
	"testing"

	ex "capm.service/data/extensions"
)

func alignedTable(t *testing.T, instruments map[string][]float64, benchmark []float64) *AlignedPriceTable {
	t.Helper()
	days := make([]int, len(benchmark))
	for i := range days {
		days[i] = i
	}

	series := make(map[string][]PricePoint, len(instruments))
	for id, values := range instruments {
		series[id] = prices(id, days, values)
	}

	table, err := Align(series, benchmarkPoints(days, benchmark))
	if err != nil {
		t.Fatalf("error aligning: %s", err)
	}
	return table
}

func TestDailyReturns_TenPercentScenario(t *testing.T) {
	table := alignedTable(t, map[string][]float64{"A": {100, 110, 121}}, []float64{1000, 1050, 1102.5})
	returns := DailyReturns(table)

	ex.AssertAreEqual(t, "rows", table.Len()-1, returns.Len())

	a, ok := returns.Column("A")
	if !ok {
		t.Fatalf("missing column A")
	}
	ex.AssertWithin(t, "A day 1", 0.10, a[0], 1e-12)
	ex.AssertWithin(t, "A day 2", 0.10, a[1], 1e-12)

	m, ok := returns.Column(BenchmarkColumn)
	if !ok {
		t.Fatalf("missing benchmark column")
	}
	ex.AssertWithin(t, "benchmark day 1", 0.05, m[0], 1e-12)
	ex.AssertWithin(t, "benchmark day 2", 0.05, m[1], 1e-12)

	if !returns.Dates[0].Equal(table.Dates[1]) {
		t.Fatalf("first return should be dated on the second price row")
	}
}

func TestDailyReturns_RowCountIsOneLess(t *testing.T) {
	for n := 2; n <= 30; n++ {
		a := make([]float64, n)
		b := make([]float64, n)
		m := make([]float64, n)
		for i := range n {
			a[i] = 100 + float64(i%7)
			b[i] = 50 * math.Pow(1.01, float64(i))
			m[i] = 4000 + float64(i*i%11)
		}

		table := alignedTable(t, map[string][]float64{"A": a, "B": b}, m)
		returns := DailyReturns(table)
		if returns.Len() != table.Len()-1 {
			t.Fatalf("n=%d: expected %d rows, got %d", n, table.Len()-1, returns.Len())
		}
	}
}

func TestDailyReturns_ZeroPriorIsUndefined(t *testing.T) {
	table := alignedTable(t, map[string][]float64{"A": {0, 10, 11}}, []float64{100, 101, 102})
	returns := DailyReturns(table)

	a, _ := returns.Column("A")
	ex.AssertAreEqual(t, "rows", 2, returns.Len())
	if !math.IsNaN(a[0]) {
		t.Fatalf("return after a zero price should be undefined, got %v", a[0])
	}
	ex.AssertWithin(t, "A day 2", 0.1, a[1], 1e-12)
}

func TestDailyReturns_DropsFullyUndefinedRows(t *testing.T) {
	table := alignedTable(t, map[string][]float64{"A": {0, 10, 11}}, []float64{0, 100, 110})
	returns := DailyReturns(table)

	ex.AssertAreEqual(t, "rows", 1, returns.Len())
	if !returns.Dates[0].Equal(table.Dates[2]) {
		t.Fatalf("expected the undefined first return row to be dropped")
	}
}

func TestDailyReturns_FewerThanTwoRows(t *testing.T) {
	table := alignedTable(t, map[string][]float64{"A": {100}}, []float64{1000})
	returns := DailyReturns(table)

	ex.AssertAreEqual(t, "rows", 0, returns.Len())
	ex.AssertAreEqual(t, "schema kept", "A", returns.Instruments[0])
	ex.AssertAreEqual(t, "nil table", 0, DailyReturns(nil).Len())
}

func TestReturnTable_UnknownColumn(t *testing.T) {
	returns := DailyReturns(alignedTable(t, map[string][]float64{"A": {1, 2}}, []float64{1, 2}))
	if _, ok := returns.Column("B"); ok {
		t.Fatalf("expected no column B")
	}
}
