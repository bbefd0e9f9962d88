package core

import (
	"errors"
	"testing"
	"time"

	ex "capm.service/data/extensions"
)

var epoch = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return epoch.AddDate(0, 0, n)
}

func prices(id string, days []int, values []float64) []PricePoint {
	res := make([]PricePoint, len(days))
	for i, d := range days {
		res[i] = PricePoint{InstrumentID: id, Date: day(d), Price: values[i]}
	}
	return res
}

func benchmarkPoints(days []int, values []float64) []BenchmarkPoint {
	res := make([]BenchmarkPoint, len(days))
	for i, d := range days {
		res[i] = BenchmarkPoint{Date: day(d), Value: values[i]}
	}
	return res
}

func TestAlign_InnerJoinsOnDate(t *testing.T) {
	instruments := map[string][]PricePoint{
		// out of order on purpose
		"TSLA": prices("TSLA", []int{3, 0, 1, 2}, []float64{13, 10, 11, 12}),
		"AAPL": prices("AAPL", []int{0, 2, 3, 4}, []float64{20, 22, 23, 24}),
	}
	benchmark := benchmarkPoints([]int{0, 1, 2, 3, 4}, []float64{1000, 1001, 1002, 1003, 1004})

	table, err := Align(instruments, benchmark)
	if err != nil {
		t.Fatalf("error aligning: %s", err)
	}

	ex.AssertAreEqual(t, "rows", 3, table.Len())
	ex.AssertAreEqual(t, "first instrument", "AAPL", table.Instruments[0])
	ex.AssertAreEqual(t, "second instrument", "TSLA", table.Instruments[1])

	expectedDays := []int{0, 2, 3}
	for i, d := range expectedDays {
		if !table.Dates[i].Equal(day(d)) {
			t.Fatalf("row %d: expected %s, got %s", i, ex.FmtShort(day(d)), ex.FmtShort(table.Dates[i]))
		}
	}

	row := table.Row(1)
	ex.AssertAreEqual(t, "TSLA on day 2", 12.0, row.Prices["TSLA"])
	ex.AssertAreEqual(t, "AAPL on day 2", 22.0, row.Prices["AAPL"])
	ex.AssertAreEqual(t, "benchmark on day 2", 1002.0, row.Benchmark)
}

func TestAlign_DatesStrictlyIncreasingAndComplete(t *testing.T) {
	instruments := map[string][]PricePoint{
		"MSFT": prices("MSFT", []int{9, 7, 5, 3, 1, 0}, []float64{9, 7, 5, 3, 1, 0.5}),
		"NVDA": prices("NVDA", []int{0, 1, 2, 3, 5, 8, 9}, []float64{1, 2, 3, 4, 5, 6, 7}),
	}
	benchmark := benchmarkPoints([]int{9, 8, 5, 3, 1, 0}, []float64{6, 5, 4, 3, 2, 1})

	table, err := Align(instruments, benchmark)
	if err != nil {
		t.Fatalf("error aligning: %s", err)
	}

	ex.AssertAreEqual(t, "rows", 5, table.Len())
	for i := 1; i < table.Len(); i++ {
		if !table.Dates[i].After(table.Dates[i-1]) {
			t.Fatalf("dates not strictly increasing at row %d", i)
		}
	}
	for _, id := range table.Instruments {
		ex.AssertAreEqual(t, id+" column length", table.Len(), len(table.Prices[id]))
	}
	ex.AssertAreEqual(t, "benchmark column length", table.Len(), len(table.Benchmark))
}

func TestAlign_NormalizesToCalendarDay(t *testing.T) {
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("error loading location: %s", err)
	}

	// midnight in new york is 05:00 utc, still the same calendar day
	instruments := map[string][]PricePoint{
		"AMZN": {
			{InstrumentID: "AMZN", Date: time.Date(2025, time.January, 6, 0, 0, 0, 0, newYork), Price: 220},
			{InstrumentID: "AMZN", Date: time.Date(2025, time.January, 7, 0, 0, 0, 0, newYork), Price: 221},
		},
	}
	benchmark := benchmarkPoints([]int{0, 1}, []float64{5900, 5910})

	table, err := Align(instruments, benchmark)
	if err != nil {
		t.Fatalf("error aligning: %s", err)
	}
	ex.AssertAreEqual(t, "rows", 2, table.Len())
}

func TestAlign_DisjointDatesIsAlignmentEmpty(t *testing.T) {
	instruments := map[string][]PricePoint{
		"TSLA": prices("TSLA", []int{0, 2, 4}, []float64{1, 2, 3}),
		"MGM":  prices("MGM", []int{1, 3, 5}, []float64{1, 2, 3}),
	}
	benchmark := benchmarkPoints([]int{0, 1, 2, 3, 4, 5}, []float64{1, 2, 3, 4, 5, 6})

	_, err := Align(instruments, benchmark)
	if !errors.Is(err, ErrAlignmentEmpty) {
		t.Fatalf("expected alignment empty, got %v", err)
	}
	if !IsUserError(err) {
		t.Fatalf("alignment empty should be a user error")
	}
}

func TestAlign_Errors(t *testing.T) {
	benchmark := benchmarkPoints([]int{0, 1}, []float64{1, 2})

	cases := []struct {
		name        string
		instruments map[string][]PricePoint
		benchmark   []BenchmarkPoint
		expected    error
	}{
		{"no instruments", map[string][]PricePoint{}, benchmark, ErrInvalidSelection},
		{"benchmark name", map[string][]PricePoint{"SP500": prices("x", []int{0}, []float64{1})}, benchmark, ErrInvalidSelection},
		{"empty instrument", map[string][]PricePoint{"AAPL": nil}, benchmark, ErrDataUnavailable},
		{"empty benchmark", map[string][]PricePoint{"AAPL": prices("AAPL", []int{0}, []float64{1})}, nil, ErrDataUnavailable},
		{"duplicate date", map[string][]PricePoint{"AAPL": prices("AAPL", []int{0, 0}, []float64{1, 2})}, benchmark, ErrDataUnavailable},
		{"duplicate benchmark date", map[string][]PricePoint{"AAPL": prices("AAPL", []int{0}, []float64{1})}, benchmarkPoints([]int{1, 1}, []float64{1, 2}), ErrDataUnavailable},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Align(c.instruments, c.benchmark)
			if !errors.Is(err, c.expected) {
				t.Fatalf("expected %v, got %v", c.expected, err)
			}
		})
	}
}

func TestAlign_HeadAndTail(t *testing.T) {
	days := []int{0, 1, 2, 3, 4, 5, 6, 7}
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	table, err := Align(map[string][]PricePoint{"GOOGL": prices("GOOGL", days, values)}, benchmarkPoints(days, values))
	if err != nil {
		t.Fatalf("error aligning: %s", err)
	}

	head := table.Head(5)
	tail := table.Tail(5)
	ex.AssertAreEqual(t, "head rows", 5, len(head))
	ex.AssertAreEqual(t, "tail rows", 5, len(tail))
	ex.AssertAreEqual(t, "head first", 1.0, head[0].Prices["GOOGL"])
	ex.AssertAreEqual(t, "tail first", 4.0, tail[0].Prices["GOOGL"])
	ex.AssertAreEqual(t, "tail last", 8.0, tail[4].Benchmark)

	ex.AssertAreEqual(t, "head longer than table", 8, len(table.Head(20)))
	ex.AssertAreEqual(t, "tail longer than table", 8, len(table.Tail(20)))
}
