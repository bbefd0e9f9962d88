package extensions

import (
	"strings"
	"testing"
	"time"
)

func TestMap(t *testing.T) {
	res := Map([]string{"tsla", "aapl"}, strings.ToUpper)
	AssertAreEqual(t, "len", 2, len(res))
	AssertAreEqual(t, "first", "TSLA", res[0])
	AssertAreEqual(t, "second", "AAPL", res[1])
}

func TestFilterSingle(t *testing.T) {
	v, err := FilterSingle([]int{1, 2, 3}, func(i int) bool { return i == 2 })
	if err != nil {
		t.Fatalf("error for single match: %s", err)
	}
	AssertAreEqual(t, "value", 2, v)

	_, err = FilterSingle([]int{2, 2}, func(i int) bool { return i == 2 })
	if err == nil {
		t.Fatalf("expected error for two matches")
	}
}

func TestTruncateToDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("no tz data: %s", err)
	}

	got := TruncateToDate(time.Date(2025, time.October, 31, 22, 30, 0, 0, ny))
	AssertAreEqual(t, "date", "2025-10-31", FmtShort(got))
	AssertAreEqual(t, "utc", time.UTC, got.Location())
}

func TestContains(t *testing.T) {
	AssertAreEqual(t, "case invariant", true, Contains([]string{"TSLA"}, "tsla"))
	AssertAreEqual(t, "missing", false, Contains([]string{"TSLA"}, "AAPL"))
}
