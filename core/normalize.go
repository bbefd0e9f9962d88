package core

import (
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	ex "capm.service/data/extensions"
	dm "capm.service/data/models"
)

// ColumnSeparator joins the levels of a multi level column header
const ColumnSeparator = "_"

// ColumnKey is a multi level column header, outermost level first. Providers that nest fields per
// symbol produce keys like {"AdjustedClose", "TSLA"}.
type ColumnKey []string

// Flatten joins the non-empty trimmed levels with ColumnSeparator
func (k ColumnKey) Flatten() string {
	levels := make([]string, 0, len(k))
	for _, level := range k {
		if level = strings.TrimSpace(level); level != "" {
			levels = append(levels, level)
		}
	}
	return strings.Join(levels, ColumnSeparator)
}

// FlattenColumnKeys flattens every key in order. A key with no levels left, or two keys that flatten
// to the same name, makes the shape ambiguous and is reported as ErrDataUnavailable.
func FlattenColumnKeys(keys []ColumnKey) ([]string, error) {
	res := make([]string, len(keys))
	seen := make(map[string]int, len(keys))
	for i, key := range keys {
		name := key.Flatten()
		if name == "" {
			return nil, dataUnavailable("column %d has no name after flattening %q", i, []string(key))
		}
		if j, ok := seen[name]; ok {
			return nil, dataUnavailable("columns %d and %d both flatten to %q", j, i, name)
		}
		seen[name] = i
		res[i] = name
	}
	return res, nil
}

// InstrumentFrame is one instrument's provider records pivoted into flattened numeric columns,
// one row per calendar date, oldest first.
type InstrumentFrame struct {
	Symbol  string
	Columns []string
	Dates   []time.Time
	Values  map[string][]null.Float

	fields map[string]string
}

var nullFloatType = reflect.TypeOf(null.Float{})

// NewInstrumentFrame pivots the nested per-date records of symbol into one column per numeric field
func NewInstrumentFrame(symbol string, data []*dm.TimeSeriesData) (*InstrumentFrame, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, dataUnavailable("instrument frame has no symbol")
	}
	if len(data) == 0 {
		return nil, dataUnavailable("no observations for %s", symbol)
	}

	fields, err := numericFields()
	if err != nil {
		return nil, err
	}

	keys := make([]ColumnKey, len(fields))
	for i, f := range fields {
		keys[i] = ColumnKey{f, symbol}
	}

	columns, err := FlattenColumnKeys(keys)
	if err != nil {
		return nil, err
	}

	rows := ex.FilterMultiplePtr(data, func(d *dm.TimeSeriesData) bool { return d != nil })
	slices.SortFunc(rows, func(a, b *dm.TimeSeriesData) int {
		return ex.TruncateToDate(a.Timestamp).Compare(ex.TruncateToDate(b.Timestamp))
	})

	frame := &InstrumentFrame{
		Symbol:  symbol,
		Columns: columns,
		Dates:   make([]time.Time, 0, len(rows)),
		Values:  make(map[string][]null.Float, len(columns)),
		fields:  make(map[string]string, len(fields)),
	}

	for i, f := range fields {
		frame.fields[f] = columns[i]
		frame.Values[columns[i]] = make([]null.Float, 0, len(rows))
	}

	for _, row := range rows {
		date := ex.TruncateToDate(row.Timestamp)
		if n := len(frame.Dates); n > 0 && frame.Dates[n-1].Equal(date) {
			return nil, dataUnavailable("%s has more than one observation on %s", symbol, ex.FmtShort(date))
		}
		frame.Dates = append(frame.Dates, date)

		v := reflect.ValueOf(row).Elem()
		for _, f := range fields {
			column := frame.fields[f]
			frame.Values[column] = append(frame.Values[column], v.FieldByName(f).Interface().(null.Float))
		}
	}

	if len(frame.Dates) == 0 {
		return nil, dataUnavailable("no observations for %s", symbol)
	}

	return frame, nil
}

// Len is the number of dates in the frame
func (f *InstrumentFrame) Len() int {
	return len(f.Dates)
}

// Column resolves a provider field name, e.g. "AdjustedClose", to its flattened column
func (f *InstrumentFrame) Column(field string) (string, bool) {
	for name, column := range f.fields {
		if ex.AreEqual(name, field) {
			return column, true
		}
	}
	return "", false
}

// PriceSeries selects field as the instrument's single price column. Dates where the provider sent
// no number are left out; a field with no numbers at all is ErrDataUnavailable.
func (f *InstrumentFrame) PriceSeries(field string) ([]PricePoint, error) {
	column, ok := f.Column(field)
	if !ok {
		return nil, dataUnavailable("%s has no %s column, available: %v", f.Symbol, field, f.Columns)
	}

	values := f.Values[column]
	res := make([]PricePoint, 0, len(values))
	for i, v := range values {
		if !v.Valid {
			continue
		}
		res = append(res, PricePoint{InstrumentID: f.Symbol, Date: f.Dates[i], Price: v.Float64})
	}

	if len(res) == 0 {
		return nil, dataUnavailable("%s has no numeric %s values", f.Symbol, field)
	}

	return res, nil
}

// BenchmarkSeries drops the dates the publisher reported without a value
func BenchmarkSeries(series string, observations []dm.BenchmarkObservation) ([]BenchmarkPoint, error) {
	res := make([]BenchmarkPoint, 0, len(observations))
	for _, o := range observations {
		if !o.Value.Valid {
			continue
		}
		res = append(res, BenchmarkPoint{Date: ex.TruncateToDate(o.Date), Value: o.Value.Float64})
	}

	if len(res) == 0 {
		return nil, dataUnavailable("benchmark %s has no numeric values", series)
	}

	return res, nil
}

func numericFields() ([]string, error) {
	all, err := ex.GetFields(dm.TimeSeriesData{})
	if err != nil {
		return nil, err
	}

	typ := reflect.TypeOf(dm.TimeSeriesData{})
	f := func(name string) bool {
		field, _ := typ.FieldByName(name)
		return field.Type == nullFloatType
	}
	return ex.FilterMultiple(all, f), nil
}
