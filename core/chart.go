package core

import (
	"fmt"
	"strings"

	"github.com/vicanso/go-charts/v2"

	ex "capm.service/data/extensions"
)

const (
	chartWidth  = 1200
	chartHeight = 600
	chartSplits = 10
)

// RenderPriceChart draws one line per instrument against the left axis and the benchmark against
// the right axis, the index trades at a much higher level than single stocks. Returns a png.
func RenderPriceChart(table *AlignedPriceTable, title string) ([]byte, error) {
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to chart", ErrAlignmentEmpty)
	}

	labels := make([]string, table.Len())
	for i, d := range table.Dates {
		labels[i] = ex.FmtShort(d)
	}

	values := make([][]float64, 0, len(table.Instruments)+1)
	names := make([]string, 0, len(table.Instruments)+1)
	for _, id := range table.Instruments {
		values = append(values, table.Prices[id])
		names = append(names, id)
	}
	values = append(values, table.Benchmark)
	names = append(names, BenchmarkColumn)

	seriesList := charts.NewSeriesListDataFromValues(values, charts.ChartTypeLine)
	for i := range seriesList {
		seriesList[i].Name = names[i]
		if names[i] == BenchmarkColumn {
			seriesList[i].AxisIndex = 1
		}
	}

	painter, err := charts.Render(charts.ChartOption{SeriesList: seriesList, Width: chartWidth, Height: chartHeight},
		charts.TitleTextOptionFunc(title, strings.Join(table.Instruments, ", ")+" vs "+BenchmarkColumn),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: chartSplits}),
		charts.YAxisOptionFunc(
			charts.YAxisOption{DivideCount: 5},
			charts.YAxisOption{DivideCount: 5, Position: charts.PositionRight},
		),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("error rendering price chart: %w", err)
	}

	return painter.Bytes()
}
