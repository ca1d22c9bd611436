// Package spectrum renders singular value and explained variance charts.
package spectrum

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Chart describes one line chart of a leading part of a spectrum.
type Chart struct {
	Title  string
	XName  string
	YName  string
	Values []float64
	// Labels names the x positions; positions are numbered from 1 when empty.
	Labels []string
	// Limit caps the number of plotted values; 0 plots everything.
	Limit int
}

// Render writes the chart as a self-contained HTML page.
func (c Chart) Render(w io.Writer) error {
	values := c.Values
	if c.Limit > 0 && len(values) > c.Limit {
		values = values[:c.Limit]
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: c.Title,
			Width:     "560px",
			Height:    "340px",
		}),
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: c.XName,
			Type: "category",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: c.YName,
			Type: "value",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
	)

	xs := make([]string, len(values))
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if i < len(c.Labels) {
			xs[i] = c.Labels[i]
		} else {
			xs[i] = strconv.Itoa(i + 1)
		}
		data[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(xs).AddSeries(c.YName, data)

	return line.Render(w)
}
