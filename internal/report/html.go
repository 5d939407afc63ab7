package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteHTML renders a page with one line chart per recorded axis. Missing
// scores are written as "-", which echarts draws as a gap.
func (r *Recorder) WriteHTML(w io.Writer) error {
	data := r.snapshot()
	if len(data) == 0 {
		return fmt.Errorf("no samples recorded")
	}

	page := components.NewPage()
	page.SetPageTitle("Coupling sweeps")
	for _, d := range data {
		xs := make([]string, len(d.series))
		ys := make([]opts.LineData, len(d.series))
		for i, s := range d.series {
			xs[i] = strconv.Itoa(s.Position)
			if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
				ys[i] = opts.LineData{Value: "-"}
				continue
			}
			ys[i] = opts.LineData{Value: s.Score}
		}

		subtitle := fmt.Sprintf("%d samples", len(d.series))
		if d.hasSel {
			subtitle = fmt.Sprintf("%s, selected %s=%d", subtitle, d.axis, d.selected)
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{Title: axisTitle(d.axis), Subtitle: subtitle}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithXAxisOpts(opts.XAxis{Name: string(d.axis), NameLocation: "middle", NameGap: 25}),
		)
		line.SetXAxis(xs).AddSeries("score", ys)
		page.AddCharts(line)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}
