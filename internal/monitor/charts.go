package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/usprobe/internal/probe"
)

// tgcChart plots the time gain compensation curve against the depth each
// point applies to.
func tgcChart(p probe.Parameters) *charts.Line {
	tgc := p.Shared.TimeGainCompensation
	x := make([]string, len(tgc))
	y := make([]opts.LineData, len(tgc))
	step := p.Shared.ScanDepthMm / float64(len(tgc)-1)
	for i, v := range tgc {
		x[i] = strconv.FormatFloat(float64(i)*step, 'f', 1, 64)
		y[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Probe TGC", Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Time gain compensation",
			Subtitle: fmt.Sprintf("mode=%s depth=%.1fmm first gain=%.1fdB", p.Mode, p.Shared.ScanDepthMm, p.Shared.FirstGainValue),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Depth (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Gain (dB)", Min: 0, Max: 40}),
	)
	line.SetXAxis(x).AddSeries("tgc", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return line
}

// intervalChart plots recent frame intervals.
func intervalChart(intervals []float64, s CadenceSummary) *charts.Line {
	x := make([]string, len(intervals))
	y := make([]opts.LineData, len(intervals))
	for i, v := range intervals {
		x[i] = strconv.Itoa(i)
		y[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Probe frame intervals", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Frame intervals",
			Subtitle: fmt.Sprintf("n=%d mean=%.2fms p95=%.2fms fps=%.1f", s.Samples, s.MeanMs, s.P95Ms, s.FPS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Interval (ms)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.SetXAxis(x).AddSeries("interval", y)
	return line
}

func writeChart(w http.ResponseWriter, c ...components.Charter) {
	page := components.NewPage()
	page.AddCharts(c...)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
