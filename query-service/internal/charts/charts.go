// Package charts renders dashboard figures as SVG.
package charts

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/yudduy/cma-analysis/query-service/internal/analysis"
)

var (
	ErrUnknownChart = errors.New("unknown chart")
	ErrNoChartData  = errors.New("no data to chart")
)

const (
	width  = 720
	height = 400
)

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorOrange,
	chart.ColorGreen,
	chart.ColorRed,
	chart.ColorCyan,
	chart.ColorAlternateGray,
}

const demographicsPrefix = "demographics-"

// Names lists the report charts, in page order.
func Names() []string {
	names := []string{"users", "popups", "newsletter"}
	for _, d := range analysis.DimensionNames() {
		names = append(names, demographicsPrefix+d)
	}
	return append(names, "screens", "windows", "referral-traffic", "referral-conversion")
}

// Render writes the named report chart as SVG.
func Render(w io.Writer, name string, r *analysis.Report) error {
	groups := make([]string, len(r.UsersPerGroup))
	for i, g := range r.UsersPerGroup {
		groups[i] = g.Group
	}

	switch {
	case name == "users":
		bars := make([]bar, len(r.UsersPerGroup))
		for i, g := range r.UsersPerGroup {
			bars[i] = bar{label: "Group " + g.Group, group: g.Group, value: float64(g.Count)}
		}
		return renderBars(w, fmt.Sprintf("Unique Visitors per Group (%s)", r.Version), bars, groups)

	case name == "popups":
		return renderPopups(w, r)

	case name == "newsletter":
		bars := make([]bar, len(r.Newsletter.Groups))
		for i, g := range r.Newsletter.Groups {
			bars[i] = bar{label: "Group " + g.Group, group: g.Group, value: g.AvgSignups}
		}
		return renderBars(w, "Newsletter Signup Rates by Treatment Group", bars, groups)

	case strings.HasPrefix(name, demographicsPrefix):
		dim := strings.TrimPrefix(name, demographicsPrefix)
		for _, d := range r.Demographics {
			if d.Name != dim {
				continue
			}
			bars := make([]bar, len(d.Rows))
			for i, row := range d.Rows {
				bars[i] = bar{label: fmt.Sprintf("%s (%s)", row.Value, row.Group), group: row.Group, value: row.Percentage}
			}
			return renderBars(w, "Distribution by "+d.Label+" (%)", bars, groups)
		}
		return fmt.Errorf("%w: %s", ErrUnknownChart, name)

	case name == "screens":
		return renderBars(w, "Screen Size Distribution", sizeBars(r.Screens), groups)

	case name == "windows":
		return renderBars(w, "Window Size Distribution", sizeBars(r.Windows), groups)

	case name == "referral-traffic":
		bars := make([]bar, len(r.Referrals.Rows))
		for i, row := range r.Referrals.Rows {
			bars[i] = bar{label: fmt.Sprintf("%s (%s)", row.Category, row.Group), group: row.Group, value: row.TrafficShare}
		}
		return renderBars(w, "Traffic Distribution by Referrer (%)", bars, groups)

	case name == "referral-conversion":
		bars := make([]bar, len(r.Referrals.Rows))
		for i, row := range r.Referrals.Rows {
			bars[i] = bar{label: fmt.Sprintf("%s (%s)", row.Category, row.Group), group: row.Group, value: row.ConversionRate}
		}
		return renderBars(w, "Conversion Rates by Referrer (%)", bars, groups)
	}
	return fmt.Errorf("%w: %s", ErrUnknownChart, name)
}

type bar struct {
	label string
	group string
	value float64
}

func sizeBars(counts []analysis.SizeCount) []bar {
	bars := make([]bar, len(counts))
	for i, c := range counts {
		bars[i] = bar{label: fmt.Sprintf("%s (%s)", c.Size, c.Group), group: c.Group, value: float64(c.Count)}
	}
	return bars
}

func groupColor(groups []string, group string) drawing.Color {
	for i, g := range groups {
		if g == group {
			return palette[i%len(palette)]
		}
	}
	return chart.ColorAlternateGray
}

// yRange pins the axis at zero; go-chart rejects a zero-height range.
func yRange(peak float64) *chart.ContinuousRange {
	if peak <= 0 {
		peak = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: peak * 1.1}
}

func renderBars(w io.Writer, title string, bars []bar, groups []string) error {
	if len(bars) == 0 {
		return ErrNoChartData
	}

	values := make([]chart.Value, len(bars))
	peak := 0.0
	for i, b := range bars {
		col := groupColor(groups, b.group)
		values[i] = chart.Value{
			Label: b.label,
			Value: b.value,
			Style: chart.Style{FillColor: col, StrokeColor: col},
		}
		peak = max(peak, b.value)
	}

	barWidth := 60
	if n := len(bars); n > 8 {
		barWidth = max(width/(n*2), 12)
	}

	c := chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 60}},
		XAxis:      chart.Style{TextRotationDegrees: rotation(len(bars))},
		YAxis:      chart.YAxis{Range: yRange(peak)},
		Bars:       values,
	}
	return c.Render(chart.SVG, w)
}

func rotation(n int) float64 {
	if n > 6 {
		return 45
	}
	return 0
}

func renderPopups(w io.Writer, r *analysis.Report) error {
	if len(r.Popups) == 0 {
		return ErrNoChartData
	}

	var labels []string
	seen := make(map[string]bool)
	for _, p := range r.Popups {
		if !seen[p.Popup] {
			seen[p.Popup] = true
			labels = append(labels, p.Popup)
		}
	}

	var bars []chart.StackedBar
	idx := make(map[string]int)
	for _, p := range r.Popups {
		i, ok := idx[p.Group]
		if !ok {
			i = len(bars)
			idx[p.Group] = i
			bars = append(bars, chart.StackedBar{Name: "Group " + p.Group, Width: 60})
		}
		col := palette[indexOf(labels, p.Popup)%len(palette)]
		bars[i].Values = append(bars[i].Values, chart.Value{
			Label: p.Popup,
			Value: float64(p.Count),
			Style: chart.Style{FillColor: col, StrokeColor: col},
		})
	}

	c := chart.StackedBarChart{
		Title:      fmt.Sprintf("Popup Version Distribution by Treatment Group (%s)", r.Version),
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Bars:       bars,
	}
	return c.Render(chart.SVG, w)
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return 0
}

// Activity draws one line per event type over the hourly counts.
func Activity(w io.Writer, counts []analysis.HourlyCount) error {
	if len(counts) == 0 {
		return ErrNoChartData
	}

	var names []string
	byEvent := make(map[string][]analysis.HourlyCount)
	for _, c := range counts {
		if _, ok := byEvent[c.Event]; !ok {
			names = append(names, c.Event)
		}
		byEvent[c.Event] = append(byEvent[c.Event], c)
	}

	var series []chart.Series
	peak := 0.0
	for i, name := range names {
		points := byEvent[name]
		xs := make([]time.Time, 0, len(points)+1)
		ys := make([]float64, 0, len(points)+1)
		for _, p := range points {
			xs = append(xs, p.Hour)
			ys = append(ys, float64(p.Total))
			peak = max(peak, float64(p.Total))
		}
		// a time series needs two points to draw a segment
		if len(xs) == 1 {
			xs = append(xs, xs[0].Add(time.Hour))
			ys = append(ys, ys[0])
		}
		col := palette[i%len(palette)]
		series = append(series, chart.TimeSeries{
			Name:    name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: col, StrokeWidth: 2},
		})
	}

	c := chart.Chart{
		Title:      "Hourly Tracker Events",
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{ValueFormatter: chart.TimeHourValueFormatter},
		YAxis:      chart.YAxis{Range: yRange(peak)},
		Series:     series,
	}
	c.Elements = []chart.Renderable{chart.Legend(&c)}
	return c.Render(chart.SVG, w)
}
