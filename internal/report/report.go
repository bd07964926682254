// Package report renders the daily P&L page: realized P&L bars, a cumulative
// line and a performance summary, as a self-contained HTML document.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"coinbutler/internal/store/tradelog"
)

type HistorySource interface {
	DailyHistory() (days []string, pnls []float64, err error)
}

type StatsSource interface {
	StatsSince(cutoff time.Time) (tradelog.Stats, error)
}

type Builder struct {
	history HistorySource
	stats   StatsSource
	title   string
}

func NewBuilder(history HistorySource, stats StatsSource, title string) *Builder {
	return &Builder{history: history, stats: stats, title: title}
}

// Render 输出完整的 HTML 报表页。
func (b *Builder) Render(w io.Writer, statsDays int) error {
	days, pnls, err := b.history.DailyHistory()
	if err != nil {
		return fmt.Errorf("report: history read failed: %w", err)
	}
	stats, err := b.stats.StatsSince(time.Now().AddDate(0, 0, -statsDays))
	if err != nil {
		return fmt.Errorf("report: stats read failed: %w", err)
	}

	barData := make([]opts.BarData, 0, len(pnls))
	lineData := make([]opts.LineData, 0, len(pnls))
	var cum float64
	for _, pnl := range pnls {
		cum += pnl
		barData = append(barData, opts.BarData{Value: pnl})
		lineData = append(lineData, opts.LineData{Value: cum})
	}

	subtitle := fmt.Sprintf("last %dd: %d trades, win rate %.1f%%, total %+.2f, avg %+.2f",
		statsDays, stats.TotalTrades, stats.WinRate, stats.TotalPnL, stats.AvgPnL)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: b.title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	bar.SetXAxis(days).AddSeries("daily realized P&L", barData)

	line := charts.NewLine()
	line.SetXAxis(days).AddSeries("cumulative", lineData,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	bar.Overlap(line)

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(bar)
	return page.Render(w)
}
