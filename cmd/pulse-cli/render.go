package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/haolin-w/pulse/internal/models"
	"github.com/haolin-w/pulse/internal/symbols"
)

var sectionTitles = map[string]string{
	"us_indices":            "US Indices",
	"us_stocks":             "US Stocks",
	"tw_markets":            "Taiwan Markets",
	"international_markets": "International Markets",
	"metals_futures":        "Metals Futures",
	"crypto":                "Crypto",
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleColoredDark)
	tw.Style().Options.DrawBorder = false
	tw.Style().Format.Header = text.FormatUpper
	if title != "" {
		tw.SetTitle(title)
	}
	return tw
}

func fmtPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func fmtChange(q *models.Quote) string {
	if q.CurrentPrice == nil || q.PreviousClose == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f (%+.2f%%)", q.Change, q.ChangePercent)
}

func renderSection(w io.Writer, reg *symbols.Registry, name string, quotes models.SectionQuotes) {
	title := sectionTitles[name]
	if title == "" {
		title = name
	}
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Symbol", "Name", "Price", "Change", "Source"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Price", Align: text.AlignRight},
		{Name: "Change", Align: text.AlignRight},
	})
	for _, sym := range reg.SortedSymbols(name) {
		q, ok := quotes[sym]
		if !ok || q == nil {
			continue
		}
		label := q.Name
		if q.EarningsDate != "" {
			label = fmt.Sprintf("%s (E %s)", label, q.EarningsDate)
		}
		tw.AppendRow(table.Row{sym, label, fmtPrice(q.CurrentPrice), fmtChange(q), q.Source})
	}
	tw.Render()
	fmt.Fprintln(w)
}

func renderEarnings(w io.Writer, title string, entries []models.EarningsEntry) {
	if len(entries) == 0 {
		return
	}
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Symbol", "Name", "Date", "In"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "In", Align: text.AlignRight},
	})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Symbol, e.Name, e.Date, fmt.Sprintf("%dd", e.DaysUntil)})
	}
	tw.Render()
	fmt.Fprintln(w)
}

func renderSkipped(w io.Writer, skipped []models.SkippedSymbol) {
	if len(skipped) == 0 {
		return
	}
	parts := make([]string, 0, len(skipped))
	for _, s := range skipped {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Symbol, s.Section))
	}
	fmt.Fprintf(w, "skipped: %s\n", strings.Join(parts, ", "))
}

func renderRatios(w io.Writer, summary *models.RatiosSummary) {
	tw := newTable(w, "Price Ratios")
	tw.AppendHeader(table.Row{"ID", "Name", "Current", "Low", "High", "Period", "Error"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Current", Align: text.AlignRight},
		{Name: "Low", Align: text.AlignRight},
		{Name: "High", Align: text.AlignRight},
	})
	for _, r := range summary.Ratios {
		tw.AppendRow(table.Row{
			r.ID, r.Name,
			fmtRatio(r.Current), fmtRatio(r.RangeLow), fmtRatio(r.RangeHigh),
			r.PeriodLabel, r.Error,
		})
	}
	tw.Render()
}

func fmtRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func renderHistory(w io.Writer, series *models.HistorySeries, tail int) {
	title := fmt.Sprintf("%s %s", series.Symbol, series.Period)
	if series.Name != "" {
		title = fmt.Sprintf("%s (%s) %s", series.Symbol, series.Name, series.Period)
	}
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Date", "Close"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Close", Align: text.AlignRight},
	})
	start := 0
	if tail > 0 && len(series.Dates) > tail {
		start = len(series.Dates) - tail
	}
	for i := start; i < len(series.Dates); i++ {
		tw.AppendRow(table.Row{series.Dates[i], fmt.Sprintf("%.2f", series.Values[i])})
	}
	tw.Render()
	if start > 0 {
		fmt.Fprintf(w, "(%d earlier rows hidden)\n", start)
	}
}

func renderInstitutional(w io.Writer, ytd *models.InstitutionalYTD, tail int) {
	tw := newTable(w, fmt.Sprintf("TWSE Institutional Net %d (NT$ millions, cumulative)", ytd.Year))
	tw.AppendHeader(table.Row{"Date", "Foreign", "Trust", "Dealer", "Total"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Foreign", Align: text.AlignRight},
		{Name: "Trust", Align: text.AlignRight},
		{Name: "Dealer", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
	})
	start := 0
	if tail > 0 && len(ytd.Labels) > tail {
		start = len(ytd.Labels) - tail
	}
	for i := start; i < len(ytd.Labels); i++ {
		tw.AppendRow(table.Row{
			ytd.Labels[i],
			fmt.Sprintf("%.1f", ytd.CumulativeForeignMillions[i]),
			fmt.Sprintf("%.1f", ytd.CumulativeTrustMillions[i]),
			fmt.Sprintf("%.1f", ytd.CumulativeDealerMillions[i]),
			fmt.Sprintf("%.1f", ytd.CumulativeTotalMillions[i]),
		})
	}
	tw.Render()
	if start > 0 {
		fmt.Fprintf(w, "(%d earlier rows hidden)\n", start)
	}
	if ytd.FetchError != "" {
		fmt.Fprintf(w, "fetch warning: %s\n", ytd.FetchError)
	}
	if len(ytd.UploadedDates) > 0 {
		fmt.Fprintf(w, "uploaded CSVs: %s\n", strings.Join(ytd.UploadedDates, ", "))
	}
}
