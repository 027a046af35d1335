// Package report renders alerts, price movers and visibility stats as
// terminal tables.
package report

import (
	"io"
	"strconv"

	"github.com/aluiziolira/go-travel-monitor/alerts"
	"github.com/aluiziolira/go-travel-monitor/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04"

// NewTable returns a rounded table writer rendering to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Alerts prints one row per alert in the order given.
func Alerts(w io.Writer, list []models.Alert) {
	alertTable(w, "Price alerts", list)
}

func alertTable(w io.Writer, title string, list []models.Alert) {
	t := NewTable(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Time", "Type", "Hotel", "Old", "New", "Change", "%"})
	for _, a := range list {
		t.AppendRow(table.Row{
			a.Timestamp.Local().Format(timeLayout),
			string(a.AlertType),
			a.HotelName,
			money(a.OldPrice),
			optional(a.NewPrice, money),
			optional(a.PriceChange, signed),
			optional(a.PriceChangePct, signed),
		})
	}
	t.SetColumnConfigs(numericColumns(4, 5, 6, 7))
	t.AppendFooter(table.Row{"", "", "Total", len(list)})
	t.Render()
}

// Deltas prints price deltas under title.
func Deltas(w io.Writer, title string, deltas []models.Delta) {
	t := NewTable(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Hotel", "Since", "Old", "New", "Change", "%"})
	for _, d := range deltas {
		t.AppendRow(table.Row{
			d.HotelName,
			d.BaselineAt.Local().Format(timeLayout),
			d.OldPrice.StringFixed(2),
			d.NewPrice.StringFixed(2),
			withSign(d.Change.StringFixed(2), d.Change.IsPositive()),
			withSign(d.ChangePercent.StringFixed(1), d.ChangePercent.IsPositive()),
		})
	}
	t.SetColumnConfigs(numericColumns(3, 4, 5, 6))
	t.Render()
}

// Visibility prints the visibility summary.
func Visibility(w io.Writer, stats models.VisibilityStats) {
	t := NewTable(w)
	t.SetTitle("Offer visibility")
	last := "never"
	if stats.LastRunTimestamp != nil {
		last = stats.LastRunTimestamp.Local().Format(timeLayout)
	}
	t.AppendRows([]table.Row{
		{"Visible offers", stats.VisibleCount},
		{"Hidden offers", stats.HiddenCount},
		{"Tracked offers", stats.TotalTrackedOffers},
		{"Last run", last},
	})
	t.Render()
}

// Summary prints alert counts followed by the largest moves.
func Summary(w io.Writer, s alerts.Summary) {
	t := NewTable(w)
	t.SetTitle("Alert summary")
	t.AppendRows([]table.Row{
		{"Total", s.Total},
		{"Price drops", s.Drops},
		{"Price increases", s.Increases},
		{"Missing hotels", s.Missing},
	})
	t.Render()

	if len(s.TopDrops) > 0 {
		alertTable(w, "Largest drops", s.TopDrops)
	}
	if len(s.TopIncreases) > 0 {
		alertTable(w, "Largest increases", s.TopIncreases)
	}
}

func numericColumns(numbers ...int) []table.ColumnConfig {
	out := make([]table.ColumnConfig, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	return out
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func signed(v float64) string {
	return withSign(money(v), v > 0)
}

func withSign(s string, positive bool) string {
	if positive {
		return "+" + s
	}
	return s
}

func optional(v *float64, format func(float64) string) string {
	if v == nil {
		return "-"
	}
	return format(*v)
}
