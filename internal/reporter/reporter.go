package reporter

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"llm-trading-bot-go/internal/strategy"
)

// SessionReport renders a per-version performance table for the whole
// derivation chain, newest version first.
func SessionReport(w io.Writer, store *strategy.Store, tracker *strategy.Tracker, startedAt time.Time) {
	versions := store.ListAll()
	currentID := store.CurrentID()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Strategy Session Report (since %s)", startedAt.Format("2006-01-02 15:04"))
	t.AppendHeader(table.Row{"Version", "Parent", "Trades", "Win Rate", "Profit Factor", "Max DD", "Net P/L", "Reason"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Win Rate", Align: text.AlignRight},
		{Name: "Profit Factor", Align: text.AlignRight},
		{Name: "Max DD", Align: text.AlignRight},
		{Name: "Net P/L", Align: text.AlignRight},
	})

	for _, v := range versions {
		record, err := tracker.Get(v.VersionID)
		if err != nil {
			continue
		}

		name := v.VersionID
		if v.VersionID == currentID {
			name += " *"
		}
		t.AppendRow(table.Row{
			name,
			orDash(v.ParentVersion),
			record.TradesExecuted,
			fmt.Sprintf("%.1f%%", record.WinRate*100),
			formatProfitFactor(record.ProfitFactor),
			fmt.Sprintf("%.2f", record.MaxDrawdown),
			fmt.Sprintf("%+.2f", record.CumulativePnL),
			orDash(v.ChangeReason),
		})
	}

	t.AppendFooter(table.Row{fmt.Sprintf("%d versions", len(versions)), "", "", "", "", "", "", "* = current"})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
