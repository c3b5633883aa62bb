package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"BetaBasket/internal/model"
	"BetaBasket/internal/recorder"

	"github.com/dustin/go-humanize"
)

// FormatHelp lists the supported commands.
func FormatHelp() string {
	var b strings.Builder
	b.WriteString("🧺 <b>BetaBasket</b>\n\n")
	b.WriteString("/coins [filter] - list tradable instruments\n")
	b.WriteString("/long SYM - add SYM on the long side\n")
	b.WriteString("/short SYM - add SYM on the short side\n")
	b.WriteString("/remove SYM - drop SYM from the basket\n")
	b.WriteString("/flip SYM - move SYM to the other side\n")
	b.WriteString("/beta SYM X - override the beta of a selected SYM\n")
	b.WriteString("/interval [X] - show or change the bar interval\n")
	b.WriteString("/clear - empty the basket\n")
	b.WriteString("/basket - show the synthetic index\n")
	b.WriteString("/history - last recorded snapshot\n")
	return b.String()
}

// FormatCatalog renders up to limit instruments whose symbol contains filter.
func FormatCatalog(instruments []model.Instrument, filter string, limit int) string {
	filter = strings.ToUpper(strings.TrimSpace(filter))
	matched := make([]model.Instrument, 0, len(instruments))
	for _, inst := range instruments {
		if filter == "" || strings.Contains(inst.Symbol, filter) {
			matched = append(matched, inst)
		}
	}
	if len(matched) == 0 {
		return "No instruments match."
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Symbol < matched[j].Symbol })

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Instruments</b> (%s)\n\n", humanize.Comma(int64(len(matched)))))
	for i, inst := range matched {
		if limit > 0 && i >= limit {
			b.WriteString(fmt.Sprintf("… and %s more\n", humanize.Comma(int64(len(matched)-limit))))
			break
		}
		price := "n/a"
		if inst.HasPrice() {
			price = humanize.CommafWithDigits(inst.LastPrice.InexactFloat64(), 6)
		}
		b.WriteString(fmt.Sprintf("%s  %s  β%.2f\n", inst.Symbol, price, inst.Beta))
	}
	return b.String()
}

// FormatBasket renders the selections, index level and stats of a snapshot.
// interval is shown when the snapshot does not carry its own.
func FormatBasket(snap model.Snapshot, interval string) string {
	if snap.Interval != "" {
		interval = snap.Interval
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧺 <b>Synthetic index</b> | %s bars\n\n", interval))

	if len(snap.Selections) == 0 {
		b.WriteString("Basket is empty. Use /long SYM or /short SYM.\n")
		return b.String()
	}

	b.WriteString("<b>Legs:</b>\n")
	for _, sel := range snap.Selections {
		b.WriteString(fmt.Sprintf("  %s %s β%.2f\n", directionMark(sel.Direction), sel.Symbol, sel.Beta))
	}

	last, ok := snap.Last()
	if !ok {
		b.WriteString("\nNo overlapping history in the window yet.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("\nIndex: <b>%.2f</b> over %s points\n", last.Value, humanize.Comma(int64(len(snap.Points)))))
	if p, ok := lastPoint(snap.LongLine); ok {
		b.WriteString(fmt.Sprintf("Long side: %.2f", p.Value))
		if q, ok := lastPoint(snap.ShortLine); ok {
			b.WriteString(fmt.Sprintf(" | Short side: %.2f", q.Value))
		}
		b.WriteString("\n")
	} else if q, ok := lastPoint(snap.ShortLine); ok {
		b.WriteString(fmt.Sprintf("Short side: %.2f\n", q.Value))
	}

	st := snap.Stats
	b.WriteString(fmt.Sprintf("Return: %+.2f%%\n", st.TotalReturnPct))
	b.WriteString(fmt.Sprintf("Volatility: %.2f%% ann.\n", st.AnnualizedVolPct))
	b.WriteString(fmt.Sprintf("Sharpe: %.2f\n", st.Sharpe))
	b.WriteString(fmt.Sprintf("Max drawdown: %.2f%%\n", st.MaxDrawdownPct))
	b.WriteString(fmt.Sprintf("RSI: %.0f", st.RSI))
	if st.SMA > 0 {
		b.WriteString(fmt.Sprintf(" | SMA: %.2f", st.SMA))
	}
	b.WriteString("\n")

	if len(snap.Contributions) > 0 {
		b.WriteString("\n<b>Per leg:</b>\n")
		legs := make(map[string]float64, len(snap.Legs))
		for _, l := range snap.Legs {
			if p, ok := lastPoint(l.Points); ok {
				legs[l.Symbol] = p.Value
			}
		}
		for _, c := range snap.Contributions {
			b.WriteString(fmt.Sprintf("  %s %+.2f%% (range %.0f%%, %d bars)", c.Symbol, c.ReturnPct, c.RangePos*100, c.Bars))
			if v, ok := legs[c.Symbol]; ok {
				b.WriteString(fmt.Sprintf(" → %.2f", v))
			}
			b.WriteString("\n")
		}
	}

	if !snap.ComputedAt.IsZero() {
		b.WriteString(fmt.Sprintf("\nUpdated %s", humanize.Time(snap.ComputedAt)))
	}
	return b.String()
}

// FormatRecord renders a stored snapshot.
func FormatRecord(rec *recorder.SnapshotRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>Recorded snapshot</b> #%d (%s)\n\n", rec.ID, rec.Timestamp.UTC().Format(time.DateTime)))
	for _, sel := range rec.Selections {
		b.WriteString(fmt.Sprintf("  %s %s β%.2f\n", directionMark(sel.Direction), sel.Symbol, sel.Beta))
	}
	if n := len(rec.Points); n > 0 {
		b.WriteString(fmt.Sprintf("\nIndex: %.2f over %s points\n", rec.Points[n-1].Value, humanize.Comma(int64(n))))
	}
	b.WriteString(fmt.Sprintf("Return: %+.2f%% | Max drawdown: %.2f%%\n", rec.Stats.TotalReturnPct, rec.Stats.MaxDrawdownPct))
	return b.String()
}

// FormatError renders a failed command for the chat.
func FormatError(err error) string {
	return "❌ " + html.EscapeString(err.Error())
}

func lastPoint(points []model.IndexPoint) (model.IndexPoint, bool) {
	if len(points) == 0 {
		return model.IndexPoint{}, false
	}
	return points[len(points)-1], true
}

func directionMark(d model.Direction) string {
	if d == model.Short {
		return "🔻 SHORT"
	}
	return "🔺 LONG"
}

// FormatNotice renders a data-source failure for the admin chat.
func FormatNotice(msg string) string {
	return "⚠️ <b>Data source</b>\n" + html.EscapeString(msg)
}
