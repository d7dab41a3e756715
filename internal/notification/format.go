package notification

import (
	"fmt"
	"strings"

	"signal-servicev1/internal/model"
)

// FormatSignal renders a freshly generated signal for delivery. The result
// is MarkdownV2-safe.
func FormatSignal(sig *model.Signal, leverage int, riskPct float64) string {
	emoji, side := "🟢", "LONG"
	if sig.Direction == model.DirectionSell {
		emoji, side = "🔴", "SHORT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *TRADING SIGNAL* %s\n\n", emoji, emoji)
	fmt.Fprintf(&b, "📊 *Pair:* %s\n", escapeMarkdown(sig.Symbol))
	fmt.Fprintf(&b, "🎯 *Type:* %s \\(%s\\)\n", sig.Direction, side)
	fmt.Fprintf(&b, "💰 *Entry:* %s\n", escapeMarkdown(fmt.Sprintf("$%.2f", sig.EntryPrice)))
	fmt.Fprintf(&b, "📈 *Confidence:* %s\n\n", escapeMarkdown(fmt.Sprintf("%.0f%%", sig.Confidence*100)))
	fmt.Fprintf(&b, "🛡️ *Stop Loss:* %s\n", escapeMarkdown(fmt.Sprintf("$%.2f", sig.StopLoss)))
	fmt.Fprintf(&b, "🎯 *Take Profit:* %s\n", escapeMarkdown(fmt.Sprintf("$%.2f", sig.TakeProfit)))
	fmt.Fprintf(&b, "📊 *Risk/Reward:* %s\n\n", escapeMarkdown(fmt.Sprintf("1:%.2f", sig.RiskReward)))
	fmt.Fprintf(&b, "💡 _%s_\n", escapeMarkdown(fmt.Sprintf("Use %.0f%% of your capital per trade", riskPct*100)))
	fmt.Fprintf(&b, "⚡ _%s_\n\n", escapeMarkdown(fmt.Sprintf("Suggested leverage: %dx", leverage)))
	fmt.Fprintf(&b, "🕐 %s", escapeMarkdown(sig.CreatedAt.UTC().Format("15:04:05")))
	return b.String()
}

// FormatClosure renders a closed signal's outcome.
func FormatClosure(sig *model.Signal) string {
	var emoji, verdict string
	switch sig.Status {
	case model.StatusTakeProfit:
		emoji, verdict = "✅", "TAKE PROFIT HIT"
	case model.StatusStopLoss:
		emoji, verdict = "❌", "STOP LOSS HIT"
	default:
		emoji, verdict = "⏱️", "EXPIRED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n\n", emoji, escapeMarkdown(verdict))
	fmt.Fprintf(&b, "📊 *Pair:* %s \\(%s\\)\n", escapeMarkdown(sig.Symbol), sig.Direction)
	fmt.Fprintf(&b, "💰 *Entry:* %s\n", escapeMarkdown(fmt.Sprintf("$%.2f", sig.EntryPrice)))
	fmt.Fprintf(&b, "🏁 *Close:* %s\n", escapeMarkdown(fmt.Sprintf("$%.2f", sig.ClosePrice)))
	fmt.Fprintf(&b, "📈 *P&L:* %s\n", escapeMarkdown(fmt.Sprintf("%+.2f%%", sig.PnlPercent)))
	fmt.Fprintf(&b, "🕐 *Duration:* %s", escapeMarkdown(fmt.Sprintf("%.1f min", sig.DurationMinutes)))
	return b.String()
}

// FormatStats renders a performance aggregate.
func FormatStats(stats *model.PerformanceStats, windowDays int) string {
	if stats == nil {
		return escapeMarkdown(fmt.Sprintf("No closed signals in the last %d days.", windowDays))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 *PERFORMANCE, LAST %d DAYS*\n\n", windowDays)
	fmt.Fprintf(&b, "Signals: %d\n", stats.TotalSignals)
	fmt.Fprintf(&b, "Winners: %d · Losers: %d\n", stats.Winners, stats.Losers)
	fmt.Fprintf(&b, "Win rate: %s\n", escapeMarkdown(fmt.Sprintf("%.1f%%", stats.WinRate*100)))
	fmt.Fprintf(&b, "Avg win: %s · Avg loss: %s\n",
		escapeMarkdown(fmt.Sprintf("%+.2f%%", stats.AvgWin)),
		escapeMarkdown(fmt.Sprintf("%+.2f%%", stats.AvgLoss)))
	fmt.Fprintf(&b, "Profit factor: %s\n", escapeMarkdown(fmt.Sprintf("%.2f", stats.ProfitFactor)))
	fmt.Fprintf(&b, "Total P&L: %s", escapeMarkdown(fmt.Sprintf("%+.2f%%", stats.TotalPnl)))
	return b.String()
}

// FormatActive renders the open set for the /status command.
func FormatActive(signals []model.Signal) string {
	if len(signals) == 0 {
		return escapeMarkdown("No active signals right now.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👁️ *ACTIVE SIGNALS* \\(%d\\)\n", len(signals))
	for i := range signals {
		s := &signals[i]
		emoji := "🟢"
		if s.Direction == model.DirectionSell {
			emoji = "🔴"
		}
		fmt.Fprintf(&b, "\n%s %s %s @ %s\n", emoji, escapeMarkdown(s.Symbol), s.Direction,
			escapeMarkdown(fmt.Sprintf("$%.2f", s.EntryPrice)))
		fmt.Fprintf(&b, "   SL %s · TP %s\n",
			escapeMarkdown(fmt.Sprintf("$%.2f", s.StopLoss)),
			escapeMarkdown(fmt.Sprintf("$%.2f", s.TakeProfit)))
	}
	return b.String()
}
