package signalgen

import (
	"time"

	"signal-servicev1/internal/model"
)

// PerformanceStats aggregates the performance log over the trailing window.
// Returns nil when no signal closed within the window. Read-only.
func (g *Generator) PerformanceStats(windowDays int) *model.PerformanceStats {
	cutoff := g.now().AddDate(0, 0, -windowDays)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var recent []model.Signal
	for _, s := range g.history {
		if s.ClosedAt != nil && s.ClosedAt.After(cutoff) {
			recent = append(recent, s)
		}
	}
	if len(recent) == 0 {
		return nil
	}

	stats := &model.PerformanceStats{TotalSignals: len(recent)}

	var winSum, lossSum float64
	for _, s := range recent {
		stats.TotalPnl += s.PnlPercent
		if s.PnlPercent > 0 {
			stats.Winners++
			winSum += s.PnlPercent
		} else {
			stats.Losers++
			lossSum += s.PnlPercent
		}
	}

	stats.WinRate = float64(stats.Winners) / float64(stats.TotalSignals)
	if stats.Winners > 0 {
		stats.AvgWin = winSum / float64(stats.Winners)
	}
	if stats.Losers > 0 {
		stats.AvgLoss = lossSum / float64(stats.Losers)
	}
	if lossSum != 0 {
		stats.ProfitFactor = winSum / -lossSum
	}

	return stats
}

// ClosedSince returns closed signals from the trailing window, oldest first.
// Used by the bot's history view.
func (g *Generator) ClosedSince(window time.Duration) []model.Signal {
	cutoff := g.now().Add(-window)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []model.Signal
	for _, s := range g.history {
		if s.ClosedAt != nil && s.ClosedAt.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
