package strategy

import (
	"math"
)

// PositionSize computes the suggested quantity so that riskPct of capital is
// lost if the stop is hit. Purely informational — the service never places
// orders. Returns 0 when entry equals the stop (no division by zero).
func (s *Scorer) PositionSize(capital, entryPrice, stopLoss, riskPct float64) float64 {
	riskCapital := capital * riskPct
	stopDistance := math.Abs(entryPrice - stopLoss)

	if stopDistance == 0 {
		s.log.Warn("stop loss equals entry price, cannot size position")
		return 0
	}

	qty := riskCapital / stopDistance
	return math.Round(qty*1000) / 1000
}
