// Package strategy scores indicator-augmented candle windows into directional
// trading decisions with a confidence value and volatility-adaptive
// protective levels.
//
// Six weighted components each contribute to a buy or sell accumulator
// (never both). Confidence is the larger accumulator and is deliberately
// not clamped: cross bonuses and volume confirmation can push it above 1.0,
// which is reported as-is as an over-confidence reading.
package strategy

import (
	"log/slog"
	"sync"
	"time"

	"signal-servicev1/config"
	"signal-servicev1/internal/indicator"
	"signal-servicev1/internal/model"
)

const (
	// Minimum candles required before any scoring happens.
	minWindow = 50

	// Bonus added when the fast average crosses the slow one this step.
	crossBonus = 0.05

	// Oscillator band where momentum contributes nothing.
	rsiNeutralLow  = 40.0
	rsiNeutralHigh = 60.0
	rsiMidpoint    = 50.0

	// Persistent deviation from the VWAP line earning a half-weight.
	vwapDeviation = 0.001

	// Single-step close change required for a price-action contribution.
	priceActionThreshold = 0.002
)

// Levels holds the protective prices derived from volatility at decision time.
type Levels struct {
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	ATR        float64 `json:"atr"`
	RiskReward float64 `json:"risk_reward"`
}

// Decision is the outcome of one analysis pass. Levels is nil on HOLD.
type Decision struct {
	Direction  model.Direction
	Confidence float64
	Levels     *Levels
}

// Scorer evaluates indicator series and enforces the per-(symbol, direction)
// emission cooldown. The cooldown map is owned state, threaded explicitly —
// no package-level globals.
type Scorer struct {
	params *config.Params
	log    *slog.Logger

	mu       sync.Mutex
	lastEmit map[string]time.Time

	now func() time.Time // injectable for tests
}

// NewScorer creates a scorer with an empty cooldown state.
func NewScorer(params *config.Params, log *slog.Logger) *Scorer {
	if log == nil {
		log = slog.Default()
	}
	return &Scorer{
		params:   params,
		log:      log.With(slog.String("component", "strategy")),
		lastEmit: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Analyze scores the series into a decision. Windows shorter than 50 candles
// and series failing the data-quality gate yield HOLD with zero confidence —
// an insufficient-data policy, not an error.
func (s *Scorer) Analyze(series *indicator.Series) Decision {
	if series == nil || series.Len() < minWindow {
		s.log.Debug("insufficient candle history", slog.Int("candles", seriesLen(series)))
		return Decision{Direction: model.DirectionHold}
	}
	if !series.Complete() {
		s.log.Warn("data-quality gate rejected series",
			slog.Any("failed_families", series.FailedFamilies()))
		return Decision{Direction: model.DirectionHold}
	}

	direction, confidence := s.score(series)
	if direction == model.DirectionHold {
		return Decision{Direction: model.DirectionHold, Confidence: confidence}
	}

	levels := s.protectiveLevels(series.Latest(), series.Candles[series.Len()-1].Close, direction)
	return Decision{Direction: direction, Confidence: confidence, Levels: levels}
}

func seriesLen(s *indicator.Series) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

// score runs the six weighted components against the latest and previous
// snapshots and applies the minimum-confidence gate.
func (s *Scorer) score(series *indicator.Series) (model.Direction, float64) {
	latest := series.Latest()
	prev := series.Prev()
	close := series.Candles[series.Len()-1].Close
	prevClose := series.Candles[series.Len()-2].Close
	w := s.params.Weights

	var buy, sell float64

	// 1. Trend: fast vs slow average, with a bonus for a fresh cross.
	switch {
	case latest.EMAFast > latest.EMASlow:
		buy += w.Trend
		if prev.EMAFast <= prev.EMASlow {
			buy += crossBonus
			s.log.Debug("golden cross detected")
		}
	case latest.EMAFast < latest.EMASlow:
		sell += w.Trend
		if prev.EMAFast >= prev.EMASlow {
			sell += crossBonus
			s.log.Debug("death cross detected")
		}
	}

	// 2. Momentum: oversold/overbought at full weight, mild skew at half.
	rsi := latest.RSI
	switch {
	case rsi < s.params.RSIOversold:
		buy += w.Momentum
	case rsi > s.params.RSIOverbought:
		sell += w.Momentum
	case rsi > rsiNeutralLow && rsi < rsiNeutralHigh:
		// Neutral band — no contribution.
	case rsi < rsiMidpoint:
		buy += w.Momentum * 0.5
	default:
		sell += w.Momentum * 0.5
	}

	// 3. Volatility bands: only meaningful when the width gauge shows
	// enough volatility; otherwise skipped entirely.
	if latest.BBWidth > s.params.MinVolatility {
		if close <= latest.BBLower {
			buy += w.Bands
		} else if close >= latest.BBUpper {
			sell += w.Bands
		}
	} else {
		s.log.Debug("volatility too low, bands skipped",
			slog.Float64("bb_width", latest.BBWidth))
	}

	// 4. VWAP: a fresh cross at full weight, persistent deviation at half.
	switch {
	case close > latest.VWAP && prevClose <= prev.VWAP:
		buy += w.VWAP
	case close < latest.VWAP && prevClose >= prev.VWAP:
		sell += w.VWAP
	case close > latest.VWAP*(1+vwapDeviation):
		buy += w.VWAP * 0.5
	case close < latest.VWAP*(1-vwapDeviation):
		sell += w.VWAP * 0.5
	}

	// 5. Volume confirmation: reinforces whichever side already leads after
	// components 1-4. It never initiates a direction, and a tie gets nothing.
	if latest.VolumeRatio > s.params.MinVolumeRatio {
		if buy > sell {
			buy += w.Volume
		} else if sell > buy {
			sell += w.Volume
		}
	}

	// 6. Price action: a strong single-step move.
	if latest.PriceChange > priceActionThreshold {
		buy += w.PriceAction
	} else if latest.PriceChange < -priceActionThreshold {
		sell += w.PriceAction
	}

	confidence := buy
	if sell > confidence {
		confidence = sell
	}

	if confidence < s.params.MinConfidence {
		return model.DirectionHold, confidence
	}

	switch {
	case buy > sell:
		s.log.Debug("buy signal scored",
			slog.Float64("buy_score", buy), slog.Float64("sell_score", sell))
		return model.DirectionBuy, buy
	case sell > buy:
		s.log.Debug("sell signal scored",
			slog.Float64("sell_score", sell), slog.Float64("buy_score", buy))
		return model.DirectionSell, sell
	default:
		// Exact tie — no directional edge.
		return model.DirectionHold, confidence
	}
}

// protectiveLevels derives stop-loss/take-profit prices from the latest ATR.
func (s *Scorer) protectiveLevels(latest *indicator.Snapshot, entry float64, dir model.Direction) *Levels {
	stopDistance := latest.ATR * s.params.StopLossMultiplier
	profitDistance := latest.ATR * s.params.TakeProfitMultiplier

	var stopLoss, takeProfit float64
	if dir == model.DirectionBuy {
		stopLoss = entry - stopDistance
		takeProfit = entry + profitDistance
	} else {
		stopLoss = entry + stopDistance
		takeProfit = entry - profitDistance
	}

	risk := abs(entry - stopLoss)
	reward := abs(takeProfit - entry)
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}

	return &Levels{
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		ATR:        latest.ATR,
		RiskReward: riskReward,
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
