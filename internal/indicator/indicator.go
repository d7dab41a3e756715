// Package indicator computes technical indicators over a window of candles.
//
// The Engine is stateless: given the same candle window and configuration it
// always produces the same Series. Each indicator family (trend, momentum,
// volatility, volume, price action) is computed in isolation — a failure in
// one family is recorded on the Series and never aborts the others.
package indicator

import (
	"fmt"
	"math"
	"strings"

	"signal-servicev1/internal/model"
)

// Config holds the look-back periods for the configurable families.
// The volume moving-average window is fixed (volumeMAWindow).
type Config struct {
	EMAFast   int     // fast trend average period (must be < EMASlow)
	EMASlow   int     // slow trend average period
	RSIPeriod int     // momentum oscillator period
	BBPeriod  int     // volatility band window
	BBStdDev  float64 // band width in standard deviations
	ATRPeriod int     // average true range smoothing period
}

const (
	// Rolling mean window for volume analysis. Deliberately independent of
	// the configurable indicator periods.
	volumeMAWindow = 20

	// Rolling mean window for the single-step price change.
	priceChangeMAWindow = 5

	// Steps back for the multi-step momentum delta (close - close[n-4]).
	momentumSteps = 4

	// Neutral fill for leading oscillator values.
	rsiNeutral = 50.0
)

// Snapshot holds every indicator value for one candle. Values are recomputed
// from scratch over the full window each analysis cycle.
type Snapshot struct {
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`

	RSI float64 `json:"rsi"` // bounded [0,100]

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`
	BBWidth  float64 `json:"bb_width"` // (upper-lower)/middle, volatility gauge

	VWAP float64 `json:"vwap"` // running, across the whole loaded history

	VolumeMA    float64 `json:"volume_ma"`
	VolumeRatio float64 `json:"volume_ratio"` // current/average, degenerate → 1.0

	ATR float64 `json:"atr"`

	PriceChange   float64 `json:"price_change"`    // single-step close change ratio
	PriceChangeMA float64 `json:"price_change_ma"` // short rolling mean of PriceChange
	Momentum      float64 `json:"momentum"`        // close - close[n-momentumSteps]
}

// Series is the indicator-augmented candle window: one Snapshot per Candle,
// plus the per-family failure record feeding the data-quality gate.
type Series struct {
	Candles   []model.Candle
	Snapshots []Snapshot

	failed map[string]error // family name → failure reason
}

// Len returns the number of candles in the window.
func (s *Series) Len() int { return len(s.Candles) }

// Latest returns the most recent snapshot, or nil on an empty series.
func (s *Series) Latest() *Snapshot {
	if len(s.Snapshots) == 0 {
		return nil
	}
	return &s.Snapshots[len(s.Snapshots)-1]
}

// Prev returns the second-most-recent snapshot, or nil if there is none.
func (s *Series) Prev() *Snapshot {
	if len(s.Snapshots) < 2 {
		return nil
	}
	return &s.Snapshots[len(s.Snapshots)-2]
}

// FailedFamilies lists the indicator families that could not be computed.
func (s *Series) FailedFamilies() []string {
	names := make([]string, 0, len(s.failed))
	for name := range s.failed {
		names = append(names, name)
	}
	return names
}

// Complete reports whether the latest snapshot carries finite values for
// every field the scoring strategy requires. Incomplete series are treated
// as no-signal by the caller, never as an error.
func (s *Series) Complete() bool {
	if len(s.failed) > 0 {
		return false
	}
	latest := s.Latest()
	if latest == nil {
		return false
	}
	required := []float64{
		latest.EMAFast, latest.EMASlow, latest.RSI,
		latest.BBUpper, latest.BBLower, latest.BBWidth,
		latest.VWAP, latest.ATR, latest.VolumeRatio,
	}
	for _, v := range required {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FieldError reports candles with absent or non-finite OHLCV fields.
// The engine refuses to compute over malformed input; callers skip the
// analysis cycle.
type FieldError struct {
	Fields []string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("candles missing required fields: %s", strings.Join(e.Fields, ", "))
}
