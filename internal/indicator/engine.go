package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"signal-servicev1/internal/model"
)

// Engine computes all indicator families over a candle window.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// NewEngine creates an engine with the given periods.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, log: log.With(slog.String("component", "indicator"))}
}

// family pairs a name with its computation for isolated execution.
type family struct {
	name    string
	compute func(candles []model.Candle, snaps []Snapshot) error
}

// Compute turns an ordered candle window into an indicator-augmented Series.
// It fails only on empty input or malformed candle fields; individual family
// failures are logged, recorded on the Series, and surfaced through the
// data-quality check (Series.Complete).
func (e *Engine) Compute(candles []model.Candle) (*Series, error) {
	if len(candles) == 0 {
		return nil, errors.New("indicator: empty candle window")
	}
	if missing := validateFields(candles); len(missing) > 0 {
		return nil, &FieldError{Fields: missing}
	}

	series := &Series{
		Candles:   candles,
		Snapshots: make([]Snapshot, len(candles)),
		failed:    make(map[string]error),
	}

	families := []family{
		{"trend", e.computeEMAs},
		{"momentum", e.computeRSI},
		{"volatility", e.computeBands},
		{"vwap", e.computeVWAP},
		{"volume", e.computeVolume},
		{"atr", e.computeATR},
		{"price_action", e.computePriceAction},
	}

	for _, f := range families {
		if err := e.runFamily(f, candles, series.Snapshots); err != nil {
			series.failed[f.name] = err
			e.log.Error("indicator family failed",
				slog.String("family", f.name),
				slog.String("error", err.Error()))
		}
	}

	return series, nil
}

// runFamily executes one family computation, converting panics from
// unexpected numeric failures into recorded errors.
func (e *Engine) runFamily(f family, candles []model.Candle, snaps []Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.compute(candles, snaps)
}

// validateFields returns the sorted names of OHLCV fields that are absent
// (non-finite, or non-positive where a price is required) in any candle.
func validateFields(candles []model.Candle) []string {
	missing := map[string]bool{}
	for i := range candles {
		c := &candles[i]
		for _, fv := range []struct {
			name  string
			value float64
			price bool
		}{
			{"open", c.Open, true},
			{"high", c.High, true},
			{"low", c.Low, true},
			{"close", c.Close, true},
			{"volume", c.Volume, false},
		} {
			bad := math.IsNaN(fv.value) || math.IsInf(fv.value, 0)
			if fv.price && fv.value <= 0 {
				bad = true
			}
			if !fv.price && fv.value < 0 {
				bad = true
			}
			if bad {
				missing[fv.name] = true
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ── Trend: fast/slow exponential moving averages ──

func (e *Engine) computeEMAs(candles []model.Candle, snaps []Snapshot) error {
	fast := ema(candles, e.cfg.EMAFast)
	slow := ema(candles, e.cfg.EMASlow)
	for i := range snaps {
		snaps[i].EMAFast = fast[i]
		snaps[i].EMASlow = slow[i]
	}
	return nil
}

// ema computes an exponential moving average over closes. Leading values are
// seeded from the first close rather than left undefined, so the series has
// a value at every index.
func ema(candles []model.Candle, period int) []float64 {
	out := make([]float64, len(candles))
	multiplier := 2.0 / float64(period+1)

	out[0] = candles[0].Close
	for i := 1; i < len(candles); i++ {
		out[i] = candles[i].Close*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}

// ── Momentum: relative-strength oscillator, bounded [0,100] ──

func (e *Engine) computeRSI(candles []model.Candle, snaps []Snapshot) error {
	period := e.cfg.RSIPeriod

	var avgGain, avgLoss float64
	for i := range candles {
		if i == 0 {
			// No delta yet — neutral fill.
			snaps[0].RSI = rsiNeutral
			continue
		}

		delta := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}

		if i <= period {
			// Accumulation phase: build the initial averages; fill the
			// leading values at the neutral midpoint.
			avgGain += gain
			avgLoss += loss
			if i < period {
				snaps[i].RSI = rsiNeutral
				continue
			}
			avgGain /= float64(period)
			avgLoss /= float64(period)
		} else {
			// Wilder's smoothing.
			p := float64(period)
			avgGain = (avgGain*(p-1) + gain) / p
			avgLoss = (avgLoss*(p-1) + loss) / p
		}

		if avgLoss == 0 {
			snaps[i].RSI = 100.0
		} else {
			rs := avgGain / avgLoss
			snaps[i].RSI = 100.0 - 100.0/(1.0+rs)
		}
	}
	return nil
}

// ── Volatility: moving average ± k standard deviations ──

func (e *Engine) computeBands(candles []model.Candle, snaps []Snapshot) error {
	period := e.cfg.BBPeriod
	k := e.cfg.BBStdDev

	for i := range candles {
		// Expanding prefix until the full window is available.
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		n := float64(i - start + 1)

		var sum float64
		for j := start; j <= i; j++ {
			sum += candles[j].Close
		}
		mean := sum / n

		var variance float64
		for j := start; j <= i; j++ {
			d := candles[j].Close - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)

		upper := mean + k*std
		lower := mean - k*std

		snaps[i].BBUpper = upper
		snaps[i].BBMiddle = mean
		snaps[i].BBLower = lower
		if mean != 0 {
			snaps[i].BBWidth = (upper - lower) / mean
		}
	}
	return nil
}

// ── Reference price line: cumulative volume-weighted average price ──

func (e *Engine) computeVWAP(candles []model.Candle, snaps []Snapshot) error {
	var pvSum, volSum float64
	for i := range candles {
		pvSum += candles[i].TypicalPrice() * candles[i].Volume
		volSum += candles[i].Volume
		if volSum > 0 {
			snaps[i].VWAP = pvSum / volSum
		} else {
			snaps[i].VWAP = candles[i].TypicalPrice()
		}
	}
	return nil
}

// ── Volume: rolling mean and current/average ratio ──

func (e *Engine) computeVolume(candles []model.Candle, snaps []Snapshot) error {
	for i := range candles {
		start := i - volumeMAWindow + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += candles[j].Volume
		}
		ma := sum / float64(i-start+1)
		snaps[i].VolumeMA = ma

		ratio := 1.0 // degenerate ratios mean "typical volume"
		if ma > 0 {
			r := candles[i].Volume / ma
			if !math.IsNaN(r) && !math.IsInf(r, 0) {
				ratio = r
			}
		}
		snaps[i].VolumeRatio = ratio
	}
	return nil
}

// ── Average true range ──

func (e *Engine) computeATR(candles []model.Candle, snaps []Snapshot) error {
	period := e.cfg.ATRPeriod

	tr := make([]float64, len(candles))
	for i := range candles {
		hl := candles[i].High - candles[i].Low
		if i == 0 {
			tr[0] = hl
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(hl, math.Max(
			math.Abs(candles[i].High-prevClose),
			math.Abs(candles[i].Low-prevClose)))
	}

	var sum float64
	for i := range candles {
		if i < period {
			// Expanding mean until the smoothing seed is available.
			sum += tr[i]
			snaps[i].ATR = sum / float64(i+1)
			continue
		}
		p := float64(period)
		snaps[i].ATR = (snaps[i-1].ATR*(p-1) + tr[i]) / p
	}
	return nil
}

// ── Price action: step change, its short mean, and a multi-step delta ──

func (e *Engine) computePriceAction(candles []model.Candle, snaps []Snapshot) error {
	for i := range candles {
		if i > 0 && candles[i-1].Close != 0 {
			snaps[i].PriceChange = (candles[i].Close - candles[i-1].Close) / candles[i-1].Close
		}

		start := i - priceChangeMAWindow + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += snaps[j].PriceChange
		}
		snaps[i].PriceChangeMA = sum / float64(i-start+1)

		if i >= momentumSteps {
			snaps[i].Momentum = candles[i].Close - candles[i-momentumSteps].Close
		}
	}
	return nil
}
