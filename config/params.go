package config

import (
	"fmt"
	"math"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Weights assigns the relative importance of each scoring component.
// The six weights must sum to 1.0 (±0.01); violating sets are rejected
// at load time.
type Weights struct {
	Trend       float64 `yaml:"trend" default:"0.25" validate:"gte=0,lte=1"`
	Momentum    float64 `yaml:"momentum" default:"0.20" validate:"gte=0,lte=1"`
	Bands       float64 `yaml:"bands" default:"0.15" validate:"gte=0,lte=1"`
	VWAP        float64 `yaml:"vwap" default:"0.15" validate:"gte=0,lte=1"`
	Volume      float64 `yaml:"volume" default:"0.15" validate:"gte=0,lte=1"`
	PriceAction float64 `yaml:"price_action" default:"0.10" validate:"gte=0,lte=1"`
}

// Sum returns the total of all component weights.
func (w Weights) Sum() float64 {
	return w.Trend + w.Momentum + w.Bands + w.VWAP + w.Volume + w.PriceAction
}

// Params holds all tunable trading parameters for the analysis and
// lifecycle subsystems. Defaults mirror a 1-minute scalping setup.
type Params struct {
	// Symbols to analyze each cycle.
	Symbols []string `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\",\"SOLUSDT\",\"BNBUSDT\"]" validate:"min=1"`

	// Candle interval and window size for each analysis.
	Interval    string `yaml:"interval" default:"1m" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 12h 1d"`
	CandleLimit int    `yaml:"candle_limit" default:"100" validate:"gte=50,lte=1000"`

	// Seconds between analysis cycles.
	AnalysisIntervalSec int `yaml:"analysis_interval_sec" default:"10" validate:"gte=1"`

	// Indicator look-back periods.
	EMAFast   int     `yaml:"ema_fast" default:"9" validate:"gt=0"`
	EMASlow   int     `yaml:"ema_slow" default:"21" validate:"gt=0,gtfield=EMAFast"`
	RSIPeriod int     `yaml:"rsi_period" default:"14" validate:"gt=1"`
	BBPeriod  int     `yaml:"bb_period" default:"20" validate:"gt=1"`
	BBStdDev  float64 `yaml:"bb_std_dev" default:"2.0" validate:"gt=0"`
	ATRPeriod int     `yaml:"atr_period" default:"14" validate:"gt=0"`

	// RSI decision thresholds.
	RSIOverbought float64 `yaml:"rsi_overbought" default:"70" validate:"gt=50,lte=100"`
	RSIOversold   float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lt=50"`

	// Protective level multipliers applied to ATR at entry.
	StopLossMultiplier   float64 `yaml:"stop_loss_multiplier" default:"2.0" validate:"gt=0"`
	TakeProfitMultiplier float64 `yaml:"take_profit_multiplier" default:"3.0" validate:"gt=0"`

	// Signal quality gates.
	MinConfidence  float64 `yaml:"min_confidence" default:"0.50" validate:"gte=0,lte=1"`
	MinVolumeRatio float64 `yaml:"min_volume_ratio" default:"1.5" validate:"gt=0"`
	MinVolatility  float64 `yaml:"min_volatility" default:"0.02" validate:"gte=0"`

	// Minutes before the same (symbol, direction) may emit again.
	CooldownMinutes int `yaml:"cooldown_minutes" default:"5" validate:"gte=0"`

	// Hours after which an open signal closes as EXPIRED.
	MaxSignalLifetimeHours int `yaml:"max_signal_lifetime_hours" default:"24" validate:"gt=0"`

	// Informational suggestions included in delivered signals. Never executed.
	SuggestedLeverage     int     `yaml:"suggested_leverage" default:"3" validate:"gte=1,lte=125"`
	RecommendedRiskPct    float64 `yaml:"recommended_risk_pct" default:"0.02" validate:"gt=0,lte=1"`
	PerformanceWindowDays int     `yaml:"performance_window_days" default:"7" validate:"gt=0"`

	Weights Weights `yaml:"weights"`
}

// weightTolerance is the allowed deviation of the weight sum from 1.0.
const weightTolerance = 0.01

// LoadParams reads trading parameters from the given YAML file, applying
// defaults for unset fields. An empty path yields the built-in defaults.
// Invalid parameter sets — including weights not summing to 1.0 — are
// rejected with an error.
func LoadParams(path string) (*Params, error) {
	p := &Params{}
	if err := defaults.Set(p); err != nil {
		return nil, fmt.Errorf("params defaults: %w", err)
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("params file: %w", err)
		}
		if err := yaml.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("params yaml: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks field ranges and the weight-sum invariant.
func (p *Params) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("params validation: %w", err)
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("params validation: component weights must sum to 1.0, got %.4f", sum)
	}
	return nil
}
