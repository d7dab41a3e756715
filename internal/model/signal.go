package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the side of a trading signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	// DirectionHold is only ever returned by strategy analysis — a Signal
	// is never created with it.
	DirectionHold Direction = "HOLD"
)

// Status is the lifecycle state of a signal. A signal starts ACTIVE and
// transitions exactly once to one of the terminal states.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusStopLoss   Status = "STOP_LOSS"
	StatusTakeProfit Status = "TAKE_PROFIT"
	StatusExpired    Status = "EXPIRED"
)

// Terminal reports whether s is a closed (final) status.
func (s Status) Terminal() bool {
	return s == StatusStopLoss || s == StatusTakeProfit || s == StatusExpired
}

// Signal is one emitted trading signal tracked through its lifecycle.
// While ACTIVE it lives in the open set keyed by ID; the closing fields
// (Status, ClosedAt, ClosePrice, PnlPercent, DurationMinutes) are written
// exactly once, at closure, after which the record is immutable.
type Signal struct {
	ID         string    `json:"signal_id"` // "{symbol}_{unix}"
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Confidence float64   `json:"confidence"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	ATR        float64   `json:"atr"` // ATR at entry, used to size the stops
	RiskReward float64   `json:"risk_reward"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`

	// Closure fields — zero until the signal leaves ACTIVE.
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosePrice      float64    `json:"close_price,omitempty"`
	PnlPercent      float64    `json:"pnl_percent,omitempty"`
	DurationMinutes float64    `json:"duration_minutes,omitempty"`
}

// NewSignalID builds the canonical signal identity: symbol + creation epoch.
func NewSignalID(symbol string, createdAt time.Time) string {
	return fmt.Sprintf("%s_%d", symbol, createdAt.Unix())
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// PerformanceStats is a derived aggregate over closed signals within a
// trailing window. It is computed on demand and never stored.
type PerformanceStats struct {
	TotalSignals int     `json:"total_signals"`
	Winners      int     `json:"winners"`
	Losers       int     `json:"losers"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalPnl     float64 `json:"total_pnl"`
}
