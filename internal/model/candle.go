// Package model defines the core domain types shared across the signal
// service: candles, signals, performance aggregates, and the port
// interfaces that decouple business logic from concrete collaborators.
package model

import (
	"encoding/json"
	"time"
)

// Candle represents one interval's OHLCV data for a single symbol.
// Prices are quoted in the symbol's quote currency (USDT for futures pairs).
// Candles are immutable once received and ordered by OpenTime ascending.
type Candle struct {
	Symbol   string    `json:"symbol"`
	OpenTime time.Time `json:"open_time"` // bucket start time (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// TypicalPrice returns (high+low+close)/3, the reference price used by VWAP.
func (c *Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
