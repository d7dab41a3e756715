package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple the analysis/lifecycle core from concrete
// collaborators (exchange client, storage backends, delivery channels).

// MarketData provides candle history and live prices for a symbol.
// Implementations return an error when data is unavailable; callers treat
// that as "skip this symbol/signal for this cycle", never as fatal.
type MarketData interface {
	// Candles returns up to limit candles for the symbol and interval,
	// ordered by open time ascending (most recent last).
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// CurrentPrice returns the latest traded price for the symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// SignalStore persists the open-signal set and the append-only performance
// log. Saves must complete before a lifecycle step is considered done:
// losing either collection risks duplicate or lost signals.
type SignalStore interface {
	// LoadOpen returns all currently open signals keyed by signal ID.
	// A missing/empty store yields an empty map, not an error.
	LoadOpen() (map[string]Signal, error)

	// SaveOpen replaces the persisted open set with the given signals.
	SaveOpen(signals map[string]Signal) error

	// LoadClosed returns the full performance log, oldest first.
	LoadClosed() ([]Signal, error)

	// AppendClosed appends one closed signal to the performance log.
	AppendClosed(sig Signal) error

	// Close releases underlying resources.
	Close() error
}

// Distributor delivers finalized signals and closure notifications to
// subscribers and returns the delivered count. The lifecycle core never
// depends on delivery success.
type Distributor interface {
	BroadcastSignal(ctx context.Context, sig Signal) (int, error)
	BroadcastClosure(ctx context.Context, sig Signal) (int, error)
}
