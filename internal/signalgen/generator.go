// Package signalgen owns the signal lifecycle: creating signals from strategy
// output, monitoring the open set against live prices, closing signals on
// stop/target/expiry, and aggregating realized performance.
//
// The open-signal set and the performance log are explicitly owned state,
// loaded from the SignalStore at construction and persisted through it on
// every mutation. A signal's status transitions exactly once, ACTIVE to one
// of {STOP_LOSS, TAKE_PROFIT, EXPIRED}, and never regresses.
package signalgen

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"signal-servicev1/config"
	"signal-servicev1/internal/indicator"
	"signal-servicev1/internal/metrics"
	"signal-servicev1/internal/model"
	"signal-servicev1/internal/strategy"
)

// Generator creates and monitors signals for the configured symbols.
// All mutation happens from the single analysis/monitor task; the mutex
// only guards read access from the bot/command side.
type Generator struct {
	market model.MarketData
	engine *indicator.Engine
	scorer *strategy.Scorer
	store  model.SignalStore
	params *config.Params
	prom   *metrics.Metrics
	log    *slog.Logger

	mu      sync.RWMutex
	active  map[string]model.Signal
	history []model.Signal

	now func() time.Time // injectable for tests
}

// New builds a Generator, restoring the open set and performance log from
// the store. prom may be nil (tests).
func New(market model.MarketData, engine *indicator.Engine, scorer *strategy.Scorer,
	store model.SignalStore, params *config.Params, prom *metrics.Metrics, log *slog.Logger) (*Generator, error) {

	if log == nil {
		log = slog.Default()
	}

	active, err := store.LoadOpen()
	if err != nil {
		return nil, fmt.Errorf("signalgen: load open set: %w", err)
	}
	history, err := store.LoadClosed()
	if err != nil {
		return nil, fmt.Errorf("signalgen: load performance log: %w", err)
	}

	g := &Generator{
		market:  market,
		engine:  engine,
		scorer:  scorer,
		store:   store,
		params:  params,
		prom:    prom,
		log:     log.With(slog.String("component", "signalgen")),
		active:  active,
		history: history,
		now:     time.Now,
	}

	g.log.Info("signal generator restored",
		slog.Int("open_signals", len(active)),
		slog.Int("closed_signals", len(history)))

	if prom != nil {
		prom.OpenSignals.Set(float64(len(active)))
	}
	return g, nil
}

// AnalyzeSymbol runs one full analysis pass for a symbol. Market-data
// problems, HOLD decisions and cooldown suppression all yield (nil, nil) —
// the absence of a signal this cycle. Only a persistence failure is returned
// as an error, since an unsaved open set risks duplicate signals.
func (g *Generator) AnalyzeSymbol(ctx context.Context, symbol string) (*model.Signal, error) {
	candles, err := g.market.Candles(ctx, symbol, g.params.Interval, g.params.CandleLimit)
	if err != nil {
		g.log.Warn("candle fetch failed, skipping symbol",
			slog.String("symbol", symbol), slog.String("error", err.Error()))
		if g.prom != nil {
			g.prom.FetchErrors.WithLabelValues("candles").Inc()
		}
		return nil, nil
	}

	indStart := time.Now()
	series, err := g.engine.Compute(candles)
	if err != nil {
		g.log.Warn("indicator computation rejected window",
			slog.String("symbol", symbol), slog.String("error", err.Error()))
		return nil, nil
	}
	if g.prom != nil {
		g.prom.IndicatorDur.Observe(time.Since(indStart).Seconds())
	}

	decision := g.scorer.Analyze(series)
	if decision.Direction == model.DirectionHold {
		return nil, nil
	}

	if !g.scorer.ValidateSignal(symbol, decision.Direction) {
		return nil, nil
	}

	sig := g.buildSignal(symbol, decision)

	g.mu.Lock()
	g.active[sig.ID] = sig
	g.mu.Unlock()

	if err := g.persistOpen(); err != nil {
		// Roll back so the cycle can re-evaluate once the store recovers.
		g.mu.Lock()
		delete(g.active, sig.ID)
		g.mu.Unlock()
		return nil, err
	}

	g.log.Info("signal generated",
		slog.String("signal_id", sig.ID),
		slog.String("direction", string(sig.Direction)),
		slog.Float64("entry", sig.EntryPrice),
		slog.Float64("confidence", sig.Confidence))

	if g.prom != nil {
		g.prom.SignalsGenerated.WithLabelValues(symbol, string(sig.Direction)).Inc()
		g.prom.OpenSignals.Set(float64(g.ActiveCount()))
	}

	return &sig, nil
}

// buildSignal assembles a Signal from a non-HOLD decision, rounding
// confidence to 3 decimals and prices to 2.
func (g *Generator) buildSignal(symbol string, d strategy.Decision) model.Signal {
	createdAt := g.now()
	return model.Signal{
		ID:         model.NewSignalID(symbol, createdAt),
		Symbol:     symbol,
		Direction:  d.Direction,
		EntryPrice: roundTo(d.Levels.EntryPrice, 2),
		Confidence: roundTo(d.Confidence, 3),
		StopLoss:   roundTo(d.Levels.StopLoss, 2),
		TakeProfit: roundTo(d.Levels.TakeProfit, 2),
		ATR:        roundTo(d.Levels.ATR, 2),
		RiskReward: roundTo(d.Levels.RiskReward, 2),
		Status:     model.StatusActive,
		CreatedAt:  createdAt,
	}
}

// ActiveSignals returns a snapshot of the open set.
func (g *Generator) ActiveSignals() []model.Signal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]model.Signal, 0, len(g.active))
	for _, s := range g.active {
		out = append(out, s)
	}
	return out
}

// ActiveCount returns the number of open signals.
func (g *Generator) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.active)
}

func (g *Generator) persistOpen() error {
	g.mu.RLock()
	snapshot := make(map[string]model.Signal, len(g.active))
	for id, s := range g.active {
		snapshot[id] = s
	}
	g.mu.RUnlock()

	if err := g.store.SaveOpen(snapshot); err != nil {
		if g.prom != nil {
			g.prom.PersistErrors.Inc()
		}
		return fmt.Errorf("signalgen: save open set: %w", err)
	}
	return nil
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
