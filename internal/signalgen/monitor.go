package signalgen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"signal-servicev1/internal/model"
)

// MonitorActiveSignals checks every open signal against the live price and
// closes those that hit their stop, target, or maximum lifetime. A signal
// whose price is unavailable is skipped and retried next pass. Per-signal
// failures are isolated; persistence failures are joined into the returned
// error after the pass completes.
//
// Returns the signals closed this pass, in open-set iteration order.
func (g *Generator) MonitorActiveSignals(ctx context.Context) ([]model.Signal, error) {
	open := g.ActiveSignals()
	if len(open) == 0 {
		return nil, nil
	}

	g.log.Debug("monitoring active signals", slog.Int("count", len(open)))

	var closed []model.Signal
	var errs []error

	for _, sig := range open {
		price, err := g.market.CurrentPrice(ctx, sig.Symbol)
		if err != nil {
			g.log.Warn("price unavailable, signal retried next cycle",
				slog.String("signal_id", sig.ID), slog.String("error", err.Error()))
			if g.prom != nil {
				g.prom.FetchErrors.WithLabelValues("price").Inc()
			}
			continue
		}

		status := checkStatus(&sig, price)
		if status == model.StatusActive && g.expired(&sig) {
			status = model.StatusExpired
		}
		if status == model.StatusActive {
			continue
		}

		done, err := g.closeSignal(sig, price, status)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		closed = append(closed, done)
	}

	if len(closed) > 0 {
		g.log.Info("signals closed this pass", slog.Int("count", len(closed)))
	}
	return closed, errors.Join(errs...)
}

// checkStatus evaluates the closure condition for a signal at a price.
func checkStatus(sig *model.Signal, price float64) model.Status {
	switch sig.Direction {
	case model.DirectionBuy:
		if price <= sig.StopLoss {
			return model.StatusStopLoss
		}
		if price >= sig.TakeProfit {
			return model.StatusTakeProfit
		}
	case model.DirectionSell:
		if price >= sig.StopLoss {
			return model.StatusStopLoss
		}
		if price <= sig.TakeProfit {
			return model.StatusTakeProfit
		}
	}
	return model.StatusActive
}

// expired reports whether the signal has outlived the configured maximum.
func (g *Generator) expired(sig *model.Signal) bool {
	lifetime := time.Duration(g.params.MaxSignalLifetimeHours) * time.Hour
	return g.now().Sub(sig.CreatedAt) > lifetime
}

// closeSignal writes the closure fields exactly once, appends the signal to
// the performance log, removes it from the open set, and persists both.
func (g *Generator) closeSignal(sig model.Signal, closePrice float64, status model.Status) (model.Signal, error) {
	closedAt := g.now()

	sig.Status = status
	sig.ClosePrice = closePrice
	sig.ClosedAt = &closedAt
	sig.PnlPercent = roundTo(pnlPercent(&sig, closePrice), 2)
	sig.DurationMinutes = roundTo(closedAt.Sub(sig.CreatedAt).Minutes(), 1)

	g.mu.Lock()
	g.history = append(g.history, sig)
	delete(g.active, sig.ID)
	g.mu.Unlock()

	// Both writes must land before the closure counts as done.
	var errs []error
	if err := g.store.AppendClosed(sig); err != nil {
		if g.prom != nil {
			g.prom.PersistErrors.Inc()
		}
		errs = append(errs, err)
	}
	if err := g.persistOpen(); err != nil {
		errs = append(errs, err)
	}

	g.log.Info("signal closed",
		slog.String("signal_id", sig.ID),
		slog.String("status", string(status)),
		slog.Float64("pnl_percent", sig.PnlPercent),
		slog.Float64("duration_minutes", sig.DurationMinutes))

	if g.prom != nil {
		g.prom.SignalsClosed.WithLabelValues(string(status)).Inc()
		g.prom.OpenSignals.Set(float64(g.ActiveCount()))
	}

	return sig, errors.Join(errs...)
}

// pnlPercent computes the realized move in the signal's favor: for BUY a
// rising close is positive, for SELL a falling close is positive.
func pnlPercent(sig *model.Signal, closePrice float64) float64 {
	if sig.EntryPrice == 0 {
		return 0
	}
	if sig.Direction == model.DirectionBuy {
		return (closePrice - sig.EntryPrice) / sig.EntryPrice * 100
	}
	return (sig.EntryPrice - closePrice) / sig.EntryPrice * 100
}
