package signalgen

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"signal-servicev1/config"
	"signal-servicev1/internal/indicator"
	"signal-servicev1/internal/model"
	"signal-servicev1/internal/strategy"
)

// fakeMarket serves canned candles and prices.
type fakeMarket struct {
	candles   []model.Candle
	candleErr error
	prices    map[string]float64
	priceErr  error
}

func (f *fakeMarket) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if f.candleErr != nil {
		return nil, f.candleErr
	}
	return f.candles, nil
}

func (f *fakeMarket) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.prices[symbol], nil
}

// memStore is an in-memory SignalStore that can be told to fail saves.
type memStore struct {
	open    map[string]model.Signal
	closed  []model.Signal
	saveErr error

	saveOpenCalls int
	appendCalls   int
}

func newMemStore() *memStore {
	return &memStore{open: make(map[string]model.Signal)}
}

func (m *memStore) LoadOpen() (map[string]model.Signal, error) {
	out := make(map[string]model.Signal, len(m.open))
	for k, v := range m.open {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) SaveOpen(signals map[string]model.Signal) error {
	m.saveOpenCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.open = make(map[string]model.Signal, len(signals))
	for k, v := range signals {
		m.open[k] = v
	}
	return nil
}

func (m *memStore) LoadClosed() ([]model.Signal, error) {
	return append([]model.Signal(nil), m.closed...), nil
}

func (m *memStore) AppendClosed(sig model.Signal) error {
	m.appendCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.closed = append(m.closed, sig)
	return nil
}

func (m *memStore) Close() error { return nil }

func testParams(t *testing.T) *config.Params {
	t.Helper()
	p, err := config.LoadParams("")
	if err != nil {
		t.Fatalf("default params: %v", err)
	}
	return p
}

// breakoutCandles produces a window that scores a BUY: a flat run with a
// volume-backed 1% breakout on the last candle. With default periods this
// yields a fresh EMA and VWAP cross plus volume and price-action
// contributions, well above the confidence gate.
func breakoutCandles(n int) []model.Candle {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		close, vol := 100.0, 1.0
		if i == n-1 {
			close, vol = 101.0, 5.0
		}
		out[i] = model.Candle{
			Symbol:   "BTCUSDT",
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     close,
			High:     close + 1,
			Low:      close - 1,
			Close:    close,
			Volume:   vol,
		}
	}
	return out
}

func newTestGenerator(t *testing.T, market model.MarketData, store model.SignalStore) *Generator {
	t.Helper()
	params := testParams(t)
	engine := indicator.NewEngine(indicator.Config{
		EMAFast:   params.EMAFast,
		EMASlow:   params.EMASlow,
		RSIPeriod: params.RSIPeriod,
		BBPeriod:  params.BBPeriod,
		BBStdDev:  params.BBStdDev,
		ATRPeriod: params.ATRPeriod,
	}, nil)
	scorer := strategy.NewScorer(params, nil)

	g, err := New(market, engine, scorer, store, params, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestAnalyzeSymbol_GeneratesSignal(t *testing.T) {
	market := &fakeMarket{candles: breakoutCandles(100)}
	store := newMemStore()
	g := newTestGenerator(t, market, store)

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return createdAt }

	sig, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal from the breakout window")
	}

	if sig.ID != model.NewSignalID("BTCUSDT", createdAt) {
		t.Errorf("ID = %s, want BTCUSDT_%d", sig.ID, createdAt.Unix())
	}
	if sig.Direction != model.DirectionBuy {
		t.Errorf("direction = %s, want BUY", sig.Direction)
	}
	if sig.Status != model.StatusActive {
		t.Errorf("status = %s, want ACTIVE", sig.Status)
	}

	// Entry is the breakout close; stops are 2x/3x the ATR of 2.
	assertPrice(t, "entry", sig.EntryPrice, 101.00)
	assertPrice(t, "stop loss", sig.StopLoss, 97.00)
	assertPrice(t, "take profit", sig.TakeProfit, 107.00)
	assertPrice(t, "atr", sig.ATR, 2.00)
	assertPrice(t, "risk/reward", sig.RiskReward, 1.50)
	assertPrice(t, "confidence", sig.Confidence, 0.70)

	if g.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1", g.ActiveCount())
	}
	if store.saveOpenCalls != 1 {
		t.Errorf("open set persisted %d times, want 1", store.saveOpenCalls)
	}
	if _, ok := store.open[sig.ID]; !ok {
		t.Error("signal missing from persisted open set")
	}
}

func TestAnalyzeSymbol_CooldownSuppressesRepeat(t *testing.T) {
	market := &fakeMarket{candles: breakoutCandles(100)}
	g := newTestGenerator(t, market, newMemStore())

	first, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err != nil || first == nil {
		t.Fatalf("first pass: sig=%v err=%v", first, err)
	}

	second, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second != nil {
		t.Error("repeat emission inside the cooldown window should be suppressed")
	}
}

func TestAnalyzeSymbol_FetchErrorIsNotFatal(t *testing.T) {
	market := &fakeMarket{candleErr: errors.New("timeout")}
	store := newMemStore()
	g := newTestGenerator(t, market, store)

	sig, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("fetch failure should not be an error, got %v", err)
	}
	if sig != nil {
		t.Error("no signal expected on fetch failure")
	}
	if store.saveOpenCalls != 0 {
		t.Error("store should be untouched on fetch failure")
	}
}

func TestAnalyzeSymbol_HoldOnQuietMarket(t *testing.T) {
	// Flat closes score at most the half-weight momentum component, far
	// below the confidence gate.
	candles := breakoutCandles(100)
	last := &candles[99]
	last.Close, last.Volume, last.High, last.Low = 100, 1, 101, 99

	g := newTestGenerator(t, &fakeMarket{candles: candles}, newMemStore())

	sig, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("AnalyzeSymbol: %v", err)
	}
	if sig != nil {
		t.Errorf("expected HOLD on quiet market, got %s", sig.Direction)
	}
}

func TestAnalyzeSymbol_PersistFailureRollsBack(t *testing.T) {
	market := &fakeMarket{candles: breakoutCandles(100)}
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	g := newTestGenerator(t, market, store)

	sig, err := g.AnalyzeSymbol(context.Background(), "BTCUSDT")
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if sig != nil {
		t.Error("no signal should be returned when the open set cannot be saved")
	}
	if g.ActiveCount() != 0 {
		t.Errorf("active count = %d after rollback, want 0", g.ActiveCount())
	}
}

func TestNew_RestoresStateFromStore(t *testing.T) {
	store := newMemStore()
	createdAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	closedAt := createdAt.Add(30 * time.Minute)
	store.open["BTCUSDT_1"] = model.Signal{
		ID: "BTCUSDT_1", Symbol: "BTCUSDT", Direction: model.DirectionBuy,
		EntryPrice: 100, Status: model.StatusActive, CreatedAt: createdAt,
	}
	store.closed = []model.Signal{{
		ID: "ETHUSDT_1", Symbol: "ETHUSDT", Direction: model.DirectionSell,
		EntryPrice: 50, Status: model.StatusTakeProfit,
		CreatedAt: createdAt, ClosedAt: &closedAt, PnlPercent: 3.5,
	}}

	g := newTestGenerator(t, &fakeMarket{}, store)
	if g.ActiveCount() != 1 {
		t.Errorf("restored active count = %d, want 1", g.ActiveCount())
	}
	if len(g.ClosedSince(24*time.Hour)) != 0 {
		// ClosedSince is relative to now; a 2025 closure is long past.
		t.Error("old closure should fall outside a 24h window")
	}
}

// seedActive installs a signal directly into the open set for monitor tests.
func seedActive(g *Generator, sig model.Signal) {
	g.mu.Lock()
	g.active[sig.ID] = sig
	g.mu.Unlock()
}

func activeSignal(dir model.Direction, entry, stop, target float64, createdAt time.Time) model.Signal {
	return model.Signal{
		ID:         model.NewSignalID("BTCUSDT", createdAt),
		Symbol:     "BTCUSDT",
		Direction:  dir,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		Status:     model.StatusActive,
		CreatedAt:  createdAt,
	}
}

func TestMonitor_BuyTakeProfit(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 105}}
	store := newMemStore()
	g := newTestGenerator(t, market, store)

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	now := createdAt.Add(30 * time.Minute)
	g.now = func() time.Time { return now }
	seedActive(g, activeSignal(model.DirectionBuy, 100, 96, 105, createdAt))

	closed, err := g.MonitorActiveSignals(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed %d signals, want 1", len(closed))
	}

	sig := closed[0]
	if sig.Status != model.StatusTakeProfit {
		t.Errorf("status = %s, want TAKE_PROFIT", sig.Status)
	}
	assertPrice(t, "pnl", sig.PnlPercent, 5.00)
	assertPrice(t, "duration", sig.DurationMinutes, 30.0)
	if sig.ClosedAt == nil || !sig.ClosedAt.Equal(now) {
		t.Errorf("closed_at = %v, want %v", sig.ClosedAt, now)
	}
	if g.ActiveCount() != 0 {
		t.Error("closed signal still in the open set")
	}
	if store.appendCalls != 1 {
		t.Errorf("performance log appended %d times, want 1", store.appendCalls)
	}
}

func TestMonitor_BuyStopLoss(t *testing.T) {
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 95}}
	g := newTestGenerator(t, market, newMemStore())

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return createdAt.Add(10 * time.Minute) }
	seedActive(g, activeSignal(model.DirectionBuy, 100, 95, 106, createdAt))

	closed, err := g.MonitorActiveSignals(context.Background())
	if err != nil || len(closed) != 1 {
		t.Fatalf("closed=%d err=%v", len(closed), err)
	}
	if closed[0].Status != model.StatusStopLoss {
		t.Errorf("status = %s, want STOP_LOSS", closed[0].Status)
	}
	assertPrice(t, "pnl", closed[0].PnlPercent, -5.00)
}

func TestMonitor_SellDirectionsInverted(t *testing.T) {
	// SELL profits when price falls: entry 100, target 95.
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 95}}
	g := newTestGenerator(t, market, newMemStore())

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return createdAt.Add(10 * time.Minute) }
	seedActive(g, activeSignal(model.DirectionSell, 100, 104, 95, createdAt))

	closed, err := g.MonitorActiveSignals(context.Background())
	if err != nil || len(closed) != 1 {
		t.Fatalf("closed=%d err=%v", len(closed), err)
	}
	if closed[0].Status != model.StatusTakeProfit {
		t.Errorf("status = %s, want TAKE_PROFIT", closed[0].Status)
	}
	assertPrice(t, "pnl", closed[0].PnlPercent, 5.00)
}

func TestMonitor_ExpiresStaleSignal(t *testing.T) {
	// Price inside the protective range, but the signal outlived 24h.
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 100.5}}
	g := newTestGenerator(t, market, newMemStore())

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return createdAt.Add(25 * time.Hour) }
	seedActive(g, activeSignal(model.DirectionBuy, 100, 96, 106, createdAt))

	closed, err := g.MonitorActiveSignals(context.Background())
	if err != nil || len(closed) != 1 {
		t.Fatalf("closed=%d err=%v", len(closed), err)
	}
	if closed[0].Status != model.StatusExpired {
		t.Errorf("status = %s, want EXPIRED", closed[0].Status)
	}
	assertPrice(t, "duration", closed[0].DurationMinutes, 1500.0)
}

func TestMonitor_PriceUnavailableSkips(t *testing.T) {
	market := &fakeMarket{priceErr: errors.New("stream down")}
	g := newTestGenerator(t, market, newMemStore())

	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return createdAt.Add(10 * time.Minute) }
	seedActive(g, activeSignal(model.DirectionBuy, 100, 96, 106, createdAt))

	closed, err := g.MonitorActiveSignals(context.Background())
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if len(closed) != 0 {
		t.Fatal("signal should be skipped when its price is unavailable")
	}
	if g.ActiveCount() != 1 {
		t.Error("skipped signal must stay in the open set")
	}
}

func TestClosedSignal_JSONRoundTrip(t *testing.T) {
	createdAt := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	closedAt := createdAt.Add(45 * time.Minute)
	sig := model.Signal{
		ID: "BTCUSDT_1748865600", Symbol: "BTCUSDT", Direction: model.DirectionBuy,
		EntryPrice: 101.00, Confidence: 0.70, StopLoss: 97.00, TakeProfit: 107.00,
		ATR: 2.00, RiskReward: 1.50, Status: model.StatusTakeProfit,
		CreatedAt: createdAt, ClosedAt: &closedAt,
		ClosePrice: 107.10, PnlPercent: 6.04, DurationMinutes: 45.0,
	}

	var back model.Signal
	if err := json.Unmarshal(sig.JSON(), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != sig.ID || back.Status != sig.Status || back.PnlPercent != sig.PnlPercent {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.ClosedAt == nil || !back.ClosedAt.Equal(closedAt) {
		t.Errorf("closed_at = %v, want %v", back.ClosedAt, closedAt)
	}
}

func TestPerformanceStats(t *testing.T) {
	g := newTestGenerator(t, &fakeMarket{}, newMemStore())

	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	recent := now.AddDate(0, 0, -1)
	ancient := now.AddDate(0, 0, -10)
	g.history = []model.Signal{
		{ID: "a", PnlPercent: 5, Status: model.StatusTakeProfit, ClosedAt: &recent},
		{ID: "b", PnlPercent: 3, Status: model.StatusTakeProfit, ClosedAt: &recent},
		{ID: "c", PnlPercent: -2, Status: model.StatusStopLoss, ClosedAt: &recent},
		{ID: "d", PnlPercent: 99, Status: model.StatusTakeProfit, ClosedAt: &ancient},
	}

	stats := g.PerformanceStats(7)
	if stats == nil {
		t.Fatal("expected stats")
	}
	if stats.TotalSignals != 3 || stats.Winners != 2 || stats.Losers != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/2/1",
			stats.TotalSignals, stats.Winners, stats.Losers)
	}
	assertPrice(t, "win rate", stats.WinRate, 2.0/3.0)
	assertPrice(t, "avg win", stats.AvgWin, 4.0)
	assertPrice(t, "avg loss", stats.AvgLoss, -2.0)
	assertPrice(t, "profit factor", stats.ProfitFactor, 4.0)
	assertPrice(t, "total pnl", stats.TotalPnl, 6.0)
}

func TestPerformanceStats_EmptyWindow(t *testing.T) {
	g := newTestGenerator(t, &fakeMarket{}, newMemStore())
	if stats := g.PerformanceStats(7); stats != nil {
		t.Fatalf("expected nil stats on empty history, got %+v", stats)
	}
}

func TestPerformanceStats_NoLossesZeroProfitFactor(t *testing.T) {
	g := newTestGenerator(t, &fakeMarket{}, newMemStore())
	now := time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	recent := now.AddDate(0, 0, -1)
	g.history = []model.Signal{
		{ID: "a", PnlPercent: 5, Status: model.StatusTakeProfit, ClosedAt: &recent},
	}

	stats := g.PerformanceStats(7)
	if stats.ProfitFactor != 0 {
		t.Errorf("profit factor = %.2f, want 0 with no losses", stats.ProfitFactor)
	}
}

func assertPrice(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %.4f, want %.4f", name, got, want)
	}
}
