package monitor

import (
	"errors"
	"testing"
	"time"

	"price-action-sentry/internal/strategy/database"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/pkg/types"
)

type fakeSource struct {
	snapshots []engine.Snapshot
}

func (f fakeSource) Snapshots() []engine.Snapshot {
	return f.snapshots
}

type fakeStore struct {
	rows []database.StrategyPerformance
	err  error
}

func (f fakeStore) GetStrategyPerformance(symbol string, days int) ([]database.StrategyPerformance, error) {
	return f.rows, f.err
}

func closedTrade(pnl float64, exit time.Time) types.Trade {
	return types.Trade{State: types.TradeClosed, PnL: pnl, ExitTime: exit, ExitReason: types.RoleTakeProfit}
}

func TestAggregate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []engine.Snapshot{
		{
			Symbol: "BTC-USDT",
			Trend:  types.TrendUp,
			Stats:  engine.Stats{ProcessedBars: 100, Signals: 3, TradesOpened: 2, TradesCanceled: 1},
			History: []types.Trade{
				closedTrade(10.1, start.Add(time.Hour)),
				closedTrade(-4.05, start.Add(2*time.Hour)),
				{State: types.TradeCanceled},
			},
		},
		{
			Symbol:  "ETH-USDT",
			Trend:   types.TrendRange,
			Stats:   engine.Stats{ProcessedBars: 50, Signals: 1, TradesOpened: 1},
			History: []types.Trade{closedTrade(0.2, start.Add(3*time.Hour))},
		},
	}

	m := Aggregate(snapshots, start, start.Add(2*time.Hour))

	if m.ProcessedBars != 150 || m.TotalSignals != 4 {
		t.Errorf("unexpected totals: bars=%d signals=%d", m.ProcessedBars, m.TotalSignals)
	}
	if m.TradesClosed != 3 || m.WinningTrades != 2 {
		t.Errorf("expected 3 closed / 2 winning, got %d / %d", m.TradesClosed, m.WinningTrades)
	}
	if got := m.RealizedPnL.StringFixed(2); got != "6.25" {
		t.Errorf("expected realized pnl 6.25, got %s", got)
	}
	if m.WinRate != 66.67 {
		t.Errorf("expected win rate 66.67, got %v", m.WinRate)
	}
	if m.SignalFrequency != 2 {
		t.Errorf("expected 2 signals/hour, got %v", m.SignalFrequency)
	}

	btc := m.SymbolStats["BTC-USDT"]
	if btc == nil || btc.ClosedTrades != 2 || btc.LastExitReason != "TAKE_PROFIT" {
		t.Errorf("unexpected BTC metrics: %+v", btc)
	}
}

func TestAggregateEmpty(t *testing.T) {
	now := time.Now()
	m := Aggregate(nil, now, now)
	if m.WinRate != 0 || !m.RealizedPnL.IsZero() || m.SignalFrequency != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}
}

func TestGetDailyReport(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	pm := NewPerformanceMonitor(fakeSource{}, fakeStore{rows: []database.StrategyPerformance{{
		Symbol: "BTC-USDT", Date: day, TotalSignals: 4, LongSignals: 3, ShortSignals: 1,
		ClosedTrades: 2, WinningTrades: 1, RealizedPnL: 12.5,
	}}})

	report, err := pm.GetDailyReport("BTC-USDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.LongRatio != 75 || report.WinRate != 50 {
		t.Errorf("unexpected ratios: long=%v win=%v", report.LongRatio, report.WinRate)
	}
}

func TestGetDailyReportWithoutStore(t *testing.T) {
	pm := NewPerformanceMonitor(fakeSource{}, nil)
	if _, err := pm.GetDailyReport("BTC-USDT"); err == nil {
		t.Errorf("expected error without store")
	}

	failing := NewPerformanceMonitor(fakeSource{}, fakeStore{err: errors.New("db down")})
	if _, err := failing.GetDailyReport("BTC-USDT"); err == nil {
		t.Errorf("expected store error to propagate")
	}
}
