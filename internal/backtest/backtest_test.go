package backtest

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/pkg/types"
)

// zigzagBars 上升趋势中的锯齿行情，周期内先涨后回调
func zigzagBars(n int) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		step := 1.0
		if i%8 >= 5 {
			step = -1.2
		}
		open := price
		price += step
		high := math.Max(open, price) + 0.3
		low := math.Min(open, price) - 0.3
		bars = append(bars, types.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1000,
		})
	}
	return bars
}

func testConfig() types.BacktestConfig {
	return types.BacktestConfig{InitialCash: 10000, Commission: 0.001}
}

func TestRunProducesConsistentResult(t *testing.T) {
	var signals int
	runner := NewRunner(types.DefaultPriceActionConfig(), testConfig(), engine.Hooks{
		OnSignal: func(types.Signal) { signals++ },
	})

	bars := zigzagBars(200)
	result, err := runner.Run(context.Background(), "BTC-USDT", bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Bars != len(bars) || len(result.EquityCurve) != len(bars) {
		t.Errorf("expected %d bars in result, got %d/%d", len(bars), result.Bars, len(result.EquityCurve))
	}
	if signals != len(result.Signals) {
		t.Errorf("expected user hook and result to see the same signals: %d vs %d", signals, len(result.Signals))
	}
	if result.TotalTrades != result.WinningTrades+result.LosingTrades {
		t.Errorf("expected total = won + lost, got %d != %d + %d", result.TotalTrades, result.WinningTrades, result.LosingTrades)
	}
	if len(result.Trades) != result.TotalTrades+result.CanceledTrades {
		t.Errorf("expected every finished trade in the ledger, got %d", len(result.Trades))
	}
	if result.FinalValue <= 0 {
		t.Errorf("expected positive final value, got %f", result.FinalValue)
	}

	expectedReturn := (result.FinalValue - result.InitialCash) / result.InitialCash * 100
	if math.Abs(result.ReturnPct-expectedReturn) > 1e-6 {
		t.Errorf("expected return %.6f, got %.6f", expectedReturn, result.ReturnPct)
	}
	if result.MaxDrawdown < 0 || result.MaxDrawdown > 100 {
		t.Errorf("unexpected drawdown: %f", result.MaxDrawdown)
	}
	if result.Final.BarCount != len(bars) {
		t.Errorf("expected engine to see all bars, got %d", result.Final.BarCount)
	}
	if _, ok := result.PatternCounts[types.PatternBullishEngulfing.String()]; !ok {
		t.Errorf("expected pattern counts for every kind, got %v", result.PatternCounts)
	}
}

func TestRunRejectsInvalidSeries(t *testing.T) {
	runner := NewRunner(types.DefaultPriceActionConfig(), testConfig(), engine.Hooks{})

	bars := zigzagBars(30)
	bars[10].Timestamp = bars[9].Timestamp
	if _, err := runner.Run(context.Background(), "BTC-USDT", bars); err == nil {
		t.Errorf("expected error for duplicated timestamp")
	}
}

func TestRunRejectsInvalidStrategy(t *testing.T) {
	cfg := types.DefaultPriceActionConfig()
	cfg.MaxRiskPerTrade = 0
	runner := NewRunner(cfg, testConfig(), engine.Hooks{})

	if _, err := runner.Run(context.Background(), "BTC-USDT", zigzagBars(30)); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(types.DefaultPriceActionConfig(), testConfig(), engine.Hooks{})
	if _, err := runner.Run(ctx, "BTC-USDT", zigzagBars(30)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMaxDrawdown(t *testing.T) {
	point := func(v float64) EquityPoint { return EquityPoint{Equity: v} }

	testCases := []struct {
		name     string
		curve    []EquityPoint
		expected float64
	}{
		{"empty", nil, 0},
		{"monotonic", []EquityPoint{point(100), point(110), point(120)}, 0},
		{"single dip", []EquityPoint{point(100), point(80), point(120)}, 20},
		{"deeper later", []EquityPoint{point(100), point(90), point(200), point(150)}, 25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := maxDrawdown(tc.curve); math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tc.expected, got)
			}
		})
	}
}

func TestCalculateMetrics(t *testing.T) {
	result := &Result{
		InitialCash: 1000,
		FinalValue:  1100,
		Final: engine.Snapshot{
			History: []types.Trade{
				{ID: "a", State: types.TradeClosed, PnL: 150, Commission: 1},
				{ID: "b", State: types.TradeClosed, PnL: -49, Commission: 1},
				{ID: "c", State: types.TradeCanceled},
				{ID: "d", State: types.TradeClosed, PnL: 0.5, Commission: 1},
			},
			ActiveTrades: []types.Trade{{ID: "e", State: types.TradeOpen}},
		},
	}

	calculateMetrics(result)

	if result.TotalTrades != 3 || result.WinningTrades != 1 || result.LosingTrades != 2 {
		t.Errorf("unexpected trade counts: %+v", result)
	}
	if result.CanceledTrades != 1 || result.OpenTrades != 1 {
		t.Errorf("unexpected canceled/open counts: %d/%d", result.CanceledTrades, result.OpenTrades)
	}
	if math.Abs(result.NetPnL-98.5) > 1e-9 || math.Abs(result.TotalCommission-3) > 1e-9 {
		t.Errorf("unexpected pnl/commission: %f/%f", result.NetPnL, result.TotalCommission)
	}
	if math.Abs(result.ReturnPct-10) > 1e-9 {
		t.Errorf("expected 10%% return, got %f", result.ReturnPct)
	}
	if math.Abs(result.WinRate-100.0/3) > 1e-9 {
		t.Errorf("unexpected win rate: %f", result.WinRate)
	}
}

func TestExportCSV(t *testing.T) {
	entry := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	result := &Result{
		Trades: []types.Trade{
			{ID: "t1", Symbol: "BTC-USDT", Side: types.SideLong, State: types.TradeClosed, EntryTime: entry,
				EntryPrice: 100, Size: 2, StopLoss: 98, TakeProfit: 104, ExitTime: entry.Add(time.Hour),
				ExitPrice: 104, ExitReason: types.RoleTakeProfit, PnL: 8, Commission: 0.4},
			{ID: "t2", Symbol: "BTC-USDT", Side: types.SideShort, State: types.TradeCanceled, EntryTime: entry,
				EntryPrice: 101, Size: 1, CounterTrend: true},
		},
	}

	path := filepath.Join(t.TempDir(), "trades.csv")
	if err := ExportCSV(path, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "trade_id" || len(records[0]) != 15 {
		t.Errorf("unexpected header: %v", records[0])
	}

	first := records[1]
	if first[2] != "LONG" || first[3] != "CLOSED" || first[9] != "2024-03-01T09:00:00Z" || first[11] != "TAKE_PROFIT" || first[12] != "8.000000" {
		t.Errorf("unexpected first row: %v", first)
	}
	second := records[2]
	if second[3] != "CANCELED" || second[9] != "" || second[14] != "true" {
		t.Errorf("unexpected second row: %v", second)
	}
}
