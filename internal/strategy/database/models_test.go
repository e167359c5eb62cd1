package database

import (
	"testing"
	"time"

	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

func TestKLineRoundTrip(t *testing.T) {
	bar := types.Bar{
		Timestamp: time.Date(2024, 2, 1, 12, 15, 0, 0, time.UTC),
		Open:      42000.5,
		High:      42100,
		Low:       41950.25,
		Close:     42080,
		Volume:    12.5,
	}

	kline := NewKLine("BTC-USDT", "15m", bar)
	if kline.Symbol != "BTC-USDT" || kline.Interval != "15m" || kline.OpenTime != bar.Timestamp.UnixMilli() {
		t.Errorf("unexpected kline: %+v", kline)
	}

	got := kline.Bar()
	if !got.Timestamp.Equal(bar.Timestamp) || got.Open != bar.Open || got.Close != bar.Close || got.Volume != bar.Volume {
		t.Errorf("expected %+v, got %+v", bar, got)
	}
}

func TestNewStructureRecord(t *testing.T) {
	st := structure.Structure{
		Trend: types.TrendDown,
		ATR:   1.5,
		Swings: structure.SwingSet{
			Highs: []types.SwingPoint{{Index: 3}, {Index: 9}},
			Lows:  []types.SwingPoint{{Index: 6}},
		},
		Zones: structure.ZoneSet{Supply: []types.Zone{{Price: 10}, {Price: 11}}},
	}
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	record := NewStructureRecord("ETH-USDT", at, st)
	if record.Trend != "DOWNTREND" || record.SwingHighs != 2 || record.SwingLows != 1 {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.SupplyZones != 2 || record.DemandZones != 0 || record.BarTime != at.UnixMilli() {
		t.Errorf("unexpected zone counts: %+v", record)
	}
}

func TestNewTradingSignal(t *testing.T) {
	signal := types.Signal{
		Symbol:       "BTC-USDT",
		TradeID:      "trade-1",
		Side:         types.SideShort,
		Price:        100,
		Trend:        types.TrendUp,
		Zone:         types.Zone{Price: 101, Strength: 0.8},
		Pattern:      "bearish_engulfing",
		CounterTrend: true,
	}

	record := NewTradingSignal(signal)
	if record.SignalType != "SHORT" || record.Trend != "UPTREND" || !record.CounterTrend {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.ZonePrice != 101 || record.ZoneStrength != 0.8 || record.Pattern != "bearish_engulfing" {
		t.Errorf("unexpected zone fields: %+v", record)
	}
}

func TestNewTradeRecord(t *testing.T) {
	entry := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	open := NewTradeRecord(types.Trade{ID: "t1", Side: types.SideLong, State: types.TradeOpen, EntryTime: entry})
	if open.EntryTime == nil || !open.EntryTime.Equal(entry) {
		t.Errorf("expected entry time, got %v", open.EntryTime)
	}
	if open.ExitTime != nil || open.ExitReason != "" {
		t.Errorf("expected no exit for open trade, got %v %q", open.ExitTime, open.ExitReason)
	}

	closed := NewTradeRecord(types.Trade{ID: "t2", Side: types.SideShort, State: types.TradeClosed, EntryTime: entry,
		ExitTime: entry.Add(time.Hour), ExitReason: types.RoleStopLoss, PnL: -12})
	if closed.ExitTime == nil || closed.ExitReason != "STOP_LOSS" || closed.State != "CLOSED" || closed.PnL != -12 {
		t.Errorf("unexpected closed record: %+v", closed)
	}

	// 被取消的交易没有平仓原因
	canceled := NewTradeRecord(types.Trade{ID: "t3", State: types.TradeCanceled})
	if canceled.ExitReason != "" || canceled.EntryTime != nil {
		t.Errorf("unexpected canceled record: %+v", canceled)
	}
}
