package engine

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

type fakeAccount struct {
	equity, cash float64
}

func (a fakeAccount) PortfolioEquity() float64 { return a.equity }
func (a fakeAccount) AvailableCash() float64   { return a.cash }

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatBar(i int, price float64) types.Bar {
	return types.Bar{
		Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
		Open:      price,
		High:      price + 0.5,
		Low:       price - 0.5,
		Close:     price,
	}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// newTestEngine 关闭形态确认并手动设置需求区，结构刷新频率足够大以免覆盖
func newTestEngine(t *testing.T, hooks Hooks) *Engine {
	t.Helper()
	cfg := types.DefaultPriceActionConfig()
	cfg.RequirePatternConfirmation = false
	cfg.StructureUpdateFrequency = 1000
	cfg.MaxConcurrentTrades = 1

	e, err := New(cfg, fakeAccount{equity: 10000, cash: 10000},
		WithSymbol("BTC-USDT"),
		WithHooks(hooks),
		WithIDGenerator(sequentialIDs()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.structure.Trend = types.TrendUp
	e.zones = structure.ZoneSet{Demand: []types.Zone{{Price: 100, Lower: 99, Upper: 101, Strength: 1, Side: types.ZoneDemand}}}
	return e
}

// warmUp 喂入20根远离区域的K线
func warmUp(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; i < warmupBars; i++ {
		if intents := e.OnBar(flatBar(i, 105)); len(intents) != 0 {
			t.Fatalf("bar %d: expected no intents, got %+v", i, intents)
		}
	}
}

func retestBar(i int) types.Bar {
	return types.Bar{Timestamp: base.Add(time.Duration(i) * 15 * time.Minute), Open: 101.5, High: 102, Low: 100.5, Close: 101}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := types.DefaultPriceActionConfig()
	cfg.TrendStrengthThreshold = 1.5
	if _, err := New(cfg, fakeAccount{}); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := New(types.DefaultPriceActionConfig(), nil); !errors.Is(err, types.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for nil account, got %v", err)
	}
}

func TestTradeLifecycle(t *testing.T) {
	var signals []types.Signal
	var opened, closed []types.Trade
	e := newTestEngine(t, Hooks{
		OnSignal:      func(sig types.Signal) { signals = append(signals, sig) },
		OnTradeOpened: func(trade types.Trade) { opened = append(opened, trade) },
		OnTradeClosed: func(trade types.Trade) { closed = append(closed, trade) },
	})
	warmUp(t, e)

	intents := e.OnBar(retestBar(warmupBars))
	if len(intents) != 3 {
		t.Fatalf("expected entry+stop+target, got %+v", intents)
	}
	entry, stop, target := intents[0], intents[1], intents[2]

	// ATR = (13*1 + 4.5)/14 = 1.25，止损 101-2*1.25=98.5 比区域下沿99更远
	if entry.Kind != types.OrderMarket || entry.Side != types.OrderBuy || !approx(entry.Size, 80) {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if stop.Kind != types.OrderStop || stop.Side != types.OrderSell || !approx(stop.Price, 98.5) {
		t.Errorf("unexpected stop: %+v", stop)
	}
	if target.Kind != types.OrderLimit || target.Side != types.OrderSell || !approx(target.Price, 106) {
		t.Errorf("unexpected target: %+v", target)
	}
	if entry.TradeID != stop.TradeID || entry.TradeID != target.TradeID {
		t.Errorf("expected all orders to share a trade id")
	}
	if len(signals) != 1 || signals[0].TradeID != entry.TradeID || signals[0].CounterTrend {
		t.Errorf("unexpected signals: %+v", signals)
	}

	// 达到最大并发交易数后不再发出信号
	if intents := e.OnBar(retestBar(warmupBars + 1)); len(intents) != 0 {
		t.Errorf("expected concurrency limit to block new trades, got %+v", intents)
	}

	snap := e.Snapshot()
	if len(snap.ActiveTrades) != 1 || snap.ActiveTrades[0].State != types.TradePending || len(snap.PendingOrders) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	fillTime := base.Add(24 * time.Hour)
	if err := e.OnFill(types.Fill{OrderID: entry.ID, Price: 101.2, Size: 80, Commission: 0.5, Time: fillTime}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opened) != 1 || opened[0].State != types.TradeOpen || !approx(opened[0].EntryPrice, 101.2) {
		t.Errorf("unexpected opened trades: %+v", opened)
	}

	if err := e.OnFill(types.Fill{OrderID: target.ID, Price: 106, Size: 80, Commission: 0.5, Time: fillTime.Add(time.Hour)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 1 || closed[0].State != types.TradeClosed || closed[0].ExitReason != types.RoleTakeProfit {
		t.Fatalf("unexpected closed trades: %+v", closed)
	}
	if !approx(closed[0].PnL, (106-101.2)*80) || !approx(closed[0].Commission, 1) {
		t.Errorf("unexpected pnl/commission: %+v", closed[0])
	}

	// 止损单随交易结束失效
	if err := e.OnReject(types.Rejection{OrderID: stop.ID, Reason: "oco"}); !errors.Is(err, types.ErrUnknownOrder) {
		t.Errorf("expected ErrUnknownOrder for sibling exit, got %v", err)
	}

	snap = e.Snapshot()
	if len(snap.ActiveTrades) != 0 || len(snap.History) != 1 || !approx(snap.RealizedPnL, (106-101.2)*80) {
		t.Errorf("unexpected final snapshot: %+v", snap)
	}
	if snap.Stats.TradesOpened != 1 || snap.Stats.TradesClosed != 1 || snap.Stats.Signals != 1 {
		t.Errorf("unexpected stats: %+v", snap.Stats)
	}
}

func TestEntryRejectionCancelsTrade(t *testing.T) {
	var closed []types.Trade
	e := newTestEngine(t, Hooks{OnTradeClosed: func(trade types.Trade) { closed = append(closed, trade) }})
	warmUp(t, e)

	intents := e.OnBar(retestBar(warmupBars))
	if len(intents) != 3 {
		t.Fatalf("expected 3 intents, got %d", len(intents))
	}

	if err := e.OnReject(types.Rejection{OrderID: intents[0].ID, Reason: "资金不足"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(closed) != 1 || closed[0].State != types.TradeCanceled {
		t.Fatalf("expected canceled trade, got %+v", closed)
	}

	// 交易取消后可以再次开仓
	if intents := e.OnBar(retestBar(warmupBars + 1)); len(intents) != 3 {
		t.Errorf("expected new trade after cancel, got %+v", intents)
	}
	if stats := e.Snapshot().Stats; stats.TradesCanceled != 1 || stats.Signals != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestExitBeforeEntryIsRejected(t *testing.T) {
	e := newTestEngine(t, Hooks{})
	warmUp(t, e)
	intents := e.OnBar(retestBar(warmupBars))

	if err := e.OnFill(types.Fill{OrderID: intents[1].ID, Price: 98.5}); err == nil {
		t.Errorf("expected error when exit fills before entry")
	}
	if err := e.OnFill(types.Fill{OrderID: "unknown"}); !errors.Is(err, types.ErrUnknownOrder) {
		t.Errorf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestShortTradePnL(t *testing.T) {
	cfg := types.DefaultPriceActionConfig()
	cfg.RequirePatternConfirmation = false
	cfg.StructureUpdateFrequency = 1000

	e, err := New(cfg, fakeAccount{equity: 10000, cash: 10000}, WithIDGenerator(sequentialIDs()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.structure.Trend = types.TrendUp
	e.zones = structure.ZoneSet{Supply: []types.Zone{{Price: 110, Lower: 109, Upper: 111, Strength: 1, Side: types.ZoneSupply}}}

	var closed []types.Trade
	e.hooks.OnTradeClosed = func(trade types.Trade) { closed = append(closed, trade) }

	warmUp(t, e)
	intents := e.OnBar(types.Bar{Timestamp: base.Add(24 * time.Hour), Open: 108.5, High: 109.5, Low: 108, Close: 109})
	if len(intents) != 3 || intents[0].Side != types.OrderSell {
		t.Fatalf("expected short entry, got %+v", intents)
	}

	e.OnFill(types.Fill{OrderID: intents[0].ID, Price: 109, Size: 10})
	e.OnFill(types.Fill{OrderID: intents[1].ID, Price: 112, Size: 10})

	if len(closed) != 1 || !approx(closed[0].PnL, -30) || closed[0].ExitReason != types.RoleStopLoss {
		t.Errorf("unexpected closed trade: %+v", closed)
	}
	if e.Snapshot().Stats.CounterTrend != 1 {
		t.Errorf("expected counter-trend signal to be counted")
	}
}

func TestStructureRefreshSchedule(t *testing.T) {
	var refreshes int
	e, err := New(types.DefaultPriceActionConfig(), fakeAccount{equity: 10000, cash: 10000},
		WithHooks(Hooks{OnStructure: func(string, structure.Structure) { refreshes++ }}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 40; i++ {
		e.OnBar(flatBar(i, 100+float64(i%3)))
	}

	// 第20、30、40根K线刷新
	if refreshes != 3 {
		t.Errorf("expected 3 refreshes, got %d", refreshes)
	}
	snap := e.Snapshot()
	if snap.Stats.StructureUpdates != 3 || snap.LastStructureUpdate != 40 || snap.State != StateActive {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.BufferedBars != 40 || snap.BarCount != 40 {
		t.Errorf("unexpected buffer: %d/%d", snap.BufferedBars, snap.BarCount)
	}
}

// uptrendBar 上涨8根、回调8根循环的第 i 根K线
func uptrendBar(i int) types.Bar {
	leg, pos := i/16, i%16
	price := 100 + float64(leg)*4
	if pos < 8 {
		price += float64(pos + 1)
	} else {
		price += 8 - float64(pos-7)*0.5
	}
	return flatBar(i, price)
}

func TestStructureRefreshFailureKeepsPrevious(t *testing.T) {
	var refreshes int
	e, err := New(types.DefaultPriceActionConfig(), fakeAccount{equity: 10000, cash: 10000},
		WithHooks(Hooks{OnStructure: func(string, structure.Structure) { refreshes++ }}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 第50根K线完成最后一次成功刷新
	for i := 0; i < 59; i++ {
		e.OnBar(uptrendBar(i))
	}
	before := e.Snapshot()
	if before.Trend != types.TrendUp || len(before.Zones.Demand) == 0 {
		t.Fatalf("expected an uptrend with demand zones, got %v %+v", before.Trend, before.Zones)
	}
	if before.Stats.StructureUpdates != 4 || before.LastStructureUpdate != 50 {
		t.Fatalf("unexpected refresh stats: %+v", before.Stats)
	}

	// 第60根K线触发刷新，但收盘价异常
	bad := uptrendBar(59)
	bad.Close = math.NaN()
	if intents := e.OnBar(bad); len(intents) != 0 {
		t.Errorf("expected no intents on bad bar, got %+v", intents)
	}

	after := e.Snapshot()
	if after.Stats.StructureFailures != 1 {
		t.Errorf("expected 1 structure failure, got %d", after.Stats.StructureFailures)
	}
	if after.Stats.StructureUpdates != before.Stats.StructureUpdates || refreshes != 4 {
		t.Errorf("expected no new structure update, got %d (hooks %d)", after.Stats.StructureUpdates, refreshes)
	}
	if after.Trend != before.Trend || after.ATR != before.ATR {
		t.Errorf("expected previous trend kept, got %v/%.4f want %v/%.4f", after.Trend, after.ATR, before.Trend, before.ATR)
	}
	if !reflect.DeepEqual(after.Zones, before.Zones) {
		t.Errorf("expected previous zones kept:\n%+v\n%+v", after.Zones, before.Zones)
	}
	if after.LastStructureUpdate != 60 || after.State != StateActive {
		t.Errorf("unexpected snapshot after failure: %+v", after)
	}
}

func TestBufferCapacity(t *testing.T) {
	e, err := New(types.DefaultPriceActionConfig(), fakeAccount{equity: 10000, cash: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 80; i++ {
		e.OnBar(flatBar(i, 100))
	}

	bars := e.Bars()
	if len(bars) != minBufferSize {
		t.Fatalf("expected buffer capped at %d, got %d", minBufferSize, len(bars))
	}
	if !bars[len(bars)-1].Timestamp.Equal(flatBar(79, 100).Timestamp) {
		t.Errorf("expected newest bar retained")
	}
}
