package engine

import (
	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

// Snapshot 引擎当前状态的只读副本
type Snapshot struct {
	Symbol              string              `json:"symbol"`
	State               State               `json:"state"`
	BarCount            int                 `json:"bar_count"`
	BufferedBars        int                 `json:"buffered_bars"`
	LastStructureUpdate int                 `json:"last_structure_update"`
	Trend               types.Trend         `json:"trend"`
	ATR                 float64             `json:"atr"`
	Zones               structure.ZoneSet   `json:"zones"`
	ActiveTrades        []types.Trade       `json:"active_trades"`
	PendingOrders       []types.OrderIntent `json:"pending_orders"`
	History             []types.Trade       `json:"history"`
	RealizedPnL         float64             `json:"realized_pnl"`
	Stats               Stats               `json:"stats"`
}

// Snapshot 获取当前状态
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Symbol:              e.symbol,
		State:               e.state(),
		BarCount:            e.barCount,
		BufferedBars:        len(e.buffer),
		LastStructureUpdate: e.lastStructureUpdate,
		Trend:               e.structure.Trend,
		ATR:                 e.structure.ATR,
		Zones:               copyZones(e.zones),
		ActiveTrades:        e.book.activeTrades(),
		PendingOrders:       e.book.pendingOrders(),
		History:             append([]types.Trade(nil), e.book.history...),
		RealizedPnL:         e.book.realizedPnL(),
		Stats:               e.stats,
	}
}

// Trend 当前趋势
func (e *Engine) Trend() types.Trend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.structure.Trend
}

// Zones 当前跟踪的供需区域（已过滤）
func (e *Engine) Zones() structure.ZoneSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyZones(e.zones)
}

// Bars 当前缓冲区K线的副本
func (e *Engine) Bars() []types.Bar {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Bar(nil), e.buffer...)
}

// GetStats 获取统计信息
func (e *Engine) GetStats() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	return map[string]interface{}{
		"symbol":             e.symbol,
		"state":              e.state().String(),
		"bar_count":          e.barCount,
		"buffer_size":        len(e.buffer),
		"trend":              e.structure.Trend.String(),
		"processed_bars":     e.stats.ProcessedBars,
		"structure_updates":  e.stats.StructureUpdates,
		"structure_failures": e.stats.StructureFailures,
		"signals":            e.stats.Signals,
		"counter_trend":      e.stats.CounterTrend,
		"skipped_sizing":     e.stats.SkippedSizing,
		"trades_opened":      e.stats.TradesOpened,
		"trades_closed":      e.stats.TradesClosed,
		"trades_canceled":    e.stats.TradesCanceled,
		"active_trades":      e.book.activeCount(),
		"realized_pnl":       e.book.realizedPnL(),
	}
}

// state 缓冲区达到预热数量后进入 ACTIVE，调用方持有锁
func (e *Engine) state() State {
	if len(e.buffer) >= warmupBars {
		return StateActive
	}
	return StateWarmingUp
}

func copyZones(zs structure.ZoneSet) structure.ZoneSet {
	return structure.ZoneSet{
		Supply: append([]types.Zone(nil), zs.Supply...),
		Demand: append([]types.Zone(nil), zs.Demand...),
	}
}
