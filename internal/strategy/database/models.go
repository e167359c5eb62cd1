package database

import (
	"time"

	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

// NewKLine 由K线构建数据库模型
func NewKLine(symbol, interval string, bar types.Bar) *KLine {
	return &KLine{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: bar.Timestamp.UnixMilli(),
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
	}
}

// Bar 转回K线
func (k KLine) Bar() types.Bar {
	return types.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}

// NewStructureRecord 由结构分析结果构建快照记录
func NewStructureRecord(symbol string, barTime time.Time, st structure.Structure) *StructureRecord {
	return &StructureRecord{
		Symbol:      symbol,
		BarTime:     barTime.UnixMilli(),
		Trend:       st.Trend.String(),
		ATR:         st.ATR,
		SwingHighs:  len(st.Swings.Highs),
		SwingLows:   len(st.Swings.Lows),
		SupplyZones: len(st.Zones.Supply),
		DemandZones: len(st.Zones.Demand),
	}
}

// NewTradingSignal 由信号构建数据库模型
func NewTradingSignal(signal types.Signal) *TradingSignal {
	return &TradingSignal{
		TradeID:      signal.TradeID,
		Symbol:       signal.Symbol,
		SignalTime:   signal.SignalTime.UnixMilli(),
		SignalType:   signal.Side.String(),
		Price:        signal.Price,
		StopLoss:     signal.StopLoss,
		TakeProfit:   signal.TakeProfit,
		Size:         signal.Size,
		ATRValue:     signal.ATR,
		Trend:        signal.Trend.String(),
		ZonePrice:    signal.Zone.Price,
		ZoneStrength: signal.Zone.Strength,
		Pattern:      signal.Pattern,
		CounterTrend: signal.CounterTrend,
	}
}

// NewTradeRecord 由交易构建数据库模型，零值时间写 NULL
func NewTradeRecord(trade types.Trade) *TradeRecord {
	return &TradeRecord{
		TradeID:    trade.ID,
		Symbol:     trade.Symbol,
		Side:       trade.Side.String(),
		State:      trade.State.String(),
		EntryPrice: trade.EntryPrice,
		Size:       trade.Size,
		StopLoss:   trade.StopLoss,
		TakeProfit: trade.TakeProfit,
		EntryTime:  optionalTime(trade.EntryTime),
		ExitPrice:  trade.ExitPrice,
		ExitTime:   optionalTime(trade.ExitTime),
		ExitReason: exitReason(trade),
		PnL:        trade.PnL,
		Commission: trade.Commission,
	}
}

func exitReason(trade types.Trade) string {
	if trade.State != types.TradeClosed {
		return ""
	}
	return trade.ExitReason.String()
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
