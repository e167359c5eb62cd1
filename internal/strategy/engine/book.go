package engine

import (
	"fmt"

	"price-action-sentry/pkg/types"
)

// tradeBook 交易簿：每笔交易按ID独立维护 Pending -> Open -> Closed 状态
type tradeBook struct {
	active  map[string]*types.Trade      // Pending 或 Open
	order   []string                     // active 的插入顺序
	pending map[string]types.OrderIntent // 尚未终结的订单意图
	history []types.Trade                // Closed 或 Canceled
}

func newTradeBook() *tradeBook {
	return &tradeBook{
		active:  make(map[string]*types.Trade),
		pending: make(map[string]types.OrderIntent),
	}
}

// add 登记新交易及其三张订单
func (tb *tradeBook) add(trade *types.Trade, intents []types.OrderIntent) {
	tb.active[trade.ID] = trade
	tb.order = append(tb.order, trade.ID)
	for _, intent := range intents {
		tb.pending[intent.ID] = intent
	}
}

// activeCount 未平仓（含待成交）的交易数
func (tb *tradeBook) activeCount() int {
	return len(tb.active)
}

// applyFill 处理成交回报，返回状态发生变化的交易
func (tb *tradeBook) applyFill(fill types.Fill) (types.Trade, error) {
	intent, ok := tb.pending[fill.OrderID]
	if !ok {
		return types.Trade{}, fmt.Errorf("%w: 成交回报 %s", types.ErrUnknownOrder, fill.OrderID)
	}

	trade, ok := tb.active[intent.TradeID]
	if !ok {
		delete(tb.pending, fill.OrderID)
		return types.Trade{}, fmt.Errorf("%w: 订单%s所属交易%s已结束", types.ErrUnknownOrder, fill.OrderID, intent.TradeID)
	}

	switch intent.Role {
	case types.RoleEntry:
		if trade.State != types.TradePending {
			return types.Trade{}, fmt.Errorf("交易%s状态为%s，无法开仓", trade.ID, trade.State)
		}
		delete(tb.pending, fill.OrderID)
		trade.State = types.TradeOpen
		trade.EntryPrice = fill.Price
		if fill.Size > 0 {
			trade.Size = fill.Size
		}
		trade.EntryTime = fill.Time
		trade.Commission += fill.Commission
		return *trade, nil

	default:
		if trade.State != types.TradeOpen {
			return types.Trade{}, fmt.Errorf("交易%s状态为%s，无法平仓", trade.ID, trade.State)
		}
		delete(tb.pending, fill.OrderID)
		trade.State = types.TradeClosed
		trade.ExitPrice = fill.Price
		trade.ExitTime = fill.Time
		trade.ExitReason = intent.Role
		trade.Commission += fill.Commission
		trade.PnL = types.RealizedPnL(trade.Side, trade.EntryPrice, fill.Price, trade.Size)

		// 另一张平仓单随交易结束一并失效
		tb.dropOrders(trade)
		tb.finish(trade)
		return *trade, nil
	}
}

// applyReject 处理拒绝/撤单回报，开仓单被拒时交易转为 Canceled
func (tb *tradeBook) applyReject(rej types.Rejection) (types.Trade, bool, error) {
	intent, ok := tb.pending[rej.OrderID]
	if !ok {
		return types.Trade{}, false, fmt.Errorf("%w: 拒绝回报 %s", types.ErrUnknownOrder, rej.OrderID)
	}
	delete(tb.pending, rej.OrderID)

	trade, ok := tb.active[intent.TradeID]
	if !ok {
		return types.Trade{}, false, nil
	}

	if intent.Role == types.RoleEntry && trade.State == types.TradePending {
		trade.State = types.TradeCanceled
		tb.dropOrders(trade)
		tb.finish(trade)
		return *trade, true, nil
	}

	return *trade, false, nil
}

// dropOrders 移除交易剩余的待处理订单
func (tb *tradeBook) dropOrders(trade *types.Trade) {
	for _, id := range []string{trade.EntryOrderID, trade.StopOrderID, trade.TargetOrderID} {
		delete(tb.pending, id)
	}
}

// finish 从活跃列表移入历史
func (tb *tradeBook) finish(trade *types.Trade) {
	delete(tb.active, trade.ID)
	for i, id := range tb.order {
		if id == trade.ID {
			tb.order = append(tb.order[:i], tb.order[i+1:]...)
			break
		}
	}
	tb.history = append(tb.history, *trade)
}

// activeTrades 按开仓顺序返回活跃交易的副本
func (tb *tradeBook) activeTrades() []types.Trade {
	trades := make([]types.Trade, 0, len(tb.order))
	for _, id := range tb.order {
		trades = append(trades, *tb.active[id])
	}
	return trades
}

// pendingOrders 返回待处理订单的副本
func (tb *tradeBook) pendingOrders() []types.OrderIntent {
	orders := make([]types.OrderIntent, 0, len(tb.pending))
	for _, id := range tb.order {
		trade := tb.active[id]
		for _, orderID := range []string{trade.EntryOrderID, trade.StopOrderID, trade.TargetOrderID} {
			if intent, ok := tb.pending[orderID]; ok {
				orders = append(orders, intent)
			}
		}
	}
	return orders
}

// realizedPnL 已平仓交易的累计盈亏
func (tb *tradeBook) realizedPnL() float64 {
	total := 0.0
	for _, trade := range tb.history {
		if trade.State == types.TradeClosed {
			total += trade.PnL
		}
	}
	return total
}
