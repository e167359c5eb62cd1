package broker

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"price-action-sentry/pkg/types"
)

const (
	reasonInsufficientCash = "资金不足"
	reasonInvalidOrder     = "订单参数非法"
	reasonOCO              = "同组订单已成交，撤单"
	reasonCanceled         = "撤单"
)

// Listener 接收成交与拒绝回报，策略引擎实现该接口
type Listener interface {
	OnFill(fill types.Fill) error
	OnReject(rej types.Rejection) error
}

// SimulatedBroker 按K线撮合的模拟执行方
//
// 市价单在下一根K线开盘价成交；止损/限价单从下一根K线开始按最高最低价触发，
// 跳空时按开盘价成交。同一交易的平仓单互为 OCO，同一根K线同时触发时止损优先。
type SimulatedBroker struct {
	mu         sync.Mutex
	cash       decimal.Decimal
	position   decimal.Decimal // 净持仓，空头为负
	commission decimal.Decimal // 手续费率
	lastPrice  float64
	queued     []types.OrderIntent // 待撮合市价单
	working    []types.OrderIntent // 挂单中的止损/限价单
	filledIDs  map[string]bool     // 已成交的开仓单，对应交易的平仓单才会生效
}

// NewSimulatedBroker 创建模拟执行方
func NewSimulatedBroker(initialCash, commissionRate float64) *SimulatedBroker {
	return &SimulatedBroker{
		cash:       decimal.NewFromFloat(initialCash),
		commission: decimal.NewFromFloat(commissionRate),
		filledIDs:  make(map[string]bool),
	}
}

// Submit 提交订单意图，在下一次 ProcessBar 时撮合
func (sb *SimulatedBroker) Submit(intents []types.OrderIntent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, intent := range intents {
		if intent.Kind == types.OrderMarket {
			sb.queued = append(sb.queued, intent)
		} else {
			sb.working = append(sb.working, intent)
		}
	}
}

// Cancel 撤销挂单，订单不存在时返回 false
func (sb *SimulatedBroker) Cancel(orderID string, listener Listener) bool {
	sb.mu.Lock()
	var found bool
	sb.working, found = removeOrder(sb.working, orderID)
	if !found {
		sb.queued, found = removeOrder(sb.queued, orderID)
	}
	sb.mu.Unlock()

	if found && listener != nil {
		deliver(listener, []event{rejectEvent(orderID, reasonCanceled)})
	}
	return found
}

// ProcessBar 用一根新K线撮合所有订单，并按发生顺序向 listener 回报
func (sb *SimulatedBroker) ProcessBar(bar types.Bar, listener Listener) {
	sb.mu.Lock()
	events := sb.match(bar)
	sb.lastPrice = bar.Close
	sb.mu.Unlock()

	deliver(listener, events)
}

// event 一条成交或拒绝回报，二者只有一个非空
type event struct {
	fill      *types.Fill
	rejection *types.Rejection
}

func fillEvent(fill types.Fill) event {
	return event{fill: &fill}
}

func rejectEvent(orderID, reason string) event {
	return event{rejection: &types.Rejection{OrderID: orderID, Reason: reason}}
}

// match 撮合逻辑，调用方持有锁。回报按K线内发生的先后排列：
// 开盘时的市价单（被拒开仓单紧跟其平仓单的撤单），然后是触发的挂单及其 OCO 撤单。
func (sb *SimulatedBroker) match(bar types.Bar) []event {
	var events []event

	// 1. 市价单按开盘价成交
	for _, intent := range sb.queued {
		reason := ""
		switch {
		case intent.Size <= 0 || bar.Open <= 0:
			reason = reasonInvalidOrder
		case !sb.affordable(intent, bar.Open):
			reason = reasonInsufficientCash
		}
		if reason != "" {
			events = append(events, rejectEvent(intent.ID, reason))
			// 开仓被拒的交易，其平仓挂单一并撤销
			if intent.Role == types.RoleEntry {
				events = append(events, sb.cancelTrade(intent.TradeID)...)
			}
			continue
		}

		events = append(events, fillEvent(sb.execute(intent, bar.Open, bar)))
		if intent.Role == types.RoleEntry {
			sb.filledIDs[intent.TradeID] = true
		}
	}
	sb.queued = nil

	// 2. 止损/限价单，成交后紧跟同组其余挂单的撤单
	closed := make(map[string]bool)
	for _, intent := range sb.working {
		if !sb.filledIDs[intent.TradeID] || closed[intent.TradeID] {
			continue
		}
		price, ok := triggerPrice(intent, bar)
		if !ok {
			continue
		}
		if intent.Role == types.RoleTakeProfit && sb.stopAlsoTriggered(intent.TradeID, bar) {
			continue
		}

		events = append(events, fillEvent(sb.execute(intent, price, bar)))
		for _, sibling := range sb.working {
			if sibling.TradeID == intent.TradeID && sibling.ID != intent.ID {
				events = append(events, rejectEvent(sibling.ID, reasonOCO))
			}
		}
		closed[intent.TradeID] = true
	}

	// 3. 移除已结束交易的挂单
	if len(closed) > 0 {
		remaining := sb.working[:0]
		for _, intent := range sb.working {
			if closed[intent.TradeID] {
				delete(sb.filledIDs, intent.TradeID)
				continue
			}
			remaining = append(remaining, intent)
		}
		sb.working = remaining
	}

	return events
}

// cancelTrade 撤销交易下的所有挂单
func (sb *SimulatedBroker) cancelTrade(tradeID string) []event {
	var events []event
	kept := sb.working[:0]
	for _, intent := range sb.working {
		if intent.TradeID == tradeID {
			events = append(events, rejectEvent(intent.ID, reasonOCO))
			continue
		}
		kept = append(kept, intent)
	}
	sb.working = kept
	return events
}

// execute 按成交价更新资金与持仓
func (sb *SimulatedBroker) execute(intent types.OrderIntent, price float64, bar types.Bar) types.Fill {
	p := decimal.NewFromFloat(price)
	size := decimal.NewFromFloat(intent.Size)
	notional := p.Mul(size)
	fee := notional.Mul(sb.commission)

	if intent.Side == types.OrderBuy {
		sb.cash = sb.cash.Sub(notional).Sub(fee)
		sb.position = sb.position.Add(size)
	} else {
		sb.cash = sb.cash.Add(notional).Sub(fee)
		sb.position = sb.position.Sub(size)
	}

	commission, _ := fee.Float64()
	return types.Fill{
		OrderID:    intent.ID,
		Price:      price,
		Size:       intent.Size,
		Commission: commission,
		Time:       bar.Timestamp,
	}
}

// affordable 买入需要足够现金，卖出（含开空）不受限
func (sb *SimulatedBroker) affordable(intent types.OrderIntent, price float64) bool {
	if intent.Side == types.OrderSell {
		return true
	}
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(intent.Size))
	cost = cost.Add(cost.Mul(sb.commission))
	return sb.cash.GreaterThanOrEqual(cost)
}

func (sb *SimulatedBroker) stopAlsoTriggered(tradeID string, bar types.Bar) bool {
	for _, other := range sb.working {
		if other.TradeID == tradeID && other.Role == types.RoleStopLoss {
			if _, ok := triggerPrice(other, bar); ok {
				return true
			}
		}
	}
	return false
}

// PortfolioEquity 现金 + 持仓按最新收盘价估值
func (sb *SimulatedBroker) PortfolioEquity() float64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	equity := sb.cash.Add(sb.position.Mul(decimal.NewFromFloat(sb.lastPrice)))
	value, _ := equity.Float64()
	return value
}

// AvailableCash 可用现金
func (sb *SimulatedBroker) AvailableCash() float64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	value, _ := sb.cash.Float64()
	return math.Max(value, 0)
}

// Position 当前净持仓
func (sb *SimulatedBroker) Position() float64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	value, _ := sb.position.Float64()
	return value
}

// OpenOrders 未终结的订单数
func (sb *SimulatedBroker) OpenOrders() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.queued) + len(sb.working)
}

// triggerPrice 判断挂单是否在本根K线触发，返回成交价
func triggerPrice(intent types.OrderIntent, bar types.Bar) (float64, bool) {
	switch {
	case intent.Kind == types.OrderStop && intent.Side == types.OrderSell:
		if bar.Low <= intent.Price {
			return math.Min(bar.Open, intent.Price), true
		}
	case intent.Kind == types.OrderStop && intent.Side == types.OrderBuy:
		if bar.High >= intent.Price {
			return math.Max(bar.Open, intent.Price), true
		}
	case intent.Kind == types.OrderLimit && intent.Side == types.OrderSell:
		if bar.High >= intent.Price {
			return math.Max(bar.Open, intent.Price), true
		}
	case intent.Kind == types.OrderLimit && intent.Side == types.OrderBuy:
		if bar.Low <= intent.Price {
			return math.Min(bar.Open, intent.Price), true
		}
	}
	return 0, false
}

func deliver(listener Listener, events []event) {
	if listener == nil {
		return
	}
	for _, ev := range events {
		switch {
		case ev.fill != nil:
			if err := listener.OnFill(*ev.fill); err != nil {
				zap.L().Debug("成交回报未被处理", zap.String("order_id", ev.fill.OrderID), zap.Error(err))
			}
		case ev.rejection != nil:
			if err := listener.OnReject(*ev.rejection); err != nil {
				zap.L().Debug("拒绝回报未被处理", zap.String("order_id", ev.rejection.OrderID), zap.Error(err))
			}
		}
	}
}

func removeOrder(orders []types.OrderIntent, orderID string) ([]types.OrderIntent, bool) {
	for i, o := range orders {
		if o.ID == orderID {
			return append(orders[:i], orders[i+1:]...), true
		}
	}
	return orders, false
}
