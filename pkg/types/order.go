package types

import (
	"fmt"
	"time"
)

// OrderKind 订单类型
type OrderKind int

const (
	OrderMarket OrderKind = iota
	OrderStop
	OrderLimit
)

func (k OrderKind) String() string {
	switch k {
	case OrderStop:
		return "STOP"
	case OrderLimit:
		return "LIMIT"
	default:
		return "MARKET"
	}
}

func (k OrderKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// OrderSide 买卖方向
type OrderSide int

const (
	OrderBuy OrderSide = iota
	OrderSell
)

func (s OrderSide) String() string {
	if s == OrderSell {
		return "SELL"
	}
	return "BUY"
}

func (s OrderSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OrderRole 订单在交易中的角色
type OrderRole int

const (
	RoleEntry OrderRole = iota
	RoleStopLoss
	RoleTakeProfit
)

func (r OrderRole) String() string {
	switch r {
	case RoleStopLoss:
		return "STOP_LOSS"
	case RoleTakeProfit:
		return "TAKE_PROFIT"
	default:
		return "ENTRY"
	}
}

func (r OrderRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// OrderIntent 策略发出的下单意图，由执行方负责成交
type OrderIntent struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id"`
	Kind      OrderKind `json:"kind"`
	Side      OrderSide `json:"side"`
	Role      OrderRole `json:"role"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price,omitempty"` // 市价单为0
	CreatedAt time.Time `json:"created_at"`
}

// Fill 执行方回报的成交
type Fill struct {
	OrderID    string    `json:"order_id"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Commission float64   `json:"commission"`
	Time       time.Time `json:"time"`
}

// Rejection 执行方回报的终态拒绝/撤单
type Rejection struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// TradeSide 多空方向
type TradeSide int

const (
	SideLong TradeSide = iota
	SideShort
)

func (s TradeSide) String() string {
	if s == SideShort {
		return "SHORT"
	}
	return "LONG"
}

func (s TradeSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TradeSide) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LONG":
		*s = SideLong
	case "SHORT":
		*s = SideShort
	default:
		return fmt.Errorf("未知交易方向: %q", text)
	}
	return nil
}

// EntrySide 开仓方向对应的订单方向
func (s TradeSide) EntrySide() OrderSide {
	if s == SideShort {
		return OrderSell
	}
	return OrderBuy
}

// ExitSide 平仓方向对应的订单方向
func (s TradeSide) ExitSide() OrderSide {
	if s == SideShort {
		return OrderBuy
	}
	return OrderSell
}

// TradeState 单笔交易状态: Pending -> Open -> Closed，开仓被拒则 Canceled
type TradeState int

const (
	TradePending TradeState = iota
	TradeOpen
	TradeClosed
	TradeCanceled
)

func (s TradeState) String() string {
	switch s {
	case TradeOpen:
		return "OPEN"
	case TradeClosed:
		return "CLOSED"
	case TradeCanceled:
		return "CANCELED"
	default:
		return "PENDING"
	}
}

func (s TradeState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TradeState) UnmarshalText(text []byte) error {
	for _, state := range []TradeState{TradePending, TradeOpen, TradeClosed, TradeCanceled} {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("未知交易状态: %q", text)
}

// Trade 一笔交易及其止损止盈
type Trade struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Side          TradeSide  `json:"side"`
	State         TradeState `json:"state"`
	EntryPrice    float64    `json:"entry_price"`
	Size          float64    `json:"size"`
	StopLoss      float64    `json:"stop_loss"`
	TakeProfit    float64    `json:"take_profit"`
	EntryIndex    int        `json:"entry_index"`
	EntryTime     time.Time  `json:"entry_time"`
	ExitPrice     float64    `json:"exit_price,omitempty"`
	ExitTime      time.Time  `json:"exit_time,omitempty"`
	ExitReason    OrderRole  `json:"exit_reason,omitempty"`
	PnL           float64    `json:"pnl"`
	Commission    float64    `json:"commission"`
	CounterTrend  bool       `json:"counter_trend"`
	EntryOrderID  string     `json:"entry_order_id"`
	StopOrderID   string     `json:"stop_order_id"`
	TargetOrderID string     `json:"target_order_id"`
}

// RealizedPnL 按方向计算平仓盈亏（不含手续费）
func RealizedPnL(side TradeSide, entry, exit, size float64) float64 {
	if side == SideShort {
		return (entry - exit) * size
	}
	return (exit - entry) * size
}
