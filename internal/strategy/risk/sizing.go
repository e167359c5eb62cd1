package risk

import (
	"math"

	"price-action-sentry/pkg/types"
)

// maxCashUsage 单笔仓位最多占用可用资金的比例
const maxCashUsage = 0.95

// Levels 一笔交易的止损止盈价位
type Levels struct {
	StopLoss     float64
	TakeProfit   float64
	StopDistance float64
}

// CalculateLevels 计算止损止盈
//
// 止损取区域边缘与 ATR 倍数止损中离价格更远的一个，止盈按盈亏比放大止损距离。
func CalculateLevels(side types.TradeSide, price float64, zone types.Zone, atr, stopATRMult, riskReward float64) Levels {
	var stop float64
	if side == types.SideShort {
		stop = math.Max(zone.Upper, price+atr*stopATRMult)
	} else {
		stop = math.Min(zone.Lower, price-atr*stopATRMult)
	}

	distance := math.Abs(price - stop)
	target := price + distance*riskReward
	if side == types.SideShort {
		target = price - distance*riskReward
	}

	return Levels{
		StopLoss:     stop,
		TakeProfit:   target,
		StopDistance: distance,
	}
}

// PositionSize 按风险预算计算仓位
//
// size = equity*maxRisk/stopDistance，且不超过 95% 可用资金能买入的数量。
// 止损距离或价格非正时返回0。
func PositionSize(equity, cash, price, stopDistance, maxRisk float64) float64 {
	if stopDistance <= 0 || price <= 0 {
		return 0
	}

	size := equity * maxRisk / stopDistance

	affordable := cash / price * maxCashUsage
	if size > affordable {
		size = affordable
	}

	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return 0
	}
	return size
}
