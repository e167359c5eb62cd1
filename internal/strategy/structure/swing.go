package structure

import (
	"math"

	"price-action-sentry/internal/strategy/indicators"
	"price-action-sentry/pkg/types"
)

// SwingSet 一次检测得到的摆动高点和低点，均按索引递增
type SwingSet struct {
	Highs []types.SwingPoint `json:"highs"`
	Lows  []types.SwingPoint `json:"lows"`
}

// DetectSwings 检测分形摆动点并用ATR过滤过近的点
//
// 每次调用都基于传入窗口重新计算，不保留任何状态。K线数不超过 2*lookback+1 时返回空结果，
// 恰好 2*lookback+1 根也视为数据不足。
func DetectSwings(bars []types.Bar, lookback int, atr, atrMult float64) SwingSet {
	var set SwingSet
	if lookback < 1 || len(bars) <= 2*lookback+1 {
		return set
	}

	minDistance := atr * atrMult
	for i := lookback; i < len(bars)-lookback; i++ {
		window, ok := indicators.WindowChannel(bars, i-lookback, i+lookback+1)
		if !ok {
			continue
		}

		// 平台顶/底也算摆动点
		if bars[i].High >= window.Upper && farEnough(set.Highs, bars[i].High, minDistance) {
			set.Highs = append(set.Highs, types.SwingPoint{Index: i, Price: bars[i].High, Kind: types.SwingHigh})
		}
		if bars[i].Low <= window.Lower && farEnough(set.Lows, bars[i].Low, minDistance) {
			set.Lows = append(set.Lows, types.SwingPoint{Index: i, Price: bars[i].Low, Kind: types.SwingLow})
		}
	}

	return set
}

// farEnough 与同侧上一个已接受的摆动点价差是否达到阈值
func farEnough(accepted []types.SwingPoint, price, minDistance float64) bool {
	if len(accepted) == 0 {
		return true
	}
	return math.Abs(price-accepted[len(accepted)-1].Price) >= minDistance
}
