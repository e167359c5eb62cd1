package structure

import (
	"price-action-sentry/pkg/types"
)

// recentSwings 判断趋势时每侧参考的最近摆动点数量
const recentSwings = 3

// ClassifyTrend 根据最近的摆动高低点序列判断趋势
//
// 高点和低点都需要至少2个，否则为 UNKNOWN。多空同时确认时归为 RANGE。
func ClassifyTrend(highs, lows []types.SwingPoint, threshold float64) types.Trend {
	if len(highs) < 2 || len(lows) < 2 {
		return types.TrendUnknown
	}

	higherHighs, lowerHighs := confirmations(lastN(highs, recentSwings), threshold)
	higherLows, lowerLows := confirmations(lastN(lows, recentSwings), threshold)

	isUptrend := higherHighs && higherLows
	isDowntrend := lowerHighs && lowerLows

	switch {
	case isUptrend && !isDowntrend:
		return types.TrendUp
	case isDowntrend && !isUptrend:
		return types.TrendDown
	default:
		// 包括多空冲突的情况
		return types.TrendRange
	}
}

// confirmations 统计相邻点严格抬高/降低的比例，是否达到阈值
func confirmations(points []types.SwingPoint, threshold float64) (up, down bool) {
	comparisons := len(points) - 1
	if comparisons <= 0 {
		return false, false
	}

	rising, falling := 0, 0
	for i := 1; i < len(points); i++ {
		switch {
		case points[i].Price > points[i-1].Price:
			rising++
		case points[i].Price < points[i-1].Price:
			falling++
		}
	}

	up = float64(rising)/float64(comparisons) >= threshold
	down = float64(falling)/float64(comparisons) >= threshold
	return up, down
}

func lastN(points []types.SwingPoint, n int) []types.SwingPoint {
	if len(points) > n {
		return points[len(points)-n:]
	}
	return points
}
