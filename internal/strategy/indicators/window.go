package indicators

import (
	"price-action-sentry/pkg/types"
)

// Channel 一段K线窗口内的最高价与最低价
type Channel struct {
	Upper  float64 `json:"upper"`
	Lower  float64 `json:"lower"`
	Middle float64 `json:"middle"`
}

// WindowChannel 计算 bars[start:end] 的价格通道，窗口为空返回 false
func WindowChannel(bars []types.Bar, start, end int) (Channel, bool) {
	if start < 0 {
		start = 0
	}
	if end > len(bars) {
		end = len(bars)
	}
	if start >= end {
		return Channel{}, false
	}

	highest := bars[start].High
	lowest := bars[start].Low

	// 找出指定范围内的最高价和最低价
	for i := start + 1; i < end; i++ {
		if bars[i].High > highest {
			highest = bars[i].High
		}
		if bars[i].Low < lowest {
			lowest = bars[i].Low
		}
	}

	return Channel{
		Upper:  highest,
		Lower:  lowest,
		Middle: (highest + lowest) / 2,
	}, true
}

// RecentChannel 最近n根K线的价格通道
func RecentChannel(bars []types.Bar, n int) (Channel, bool) {
	return WindowChannel(bars, len(bars)-n, len(bars))
}

// Position 价格在通道中的位置（0-1）
func (c Channel) Position(price float64) float64 {
	if c.Upper == c.Lower {
		return 0.5
	}

	position := (price - c.Lower) / (c.Upper - c.Lower)

	// 限制在0-1范围内
	if position < 0 {
		position = 0
	} else if position > 1 {
		position = 1
	}

	return position
}

// WidthPercent 通道宽度占中轨的百分比
func (c Channel) WidthPercent() float64 {
	if c.Middle == 0 {
		return 0
	}
	return ((c.Upper - c.Lower) / c.Middle) * 100
}
