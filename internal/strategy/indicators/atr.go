package indicators

import (
	"math"

	"price-action-sentry/pkg/types"
)

const (
	// atrFallbackRatio ATR不可用时按平均收盘价的0.1%估算
	atrFallbackRatio = 0.001
	// atrEpsilon 最终兜底值，保证ATR恒为正
	atrEpsilon = 1e-4
)

// CalculateATR 计算最近period根K线真实波幅的简单平均
//
// 少于2根K线或结果<=0时回退到 0.1%×平均收盘价，仍<=0则返回 atrEpsilon。
func CalculateATR(bars []types.Bar, period int) float64 {
	if len(bars) >= 2 && period > 0 {
		trValues := TrueRanges(bars)
		if len(trValues) > period {
			trValues = trValues[len(trValues)-period:]
		}
		if atr := calculateSMA(trValues); atr > 0 && !math.IsNaN(atr) && !math.IsInf(atr, 0) {
			return atr
		}
	}

	return fallbackATR(bars)
}

// TrueRange 计算第i根K线的真实波幅，i>=1
func TrueRange(bars []types.Bar, i int) float64 {
	current := bars[i]
	previous := bars[i-1]

	// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)
	hl := current.High - current.Low
	hc := math.Abs(current.High - previous.Close)
	lc := math.Abs(current.Low - previous.Close)

	return math.Max(hl, math.Max(hc, lc))
}

// TrueRanges 计算真实波幅序列，长度为 len(bars)-1
func TrueRanges(bars []types.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}

	trValues := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trValues = append(trValues, TrueRange(bars, i))
	}
	return trValues
}

// NormalizedATR ATR占价格的百分比
func NormalizedATR(atr, price float64) float64 {
	if price == 0 {
		return 0
	}
	return (atr / price) * 100
}

func fallbackATR(bars []types.Bar) float64 {
	if len(bars) > 0 {
		closes := make([]float64, len(bars))
		for i, b := range bars {
			closes[i] = b.Close
		}
		if fallback := calculateSMA(closes) * atrFallbackRatio; fallback > 0 && !math.IsInf(fallback, 0) {
			return fallback
		}
	}
	return atrEpsilon
}

// calculateSMA 计算简单移动平均
func calculateSMA(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}
