package structure

import (
	"fmt"

	"price-action-sentry/internal/strategy/indicators"
	"price-action-sentry/pkg/types"
)

// Structure 一次完整的市场结构分析结果
type Structure struct {
	Trend    types.Trend `json:"trend"`
	ATR      float64     `json:"atr"`
	Swings   SwingSet    `json:"swings"`
	Zones    ZoneSet     `json:"zones"`
	BarCount int         `json:"bar_count"`
}

// Analyze 依次计算 ATR、摆动点、趋势和供需区域
//
// 返回的 Zones 未经强度过滤，调用方按需调用 Filter。数据不足时返回 UNKNOWN 和空区域，
// 只有K线含非有限值或 high<low 时才返回错误。
func Analyze(bars []types.Bar, cfg types.PriceActionConfig) (Structure, error) {
	for i, b := range bars {
		if !b.IsFinite() {
			return Structure{}, fmt.Errorf("%w: 第%d根K线数据异常 O=%v H=%v L=%v C=%v",
				types.ErrStructureRefresh, i, b.Open, b.High, b.Low, b.Close)
		}
	}

	atr := indicators.CalculateATR(bars, cfg.ATRPeriod)
	swings := DetectSwings(bars, cfg.SwingLookback, atr, cfg.ATRSwingThresholdMultiplier)
	trend := ClassifyTrend(swings.Highs, swings.Lows, cfg.TrendStrengthThreshold)

	return Structure{
		Trend:    trend,
		ATR:      atr,
		Swings:   swings,
		Zones:    BuildZones(trend, swings, atr, cfg.ZoneBufferATRMult, cfg.TrendStrengthThreshold),
		BarCount: len(bars),
	}, nil
}
