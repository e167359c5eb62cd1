package structure

import (
	"price-action-sentry/pkg/types"
)

const (
	// 趋势行情每侧最多取最近3个摆动点，震荡行情每侧2个
	trendZoneCap = 3
	rangeZoneCap = 2

	// 强度以十分位整数计算，避免 0.7-0.2 这类浮点误差影响阈值比较
	trendStrengthTenths = 10
	rangeStrengthTenths = 7
	decayTenths         = 2

	rangeBandRatio = 0.5
)

// ZoneSet 供给区与需求区，均按从新到旧排列
type ZoneSet struct {
	Supply []types.Zone `json:"supply"`
	Demand []types.Zone `json:"demand"`
}

// Filter 过滤低于强度阈值的区域，并限制每侧数量
func (zs ZoneSet) Filter(minStrength float64, maxZones int) ZoneSet {
	return ZoneSet{
		Supply: filterZones(zs.Supply, minStrength, maxZones),
		Demand: filterZones(zs.Demand, minStrength, maxZones),
	}
}

// Len 区域总数
func (zs ZoneSet) Len() int {
	return len(zs.Supply) + len(zs.Demand)
}

// BuildZones 根据趋势和摆动点构建供需区域
//
// 上升趋势只产生需求区，下降趋势只产生供给区，震荡行情两侧都有且区间更窄、强度更低。
// 趋势为 UNKNOWN 时先重新判断趋势，仍无法判断则按震荡处理。
// 区域半宽为 ATR*bufferMult，bufferMult 是额外的可调倍数，默认1.0即 ±ATR。
func BuildZones(trend types.Trend, swings SwingSet, atr, bufferMult, trendThreshold float64) ZoneSet {
	if trend == types.TrendUnknown {
		trend = ClassifyTrend(swings.Highs, swings.Lows, trendThreshold)
	}

	halfWidth := atr * bufferMult
	var zs ZoneSet

	switch trend {
	case types.TrendUp:
		zs.Demand = zonesFromSwings(swings.Lows, types.ZoneDemand, halfWidth, trendStrengthTenths, trendZoneCap)
	case types.TrendDown:
		zs.Supply = zonesFromSwings(swings.Highs, types.ZoneSupply, halfWidth, trendStrengthTenths, trendZoneCap)
	case types.TrendRange, types.TrendUnknown:
		zs.Supply = zonesFromSwings(swings.Highs, types.ZoneSupply, halfWidth*rangeBandRatio, rangeStrengthTenths, rangeZoneCap)
		zs.Demand = zonesFromSwings(swings.Lows, types.ZoneDemand, halfWidth*rangeBandRatio, rangeStrengthTenths, rangeZoneCap)
	}

	return zs
}

// zonesFromSwings 从最近的摆动点开始构建区域，强度随新旧排名递减
func zonesFromSwings(points []types.SwingPoint, side types.ZoneSide, halfWidth float64, baseTenths, limit int) []types.Zone {
	if len(points) < limit {
		limit = len(points)
	}

	zones := make([]types.Zone, 0, limit)
	for rank := 0; rank < limit; rank++ {
		price := points[len(points)-1-rank].Price
		zones = append(zones, types.Zone{
			Price:    price,
			Lower:    price - halfWidth,
			Upper:    price + halfWidth,
			Strength: float64(baseTenths-decayTenths*rank) / 10,
			Side:     side,
		})
	}
	return zones
}

func filterZones(zones []types.Zone, minStrength float64, maxZones int) []types.Zone {
	kept := make([]types.Zone, 0, len(zones))
	for _, z := range zones {
		if z.Strength < minStrength {
			continue
		}
		kept = append(kept, z)
		if len(kept) >= maxZones {
			break
		}
	}
	return kept
}
