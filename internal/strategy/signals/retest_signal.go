package signals

import (
	"go.uber.org/zap"
	"price-action-sentry/internal/strategy/patterns"
	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

// 需求区只接受看涨吞没确认，供给区只接受看跌吞没确认
var (
	demandConfirmations = []types.PatternKind{types.PatternBullishEngulfing}
	supplyConfirmations = []types.PatternKind{types.PatternBearishEngulfing}
)

// Candidate 通过回踩与形态确认的候选信号
type Candidate struct {
	Side         types.TradeSide
	Zone         types.Zone
	Pattern      string // 未要求确认时为空
	CounterTrend bool
}

// RetestSignalDetector 区域回踩信号检测器
type RetestSignalDetector struct {
	detector patterns.Detector
	config   types.PriceActionConfig
}

// NewRetestSignalDetector 创建信号检测器
func NewRetestSignalDetector(config types.PriceActionConfig) *RetestSignalDetector {
	return &RetestSignalDetector{
		detector: patterns.NewDetectorFromConfig(config),
		config:   config,
	}
}

// DetectRetest 当前K线收盘价或极值落入区域即视为回踩，需求区优先，命中第一个即返回
func DetectRetest(bar types.Bar, zones structure.ZoneSet) (types.Zone, bool) {
	for _, zone := range zones.Demand {
		if zone.Contains(bar.Close) || zone.Contains(bar.Low) {
			return zone, true
		}
	}
	for _, zone := range zones.Supply {
		if zone.Contains(bar.Close) || zone.Contains(bar.High) {
			return zone, true
		}
	}
	return types.Zone{}, false
}

// DetectSignal 检测最新一根K线上的回踩信号，bars 的最后一根为当前K线
func (rsd *RetestSignalDetector) DetectSignal(symbol string, bars []types.Bar, trend types.Trend, zones structure.ZoneSet) *Candidate {
	if len(bars) == 0 {
		return nil
	}
	current := len(bars) - 1

	// 1. 区域回踩
	zone, ok := DetectRetest(bars[current], zones)
	if !ok {
		return nil
	}

	side := types.SideLong
	if zone.Side == types.ZoneSupply {
		side = types.SideShort
	}

	// 2. 形态确认
	pattern, confirmed := rsd.confirm(side, bars, current)
	if !confirmed {
		zap.L().Debug("区域回踩未出现确认形态",
			zap.String("symbol", symbol),
			zap.String("zone", zone.Side.String()),
			zap.Float64("zone_price", zone.Price))
		return nil
	}

	// 3. 逆势仅做标记，不拦截
	counterTrend := (side == types.SideLong && trend == types.TrendDown) ||
		(side == types.SideShort && trend == types.TrendUp)
	if counterTrend {
		zap.L().Info("⚠️ 逆势回踩交易",
			zap.String("symbol", symbol),
			zap.String("zone", zone.Side.String()),
			zap.String("trend", trend.String()))
	}

	return &Candidate{
		Side:         side,
		Zone:         zone,
		Pattern:      pattern,
		CounterTrend: counterTrend,
	}
}

// confirm 在当前K线上寻找允许的反转形态
func (rsd *RetestSignalDetector) confirm(side types.TradeSide, bars []types.Bar, i int) (string, bool) {
	if !rsd.config.RequirePatternConfirmation {
		return "", true
	}

	kinds := demandConfirmations
	if side == types.SideShort {
		kinds = supplyConfirmations
	}

	for _, kind := range kinds {
		if rsd.config.PatternAllowed(kind) && rsd.detector.Detect(kind, bars, i) {
			return kind.String(), true
		}
	}
	return "", false
}

// ValidateSignalConditions 输出当前K线各项信号条件，用于分析报告和状态接口
func (rsd *RetestSignalDetector) ValidateSignalConditions(bars []types.Bar, st structure.Structure) map[string]interface{} {
	conditions := make(map[string]interface{})
	conditions["trend"] = st.Trend.String()
	conditions["atr_value"] = st.ATR
	conditions["swing_highs"] = len(st.Swings.Highs)
	conditions["swing_lows"] = len(st.Swings.Lows)

	if len(bars) == 0 {
		conditions["sufficient_data"] = false
		return conditions
	}
	conditions["sufficient_data"] = st.Trend != types.TrendUnknown

	zones := st.Zones.Filter(rsd.config.ZoneStrengthThreshold, rsd.config.MaxZonesToTrack)
	conditions["supply_zones"] = len(zones.Supply)
	conditions["demand_zones"] = len(zones.Demand)

	latest := bars[len(bars)-1]
	conditions["current_price"] = latest.Close

	zone, retest := DetectRetest(latest, zones)
	conditions["retest"] = retest
	if retest {
		conditions["retest_zone"] = zone.Side.String()
		conditions["retest_zone_price"] = zone.Price
		conditions["retest_zone_strength"] = zone.Strength
	}

	for _, kind := range types.AllPatternKinds {
		conditions[kind.String()] = rsd.detector.Detect(kind, bars, len(bars)-1)
	}

	return conditions
}
