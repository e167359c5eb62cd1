package patterns

import (
	"price-action-sentry/pkg/types"
)

const (
	smallBodyRatio       = 0.33 // 锤子线/流星线的实体占比上限
	strictSmallBodyRatio = 0.02 // min_body_size_ratio>=0.7 时的实体占比上限
	strictBodyCutoff     = 0.7
	longWickBodyMultiple = 2.0 // 长影线至少为实体的2倍
	longWickRangeRatio   = 0.5 // 且至少占振幅的50%
	shortWickRangeRatio  = 0.1 // 短影线不超过振幅的10%
	dojiBodyRatio        = 0.1 // 十字星实体不超过振幅的10%
)

// DefaultScanKinds 全量扫描默认检测的四种反转形态
var DefaultScanKinds = []types.PatternKind{
	types.PatternBullishEngulfing,
	types.PatternBearishEngulfing,
	types.PatternHammer,
	types.PatternShootingStar,
}

// Detector K线形态识别器，无状态，可并发使用
type Detector struct {
	minBodySizeRatio   float64
	engulfingThreshold float64
}

// NewDetector 创建形态识别器
func NewDetector(minBodySizeRatio, engulfingThreshold float64) Detector {
	return Detector{
		minBodySizeRatio:   minBodySizeRatio,
		engulfingThreshold: engulfingThreshold,
	}
}

// NewDetectorFromConfig 按策略配置创建形态识别器
func NewDetectorFromConfig(cfg types.PriceActionConfig) Detector {
	return NewDetector(cfg.MinBodySizeRatio, cfg.EngulfingThreshold)
}

// Detect 判断第i根K线是否构成指定形态
func (d Detector) Detect(kind types.PatternKind, bars []types.Bar, i int) bool {
	switch kind {
	case types.PatternBullishEngulfing:
		return d.BullishEngulfing(bars, i)
	case types.PatternBearishEngulfing:
		return d.BearishEngulfing(bars, i)
	case types.PatternHammer:
		return d.Hammer(bars, i)
	case types.PatternShootingStar:
		return d.ShootingStar(bars, i)
	case types.PatternDoji:
		return d.Doji(bars, i)
	default:
		return false
	}
}

// BullishEngulfing 看涨吞没：前阴后阳，当前实体更大且包住前一根实体
func (d Detector) BullishEngulfing(bars []types.Bar, i int) bool {
	if i < 1 || i >= len(bars) {
		return false
	}

	prev, curr := bars[i-1], bars[i]
	if !prev.IsBearish() || !curr.IsBullish() {
		return false
	}

	prevBody := prev.Body()
	tolerance := prevBody * d.engulfingThreshold

	return curr.Body() > prevBody &&
		curr.Open <= prev.Close+tolerance &&
		curr.Close >= prev.Open-tolerance
}

// BearishEngulfing 看跌吞没：前阳后阴，当前实体更大且包住前一根实体
func (d Detector) BearishEngulfing(bars []types.Bar, i int) bool {
	if i < 1 || i >= len(bars) {
		return false
	}

	prev, curr := bars[i-1], bars[i]
	if !prev.IsBullish() || !curr.IsBearish() {
		return false
	}

	prevBody := prev.Body()
	tolerance := prevBody * d.engulfingThreshold

	return curr.Body() > prevBody &&
		curr.Open >= prev.Close-tolerance &&
		curr.Close <= prev.Open+tolerance
}

// Hammer 锤子线：小实体，长下影，几乎无上影
func (d Detector) Hammer(bars []types.Bar, i int) bool {
	if i < 0 || i >= len(bars) {
		return false
	}
	b := bars[i]
	return d.pinBar(b, b.LowerWick(), b.UpperWick())
}

// ShootingStar 流星线：小实体，长上影，几乎无下影
func (d Detector) ShootingStar(bars []types.Bar, i int) bool {
	if i < 0 || i >= len(bars) {
		return false
	}
	b := bars[i]
	return d.pinBar(b, b.UpperWick(), b.LowerWick())
}

// Doji 十字星：实体极小
func (d Detector) Doji(bars []types.Bar, i int) bool {
	if i < 0 || i >= len(bars) {
		return false
	}
	b := bars[i]
	totalRange := b.Range()
	if totalRange <= 0 {
		return false
	}
	return b.Body()/totalRange <= dojiBodyRatio
}

// pinBar 锤子线与流星线共用的判断
func (d Detector) pinBar(b types.Bar, longWick, shortWick float64) bool {
	totalRange := b.Range()
	if totalRange <= 0 {
		return false
	}

	maxBodyRatio := smallBodyRatio
	if d.minBodySizeRatio >= strictBodyCutoff {
		maxBodyRatio = strictSmallBodyRatio
	}

	body := b.Body()
	smallBody := body/totalRange <= maxBodyRatio
	longWickOK := longWick >= longWickBodyMultiple*body && longWick/totalRange >= longWickRangeRatio
	shortWickOK := shortWick/totalRange <= shortWickRangeRatio

	return smallBody && longWickOK && shortWickOK
}

// ScanPatterns 在每根K线上检测每种形态，返回按索引排序的匹配列表
//
// kinds 为空时使用 DefaultScanKinds。每种请求的形态都会出现在结果中，即使没有匹配。
func (d Detector) ScanPatterns(bars []types.Bar, kinds []types.PatternKind) map[types.PatternKind][]types.PatternMatch {
	if len(kinds) == 0 {
		kinds = DefaultScanKinds
	}

	results := make(map[types.PatternKind][]types.PatternMatch, len(kinds))
	for _, kind := range kinds {
		results[kind] = []types.PatternMatch{}
	}

	for i := range bars {
		for _, kind := range kinds {
			if d.Detect(kind, bars, i) {
				results[kind] = append(results[kind], types.PatternMatch{
					Index:     i,
					Timestamp: bars[i].Timestamp,
					Kind:      kind,
				})
			}
		}
	}

	return results
}
