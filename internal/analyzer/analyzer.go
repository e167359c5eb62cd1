package analyzer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/internal/notifier"
	"price-action-sentry/internal/scheduler"
	"price-action-sentry/internal/strategy/fetcher"
	"price-action-sentry/internal/strategy/indicators"
	"price-action-sentry/internal/strategy/patterns"
	"price-action-sentry/internal/strategy/signals"
	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

// minBars 结构分析至少需要的K线数
const minBars = 20

// ReportCache 分析结果缓存
type ReportCache interface {
	Store(symbol string, value interface{}) error
}

// AnalysisEngine 多交易对结构分析
type AnalysisEngine struct {
	source       fetcher.BarSource
	cache        ReportCache
	notifier     notifier.Interface
	config       types.PriceActionConfig
	interval     string
	limit        int
	setupsOnly   bool
	detector     *signals.RetestSignalDetector
	alertHistory map[string]time.Time // 防止同一根K线重复通知
	mutex        sync.Mutex
}

// NewAnalysisEngine 创建分析引擎，cache 可为空
func NewAnalysisEngine(source fetcher.BarSource, cache ReportCache, notifyService notifier.Interface, config types.PriceActionConfig, market types.MarketConfig) *AnalysisEngine {
	return &AnalysisEngine{
		source:       source,
		cache:        cache,
		notifier:     notifyService,
		config:       config,
		interval:     market.Interval,
		limit:        market.Limit,
		detector:     signals.NewRetestSignalDetector(config),
		alertHistory: make(map[string]time.Time),
	}
}

// SetupsOnly 只通知出现入场条件的交易对（watch 模式）
func (ae *AnalysisEngine) SetupsOnly() *AnalysisEngine {
	ae.setupsOnly = true
	return ae
}

// Run 分析全部交易对并发送通知
func (ae *AnalysisEngine) Run(ctx context.Context, symbols []string) []*types.MarketReport {
	reports := ae.AnalyzeAll(ctx, symbols)

	toSend := reports
	if ae.setupsOnly {
		toSend = ae.newSetups(reports)
	}
	if len(toSend) > 0 {
		if err := ae.notifier.SendReports(toSend); err != nil {
			zap.L().Error("❌ 发送分析报告失败", zap.Error(err))
		}
	}

	return reports
}

// AnalyzeAll 并发分析各交易对
func (ae *AnalysisEngine) AnalyzeAll(ctx context.Context, symbols []string) []*types.MarketReport {
	if len(symbols) == 0 {
		return nil
	}

	zap.L().Info("🔍 开始结构分析", zap.Int("symbols", len(symbols)), zap.String("interval", ae.interval))

	var wg sync.WaitGroup
	var reportMutex sync.Mutex
	reports := make([]*types.MarketReport, 0, len(symbols))

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			report := ae.analyzeSymbol(ctx, sym)

			reportMutex.Lock()
			reports = append(reports, report)
			reportMutex.Unlock()
		}(symbol)
	}
	wg.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Symbol < reports[j].Symbol })

	setups := 0
	for _, r := range reports {
		if r.HasSetup() {
			setups++
		}
		if ae.cache != nil && r.Error == "" {
			if err := ae.cache.Store(r.Symbol, r); err != nil {
				zap.L().Warn("缓存分析结果失败", zap.String("symbol", r.Symbol), zap.Error(err))
			}
		}
	}

	zap.L().Info("✅ 分析完成", zap.Int("symbols", len(reports)), zap.Int("setups", setups))
	return reports
}

// analyzeSymbol 获取K线并分析单个交易对，失败时报告中带错误信息
func (ae *AnalysisEngine) analyzeSymbol(ctx context.Context, symbol string) *types.MarketReport {
	bars, err := ae.source.FetchBars(ctx, symbol, ae.interval, ae.limit)
	if err != nil {
		zap.L().Error("获取K线失败", zap.String("symbol", symbol), zap.Error(err))
		return &types.MarketReport{Symbol: symbol, Interval: ae.interval, Error: err.Error(), AnalyzedAt: time.Now()}
	}

	report, err := ae.AnalyzeBars(symbol, bars)
	if err != nil {
		zap.L().Warn("结构分析失败", zap.String("symbol", symbol), zap.Error(err))
		report.Error = err.Error()
	}
	return report
}

// AnalyzeBars 对给定K线做一次完整的结构、形态与回踩分析
func (ae *AnalysisEngine) AnalyzeBars(symbol string, bars []types.Bar) (*types.MarketReport, error) {
	report := &types.MarketReport{
		Symbol:     symbol,
		Interval:   ae.interval,
		Bars:       len(bars),
		AnalyzedAt: time.Now(),
	}
	if len(bars) < minBars {
		return report, fmt.Errorf("%w: 需要至少%d根K线, 当前%d", types.ErrInsufficientData, minBars, len(bars))
	}
	report.LastClose = bars[len(bars)-1].Close

	st, err := structure.Analyze(bars, ae.config)
	if err != nil {
		return report, err
	}
	zones := st.Zones.Filter(ae.config.ZoneStrengthThreshold, ae.config.MaxZonesToTrack)

	report.Trend = st.Trend
	report.ATR = st.ATR
	report.ATRPercent = indicators.NormalizedATR(st.ATR, report.LastClose)
	if channel, ok := indicators.RecentChannel(bars, ae.config.ZoneRetestLookback); ok {
		report.RangePosition = channel.Position(report.LastClose)
		report.RangeWidthPct = channel.WidthPercent()
	}
	report.SupplyZones = zones.Supply
	report.DemandZones = zones.Demand

	detector := patterns.NewDetectorFromConfig(ae.config)
	report.PatternCounts = make(map[string]int)
	for kind, matches := range detector.ScanPatterns(bars, types.AllPatternKinds) {
		report.PatternCounts[kind.String()] = len(matches)
	}
	for _, kind := range types.AllPatternKinds {
		if detector.Detect(kind, bars, len(bars)-1) {
			report.LatestPattern = kind.String()
			break
		}
	}

	report.Conditions = ae.detector.ValidateSignalConditions(bars, st)

	if candidate := ae.detector.DetectSignal(symbol, bars, st.Trend, zones); candidate != nil {
		side := candidate.Side
		report.Setup = &side
		report.CounterTrend = candidate.CounterTrend
	}

	return report, nil
}

// newSetups 过滤出尚未通知过的入场条件
func (ae *AnalysisEngine) newSetups(reports []*types.MarketReport) []*types.MarketReport {
	ae.mutex.Lock()
	defer ae.mutex.Unlock()

	var fresh []*types.MarketReport
	for _, r := range reports {
		if !r.HasSetup() {
			continue
		}
		key := fmt.Sprintf("%s:%s", r.Symbol, r.Setup.String())
		if last, ok := ae.alertHistory[key]; ok && time.Since(last) < ae.cooldown() {
			continue
		}
		ae.alertHistory[key] = time.Now()
		fresh = append(fresh, r)
	}

	// 清理过期的通知记录
	cutoff := time.Now().Add(-ae.cooldown())
	for key, at := range ae.alertHistory {
		if at.Before(cutoff) {
			delete(ae.alertHistory, key)
		}
	}
	return fresh
}

// cooldown 同一方向的重复通知间隔为一根K线周期
func (ae *AnalysisEngine) cooldown() time.Duration {
	if d, err := scheduler.BarDuration(ae.interval); err == nil {
		return d
	}
	return 15 * time.Minute
}
