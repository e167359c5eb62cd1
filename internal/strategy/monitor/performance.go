package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"price-action-sentry/internal/strategy/database"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/pkg/types"
)

// SnapshotSource 提供各交易对引擎快照
type SnapshotSource interface {
	Snapshots() []engine.Snapshot
}

// DailyStore 每日表现数据来源
type DailyStore interface {
	GetStrategyPerformance(symbol string, days int) ([]database.StrategyPerformance, error)
}

// PerformanceMonitor 策略性能监控器
type PerformanceMonitor struct {
	source SnapshotSource
	store  DailyStore

	startTime      time.Time
	updateInterval time.Duration
	reportInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	metrics *PerformanceMetrics
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime       time.Time                 `json:"start_time"`
	ProcessedBars   int64                     `json:"processed_bars"`
	TotalSignals    int64                     `json:"total_signals"`
	CounterTrend    int64                     `json:"counter_trend"`
	TradesOpened    int64                     `json:"trades_opened"`
	TradesClosed    int                       `json:"trades_closed"`
	TradesCanceled  int64                     `json:"trades_canceled"`
	WinningTrades   int                       `json:"winning_trades"`
	WinRate         float64                   `json:"win_rate"`
	RealizedPnL     decimal.Decimal           `json:"realized_pnl"`
	SignalFrequency float64                   `json:"signal_frequency"` // 信号/小时
	SymbolStats     map[string]*SymbolMetrics `json:"symbol_stats"`
	LastUpdateTime  time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单个交易对的性能指标
type SymbolMetrics struct {
	Symbol         string          `json:"symbol"`
	Trend          string          `json:"trend"`
	ProcessedBars  int64           `json:"processed_bars"`
	Signals        int64           `json:"signals"`
	ActiveTrades   int             `json:"active_trades"`
	ClosedTrades   int             `json:"closed_trades"`
	WinningTrades  int             `json:"winning_trades"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	LastExitTime   time.Time       `json:"last_exit_time"`
	LastExitReason string          `json:"last_exit_reason"`
}

// NewPerformanceMonitor 创建性能监控器，store 可为空
func NewPerformanceMonitor(source SnapshotSource, store DailyStore) *PerformanceMonitor {
	now := time.Now()
	return &PerformanceMonitor{
		source:         source,
		store:          store,
		startTime:      now,
		updateInterval: 30 * time.Second,
		reportInterval: 5 * time.Minute,
		metrics: &PerformanceMetrics{
			StartTime:   now,
			RealizedPnL: decimal.Zero,
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
}

// Start 启动性能监控
func (pm *PerformanceMonitor) Start(ctx context.Context) {
	pm.ctx, pm.cancel = context.WithCancel(ctx)

	zap.L().Info("📊 启动策略性能监控器")

	go pm.monitorLoop()
	go pm.reportLoop()
}

// monitorLoop 监控循环
func (pm *PerformanceMonitor) monitorLoop() {
	ticker := time.NewTicker(pm.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.updateMetrics()
		}
	}
}

// reportLoop 报告循环
func (pm *PerformanceMonitor) reportLoop() {
	ticker := time.NewTicker(pm.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.generateReport()
		}
	}
}

// updateMetrics 从引擎快照重新汇总指标
func (pm *PerformanceMonitor) updateMetrics() {
	metrics := Aggregate(pm.source.Snapshots(), pm.startTime, time.Now())

	pm.mu.Lock()
	pm.metrics = metrics
	pm.mu.Unlock()
}

// Aggregate 汇总多个交易对的快照
func Aggregate(snapshots []engine.Snapshot, start, now time.Time) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		StartTime:      start,
		RealizedPnL:    decimal.Zero,
		SymbolStats:    make(map[string]*SymbolMetrics, len(snapshots)),
		LastUpdateTime: now,
	}

	for _, snap := range snapshots {
		sm := &SymbolMetrics{
			Symbol:        snap.Symbol,
			Trend:         snap.Trend.String(),
			ProcessedBars: snap.Stats.ProcessedBars,
			Signals:       snap.Stats.Signals,
			ActiveTrades:  len(snap.ActiveTrades),
			RealizedPnL:   decimal.Zero,
		}

		for _, trade := range snap.History {
			if trade.State != types.TradeClosed {
				continue
			}
			sm.ClosedTrades++
			pnl := decimal.NewFromFloat(trade.PnL)
			sm.RealizedPnL = sm.RealizedPnL.Add(pnl)
			if pnl.IsPositive() {
				sm.WinningTrades++
			}
			if trade.ExitTime.After(sm.LastExitTime) {
				sm.LastExitTime = trade.ExitTime
				sm.LastExitReason = trade.ExitReason.String()
			}
		}

		metrics.SymbolStats[snap.Symbol] = sm
		metrics.ProcessedBars += snap.Stats.ProcessedBars
		metrics.TotalSignals += snap.Stats.Signals
		metrics.CounterTrend += snap.Stats.CounterTrend
		metrics.TradesOpened += snap.Stats.TradesOpened
		metrics.TradesCanceled += snap.Stats.TradesCanceled
		metrics.TradesClosed += sm.ClosedTrades
		metrics.WinningTrades += sm.WinningTrades
		metrics.RealizedPnL = metrics.RealizedPnL.Add(sm.RealizedPnL)
	}

	if metrics.TradesClosed > 0 {
		metrics.WinRate, _ = decimal.NewFromInt(int64(metrics.WinningTrades)).
			Div(decimal.NewFromInt(int64(metrics.TradesClosed))).
			Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}

	// 计算信号频率（信号/小时）
	if runTime := now.Sub(start).Hours(); runTime > 0 {
		metrics.SignalFrequency = float64(metrics.TotalSignals) / runTime
	}

	return metrics
}

// generateReport 生成性能报告
func (pm *PerformanceMonitor) generateReport() {
	metrics := pm.GetMetrics()
	runTime := time.Since(metrics.StartTime)

	zap.L().Info("📈 策略性能报告",
		zap.Duration("run_time", runTime),
		zap.Int64("processed_bars", metrics.ProcessedBars),
		zap.Int64("total_signals", metrics.TotalSignals),
		zap.Int64("counter_trend", metrics.CounterTrend),
		zap.Int("trades_closed", metrics.TradesClosed),
		zap.Float64("win_rate", metrics.WinRate),
		zap.String("realized_pnl", metrics.RealizedPnL.StringFixed(4)),
		zap.Float64("signal_frequency", metrics.SignalFrequency))

	// 输出各交易对的详细报告
	for _, symbol := range sortedSymbols(metrics) {
		sm := metrics.SymbolStats[symbol]
		if sm.Signals == 0 {
			continue
		}
		zap.L().Info("📊 交易对性能",
			zap.String("symbol", symbol),
			zap.String("trend", sm.Trend),
			zap.Int64("signals", sm.Signals),
			zap.Int("active_trades", sm.ActiveTrades),
			zap.Int("closed_trades", sm.ClosedTrades),
			zap.Int("winning_trades", sm.WinningTrades),
			zap.String("realized_pnl", sm.RealizedPnL.StringFixed(4)))
	}
}

// GetMetrics 获取当前性能指标
func (pm *PerformanceMonitor) GetMetrics() *PerformanceMetrics {
	pm.updateMetrics()

	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.metrics
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON() (string, error) {
	data, err := json.MarshalIndent(pm.GetMetrics(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DailyReport 日报告
type DailyReport struct {
	Symbol        string    `json:"symbol"`
	Date          time.Time `json:"date"`
	TotalSignals  int       `json:"total_signals"`
	LongSignals   int       `json:"long_signals"`
	ShortSignals  int       `json:"short_signals"`
	ClosedTrades  int       `json:"closed_trades"`
	WinningTrades int       `json:"winning_trades"`
	RealizedPnL   float64   `json:"realized_pnl"`
	LongRatio     float64   `json:"long_ratio"`
	WinRate       float64   `json:"win_rate"`
}

// GetDailyReport 获取日报告
func (pm *PerformanceMonitor) GetDailyReport(symbol string) (*DailyReport, error) {
	if pm.store == nil {
		return nil, fmt.Errorf("未启用数据库，无法生成日报")
	}

	performances, err := pm.store.GetStrategyPerformance(symbol, 1)
	if err != nil {
		return nil, err
	}

	if len(performances) == 0 {
		return &DailyReport{
			Symbol: symbol,
			Date:   time.Now().UTC().Truncate(24 * time.Hour),
		}, nil
	}

	perf := performances[0]
	report := &DailyReport{
		Symbol:        symbol,
		Date:          perf.Date,
		TotalSignals:  perf.TotalSignals,
		LongSignals:   perf.LongSignals,
		ShortSignals:  perf.ShortSignals,
		ClosedTrades:  perf.ClosedTrades,
		WinningTrades: perf.WinningTrades,
		RealizedPnL:   perf.RealizedPnL,
	}

	if report.TotalSignals > 0 {
		report.LongRatio = float64(report.LongSignals) / float64(report.TotalSignals) * 100
	}
	if report.ClosedTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.ClosedTrades) * 100
	}

	return report, nil
}

// PrintFormattedReport 打印格式化报告
func (pm *PerformanceMonitor) PrintFormattedReport() {
	metrics := pm.GetMetrics()
	runTime := time.Since(metrics.StartTime)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("📈 价格行为策略性能报告")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("🕐 运行时间: %s\n", runTime.Truncate(time.Second))
	fmt.Printf("📊 处理K线: %d\n", metrics.ProcessedBars)
	fmt.Printf("🎯 总信号数: %d (逆势 %d)\n", metrics.TotalSignals, metrics.CounterTrend)
	fmt.Printf("💼 开仓/平仓/撤销: %d / %d / %d\n", metrics.TradesOpened, metrics.TradesClosed, metrics.TradesCanceled)
	fmt.Printf("⭐ 胜率: %.2f%%\n", metrics.WinRate)
	fmt.Printf("💰 已实现盈亏: %s\n", metrics.RealizedPnL.StringFixed(4))
	fmt.Printf("🔄 信号频率: %.2f信号/小时\n", metrics.SignalFrequency)
	fmt.Println(strings.Repeat("-", 80))

	for _, symbol := range sortedSymbols(metrics) {
		sm := metrics.SymbolStats[symbol]
		fmt.Printf("💹 %s [%s]: %d信号 %d持仓 %d平仓 盈亏 %s\n",
			symbol, sm.Trend, sm.Signals, sm.ActiveTrades, sm.ClosedTrades, sm.RealizedPnL.StringFixed(4))
	}

	fmt.Println(strings.Repeat("=", 80) + "\n")
}

// Stop 停止性能监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止策略性能监控器")
	if pm.cancel != nil {
		pm.cancel()
	}
}

func sortedSymbols(metrics *PerformanceMetrics) []string {
	symbols := make([]string, 0, len(metrics.SymbolStats))
	for symbol := range metrics.SymbolStats {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
