package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/internal/analyzer"
	"price-action-sentry/internal/api"
	"price-action-sentry/internal/backtest"
	"price-action-sentry/internal/notifier"
	"price-action-sentry/internal/scheduler"
	"price-action-sentry/internal/storage"
	"price-action-sentry/internal/strategy/database"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/internal/strategy/fetcher"
	"price-action-sentry/internal/strategy/live"
	"price-action-sentry/internal/strategy/monitor"
	"price-action-sentry/internal/strategy/websocket"
	"price-action-sentry/pkg/types"
)

const (
	reportTTL   = 24 * time.Hour
	snapshotTTL = 24 * time.Hour
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 按启动顺序登记，关闭时逆序执行
	closers []func()
}

// NewApp 创建应用程序实例
func NewApp(config *types.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OneShot 是否为执行一次即退出的模式
func (app *App) OneShot() bool {
	return app.config.Mode == "analyze" || app.config.Mode == "backtest"
}

// RunOnce 执行 analyze 或 backtest
func (app *App) RunOnce() error {
	defer app.close()

	switch app.config.Mode {
	case "analyze":
		return app.runAnalyze()
	case "backtest":
		return app.runBacktest()
	default:
		return fmt.Errorf("%w: %s 不是一次性模式", types.ErrInvalidConfiguration, app.config.Mode)
	}
}

// Start 启动常驻模式
func (app *App) Start() error {
	zap.L().Info("🚀 Price Action Sentry 启动中...", zap.String("mode", app.config.Mode))

	var err error
	switch app.config.Mode {
	case "watch":
		err = app.startWatch()
	case "live":
		err = app.startLive()
	default:
		err = fmt.Errorf("%w: %s 不是常驻模式", types.ErrInvalidConfiguration, app.config.Mode)
	}
	if err != nil {
		app.cancel()
		app.close()
		return err
	}

	zap.L().Info("✅ Price Action Sentry 已启动")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ Price Action Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	app.close()
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

func (app *App) onClose(fn func()) {
	app.closers = append(app.closers, fn)
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
}

// barSource 根据配置选择行情来源
func (app *App) barSource() fetcher.BarSource {
	if app.config.Market.Source == "csv" {
		return fetcher.NewCSVLoader(app.config.Market.CSVPath)
	}
	return fetcher.NewHistoryKlineFetcher(app.config.Network)
}

// symbols CSV模式未指定交易对时以文件名代替
func (app *App) symbols() []string {
	if len(app.config.Market.Symbols) > 0 {
		return app.config.Market.Symbols
	}
	name := filepath.Base(app.config.Market.CSVPath)
	return []string{strings.TrimSuffix(name, filepath.Ext(name))}
}

func (app *App) newReportCache() *storage.StateManager {
	cache := storage.NewStateManager("analysis", reportTTL, app.config.Redis)
	app.onClose(func() {
		if err := cache.Close(); err != nil {
			zap.L().Warn("关闭缓存失败", zap.Error(err))
		}
	})
	return cache
}

// runAnalyze 一次性分析所有交易对并推送报告
func (app *App) runAnalyze() error {
	analysisEngine := analyzer.NewAnalysisEngine(
		app.barSource(),
		app.newReportCache(),
		notifier.New(app.config.DingTalk, app.config.PushPlus),
		app.config.Strategy.PriceAction,
		app.config.Market,
	)

	reports := analysisEngine.Run(app.ctx, app.symbols())
	failed := 0
	for _, report := range reports {
		if report.Error != "" {
			failed++
		}
	}
	if len(reports) > 0 && failed == len(reports) {
		return fmt.Errorf("%w: 所有交易对分析均失败", types.ErrInsufficientData)
	}
	return nil
}

// runBacktest 对每个交易对执行回测并输出结果
func (app *App) runBacktest() error {
	source := app.barSource()
	symbols := app.symbols()
	market := app.config.Market

	for _, symbol := range symbols {
		bars, err := source.FetchBars(app.ctx, symbol, market.Interval, market.Limit)
		if err != nil {
			return fmt.Errorf("获取%s行情失败: %w", symbol, err)
		}

		runner := backtest.NewRunner(app.config.Strategy.PriceAction, app.config.Backtest, engine.Hooks{})
		result, err := runner.Run(app.ctx, symbol, bars)
		if err != nil {
			return err
		}
		printBacktestResult(result)

		if path := exportPath(app.config.Backtest.ExportPath, symbol, len(symbols) > 1); path != "" {
			if err := backtest.ExportCSV(path, result); err != nil {
				return err
			}
			zap.L().Info("💾 交易明细已导出", zap.String("path", path))
		}
	}
	return nil
}

// startWatch 按K线周期定时分析，只推送新出现的入场条件
func (app *App) startWatch() error {
	interval := app.config.Market.Watch
	if interval <= 0 {
		d, err := scheduler.BarDuration(app.config.Market.Interval)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidConfiguration, err)
		}
		interval = d
	}

	cache := app.newReportCache()
	analysisEngine := analyzer.NewAnalysisEngine(
		app.barSource(),
		cache,
		notifier.New(app.config.DingTalk, app.config.PushPlus),
		app.config.Strategy.PriceAction,
		app.config.Market,
	).SetupsOnly()

	symbols := app.symbols()
	taskScheduler := scheduler.NewScheduler("price-action-watch", interval, func(ctx context.Context) {
		analysisEngine.Run(ctx, symbols)
	})

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		taskScheduler.Start(app.ctx)
	}()

	if app.config.API.Enabled {
		app.startAPI(api.NewServer(app.config.API, nil, nil, cache))
	}
	return nil
}

// startLive 启动实时纸面交易引擎
func (app *App) startLive() error {
	zap.L().Info("📈 启动价格行为实时引擎")

	wsClient := websocket.NewClient(app.ctx, app.config.Network.Proxy, app.config.WebSocket)
	snapshotCache := storage.NewStateManager("snapshot", snapshotTTL, app.config.Redis)
	app.onClose(func() { snapshotCache.Close() })

	deps := live.Dependencies{
		History:  fetcher.NewHistoryKlineFetcher(app.config.Network),
		Feed:     wsClient,
		Cache:    snapshotCache,
		Notifier: notifier.New(app.config.DingTalk, app.config.PushPlus),
	}

	// MySQL 可选，连接失败只记日志
	var dailyStore monitor.DailyStore
	if app.config.Database.MySQL.Host != "" {
		dbManager, err := database.NewManager(app.config.Database.MySQL)
		if err != nil {
			zap.L().Warn("⚠️ MySQL不可用，交易日志不落库", zap.Error(err))
		} else {
			deps.Journal = dbManager
			dailyStore = dbManager
		}
	}

	liveEngine, err := live.NewEngine(app.config.Market, app.config.Strategy.PriceAction, app.config.Backtest, deps)
	if err != nil {
		return err
	}
	if err := liveEngine.Start(app.ctx); err != nil {
		wsClient.Close()
		return err
	}
	app.onClose(func() {
		if err := liveEngine.Stop(); err != nil {
			zap.L().Error("❌ 停止实时引擎失败", zap.Error(err))
		}
	})

	performanceMonitor := monitor.NewPerformanceMonitor(liveEngine, dailyStore)
	performanceMonitor.Start(app.ctx)
	app.onClose(performanceMonitor.Stop)

	if app.config.API.Enabled {
		app.startAPI(api.NewServer(app.config.API, liveEngine, performanceMonitor, nil))
	}
	return nil
}

func (app *App) startAPI(server *api.Server) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := server.Start(); err != nil {
			zap.L().Error("❌ 状态接口异常退出", zap.Error(err))
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		<-app.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			zap.L().Warn("关闭状态接口失败", zap.Error(err))
		}
	}()
}

// exportPath 多个交易对时在文件名后追加交易对
func exportPath(path, symbol string, multi bool) string {
	if path == "" || !multi {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + symbol + ext
}

func printBacktestResult(result *backtest.Result) {
	zap.L().Info("📋 回测结果",
		zap.String("symbol", result.Symbol),
		zap.Int("bars", result.Bars),
		zap.Float64("initial_cash", result.InitialCash),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("return_pct", result.ReturnPct),
		zap.Float64("net_pnl", result.NetPnL),
		zap.Float64("commission", result.TotalCommission),
		zap.Int("total_trades", result.TotalTrades),
		zap.Int("won", result.WinningTrades),
		zap.Int("lost", result.LosingTrades),
		zap.Int("canceled", result.CanceledTrades),
		zap.Int("open", result.OpenTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("max_drawdown", result.MaxDrawdown),
		zap.Any("patterns", result.PatternCounts))
}
