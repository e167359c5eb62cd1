package live

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"price-action-sentry/internal/broker"
	"price-action-sentry/internal/notifier"
	"price-action-sentry/internal/strategy/database"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/internal/strategy/fetcher"
	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/internal/strategy/websocket"
	"price-action-sentry/pkg/types"
)

const (
	workerCount   = 5
	persistPeriod = 30 * time.Second
)

// CandleFeed 实时已收盘K线来源
type CandleFeed interface {
	Connect() error
	Subscribe(symbols []string, interval string) error
	StartReading()
	Candles() <-chan websocket.CandleEvent
	IsConnected() bool
	Close() error
}

// Journal 交易日志持久化
type Journal interface {
	BatchSaveBars(symbol, interval string, bars []types.Bar) error
	SaveStructure(record *database.StructureRecord) error
	SaveSignal(signal types.Signal) error
	SaveTrade(trade types.Trade) error
	Close() error
}

// SnapshotCache 快照缓存
type SnapshotCache interface {
	Store(symbol string, value interface{}) error
}

// Dependencies 运行所需的外部组件，Journal/Cache/Notifier 可为空
type Dependencies struct {
	History  fetcher.BarSource
	Feed     CandleFeed
	Journal  Journal
	Cache    SnapshotCache
	Notifier notifier.Interface
}

// symbolRunner 单个交易对的引擎与模拟账户
type symbolRunner struct {
	symbol    string
	engine    *engine.Engine
	broker    *broker.SimulatedBroker
	lastBar   time.Time
	replaying bool
}

// Engine 实时纸面交易引擎：WebSocket收盘K线 -> 按交易对串行处理 -> 模拟撮合
type Engine struct {
	market   types.MarketConfig
	strategy types.PriceActionConfig
	deps     Dependencies

	runners map[string]*symbolRunner

	// 同一交易对固定分配到同一个worker，保证K线顺序
	workerChans []chan websocket.CandleEvent

	// 待持久化的K线
	pendingBars  map[string][]types.Bar
	pendingMutex sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 统计
	processedCandles int64
	droppedCandles   int64
	staleCandles     int64
	statsMutex       sync.RWMutex
}

// NewEngine 为每个交易对创建策略引擎和模拟账户
func NewEngine(market types.MarketConfig, strategy types.PriceActionConfig, backtest types.BacktestConfig, deps Dependencies) (*Engine, error) {
	if deps.Feed == nil || deps.History == nil {
		return nil, fmt.Errorf("%w: 缺少行情来源", types.ErrInvalidConfiguration)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.NewConsoleNotifier()
	}

	le := &Engine{
		market:      market,
		strategy:    strategy,
		deps:        deps,
		runners:     make(map[string]*symbolRunner, len(market.Symbols)),
		pendingBars: make(map[string][]types.Bar),
	}

	for _, symbol := range market.Symbols {
		runner := &symbolRunner{
			symbol: symbol,
			broker: broker.NewSimulatedBroker(backtest.InitialCash, backtest.Commission),
		}
		eng, err := engine.New(strategy, runner.broker,
			engine.WithSymbol(symbol),
			engine.WithHooks(le.hooksFor(runner)))
		if err != nil {
			return nil, err
		}
		runner.engine = eng
		le.runners[symbol] = runner
	}

	return le, nil
}

// hooksFor 引擎事件写入日志并推送通知，历史回放期间不推送
func (le *Engine) hooksFor(runner *symbolRunner) engine.Hooks {
	return engine.Hooks{
		OnStructure: func(symbol string, st structure.Structure) {
			if runner.replaying || le.deps.Journal == nil {
				return
			}
			record := database.NewStructureRecord(symbol, runner.lastBar, st)
			if err := le.deps.Journal.SaveStructure(record); err != nil {
				zap.L().Error("保存市场结构失败", zap.String("symbol", symbol), zap.Error(err))
			}
		},
		OnSignal: func(sig types.Signal) {
			if runner.replaying {
				return
			}
			if le.deps.Journal != nil {
				if err := le.deps.Journal.SaveSignal(sig); err != nil {
					zap.L().Error("保存交易信号失败", zap.String("symbol", sig.Symbol), zap.Error(err))
				}
			}
			if err := le.deps.Notifier.SendSignal(&sig); err != nil {
				zap.L().Error("发送信号通知失败", zap.String("symbol", sig.Symbol), zap.Error(err))
			}
		},
		OnTradeOpened: func(trade types.Trade) {
			le.saveTrade(runner, trade)
		},
		OnTradeClosed: func(trade types.Trade) {
			le.saveTrade(runner, trade)
			if runner.replaying || trade.State != types.TradeClosed {
				return
			}
			if err := le.deps.Notifier.SendTradeClosed(&trade); err != nil {
				zap.L().Error("发送平仓通知失败", zap.String("symbol", trade.Symbol), zap.Error(err))
			}
		},
	}
}

func (le *Engine) saveTrade(runner *symbolRunner, trade types.Trade) {
	if runner.replaying || le.deps.Journal == nil {
		return
	}
	if err := le.deps.Journal.SaveTrade(trade); err != nil {
		zap.L().Error("保存交易记录失败", zap.String("trade_id", trade.ID), zap.Error(err))
	}
}

// Start 回放历史K线后订阅实时数据
func (le *Engine) Start(ctx context.Context) error {
	le.ctx, le.cancel = context.WithCancel(ctx)

	zap.L().Info("🚀 启动价格行为实时引擎",
		zap.Strings("symbols", le.market.Symbols),
		zap.String("interval", le.market.Interval))

	// 1. 初始化历史K线数据
	if err := le.initializeHistoryData(); err != nil {
		return fmt.Errorf("初始化历史数据失败: %w", err)
	}

	// 2. 连接WebSocket
	if err := le.deps.Feed.Connect(); err != nil {
		return err
	}

	// 3. 订阅K线数据
	if err := le.deps.Feed.Subscribe(le.market.Symbols, le.market.Interval); err != nil {
		return err
	}

	// 4. 启动各个处理协程
	le.startWorkers()

	zap.L().Info("✅ 价格行为实时引擎启动成功")
	return nil
}

// startWorkers 启动工作协程
func (le *Engine) startWorkers() {
	le.deps.Feed.StartReading()

	le.workerChans = make([]chan websocket.CandleEvent, workerCount)
	for i := range le.workerChans {
		le.workerChans[i] = make(chan websocket.CandleEvent, 1000)
		le.wg.Add(1)
		go le.candleProcessor(i, le.workerChans[i])
	}

	le.wg.Add(1)
	go le.candleCollector()

	if le.deps.Journal != nil {
		le.wg.Add(1)
		go le.databasePersister()
	}

	le.wg.Add(1)
	go le.performanceMonitor()
}

// candleCollector 按交易对把K线分发给固定worker
func (le *Engine) candleCollector() {
	defer le.wg.Done()

	source := le.deps.Feed.Candles()
	for {
		select {
		case <-le.ctx.Done():
			return
		case event, ok := <-source:
			if !ok {
				return
			}
			if _, known := le.runners[event.Symbol]; !known {
				continue
			}

			select {
			case le.workerChans[workerIndex(event.Symbol)] <- event:
			default:
				le.addStat(&le.droppedCandles)
				zap.L().Warn("K线处理通道满，丢弃数据", zap.String("symbol", event.Symbol))
			}
		}
	}
}

// candleProcessor K线处理器
func (le *Engine) candleProcessor(workerID int, events <-chan websocket.CandleEvent) {
	defer le.wg.Done()

	zap.L().Debug("启动K线处理器", zap.Int("worker_id", workerID))

	for {
		select {
		case <-le.ctx.Done():
			return
		case event := <-events:
			le.processCandle(event)
		}
	}
}

// processCandle 单根K线：先撮合挂单，再交给引擎，最后提交新订单
func (le *Engine) processCandle(event websocket.CandleEvent) bool {
	runner := le.runners[event.Symbol]
	if runner == nil {
		return false
	}

	// 重连后可能重复推送已处理的K线
	if !event.Bar.Timestamp.After(runner.lastBar) {
		le.addStat(&le.staleCandles)
		return false
	}

	le.step(runner, event.Bar)

	le.pendingMutex.Lock()
	le.pendingBars[event.Symbol] = append(le.pendingBars[event.Symbol], event.Bar)
	le.pendingMutex.Unlock()

	if le.deps.Cache != nil {
		if err := le.deps.Cache.Store(event.Symbol, runner.engine.Snapshot()); err != nil {
			zap.L().Warn("缓存快照失败", zap.String("symbol", event.Symbol), zap.Error(err))
		}
	}
	le.addStat(&le.processedCandles)
	return true
}

func (le *Engine) step(runner *symbolRunner, bar types.Bar) {
	runner.lastBar = bar.Timestamp
	runner.broker.ProcessBar(bar, runner.engine)
	intents := runner.engine.OnBar(bar)
	runner.broker.Submit(intents)
}

// databasePersister 定期批量写入K线
func (le *Engine) databasePersister() {
	defer le.wg.Done()

	ticker := time.NewTicker(persistPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-le.ctx.Done():
			le.persistBars()
			return
		case <-ticker.C:
			le.persistBars()
		}
	}
}

// persistBars 持久化缓冲的K线
func (le *Engine) persistBars() {
	le.pendingMutex.Lock()
	pending := le.pendingBars
	le.pendingBars = make(map[string][]types.Bar)
	le.pendingMutex.Unlock()

	for symbol, bars := range pending {
		if err := le.deps.Journal.BatchSaveBars(symbol, le.market.Interval, bars); err != nil {
			zap.L().Error("保存K线数据失败", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// performanceMonitor 性能监控器
func (le *Engine) performanceMonitor() {
	defer le.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-le.ctx.Done():
			return
		case <-ticker.C:
			le.logPerformanceStats()
		}
	}
}

// logPerformanceStats 记录性能统计
func (le *Engine) logPerformanceStats() {
	stats := le.GetStats()
	zap.L().Info("📈 实时引擎性能统计",
		zap.Any("processed_candles", stats["processed_candles"]),
		zap.Any("dropped_candles", stats["dropped_candles"]),
		zap.Any("equity", stats["equity"]),
		zap.Bool("ws_connected", le.deps.Feed.IsConnected()))
}

func (le *Engine) addStat(counter *int64) {
	le.statsMutex.Lock()
	*counter++
	le.statsMutex.Unlock()
}

// Snapshots 所有交易对的引擎快照，按交易对排序
func (le *Engine) Snapshots() []engine.Snapshot {
	snapshots := make([]engine.Snapshot, 0, len(le.runners))
	for _, symbol := range le.Symbols() {
		snapshots = append(snapshots, le.runners[symbol].engine.Snapshot())
	}
	return snapshots
}

// Snapshot 单个交易对的快照
func (le *Engine) Snapshot(symbol string) (engine.Snapshot, bool) {
	runner, ok := le.runners[symbol]
	if !ok {
		return engine.Snapshot{}, false
	}
	return runner.engine.Snapshot(), true
}

// Symbols 已配置的交易对
func (le *Engine) Symbols() []string {
	symbols := make([]string, 0, len(le.runners))
	for symbol := range le.runners {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// GetStats 获取统计信息
func (le *Engine) GetStats() map[string]interface{} {
	le.statsMutex.RLock()
	stats := map[string]interface{}{
		"processed_candles": le.processedCandles,
		"dropped_candles":   le.droppedCandles,
		"stale_candles":     le.staleCandles,
		"symbols":           le.market.Symbols,
		"interval":          le.market.Interval,
	}
	le.statsMutex.RUnlock()

	equity := make(map[string]float64, len(le.runners))
	for symbol, runner := range le.runners {
		equity[symbol] = runner.broker.PortfolioEquity()
	}
	stats["equity"] = equity
	stats["ws_connected"] = le.deps.Feed.IsConnected()
	return stats
}

// Stop 停止实时引擎
func (le *Engine) Stop() error {
	zap.L().Info("🛑 停止价格行为实时引擎")

	if le.cancel != nil {
		le.cancel()
	}

	// 关闭WebSocket连接
	if err := le.deps.Feed.Close(); err != nil {
		zap.L().Error("关闭WebSocket连接失败", zap.Error(err))
	}

	// 等待所有协程结束
	done := make(chan struct{})
	go func() {
		le.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ 所有工作协程已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 停止超时，强制退出")
	}

	if le.deps.Journal != nil {
		if err := le.deps.Journal.Close(); err != nil {
			zap.L().Error("关闭数据库连接失败", zap.Error(err))
		}
	}

	zap.L().Info("✅ 价格行为实时引擎已停止")
	return nil
}

// initializeHistoryData 拉取历史K线并回放，回放期间不推送通知
func (le *Engine) initializeHistoryData() error {
	zap.L().Info("📚 开始初始化历史K线数据",
		zap.Int("limit", le.market.Limit),
		zap.Strings("symbols", le.market.Symbols))

	historyData := fetcher.FetchMultipleSymbolsHistory(le.ctx, le.deps.History, le.market.Symbols, le.market.Interval, le.market.Limit)
	if len(historyData) == 0 && len(le.market.Symbols) > 0 {
		return fmt.Errorf("%w: 所有交易对的历史数据均获取失败", types.ErrInsufficientData)
	}

	totalBars := 0
	for _, symbol := range le.Symbols() {
		bars := historyData[symbol]
		if len(bars) == 0 {
			zap.L().Warn("⚠️ 历史数据为空", zap.String("symbol", symbol))
			continue
		}

		runner := le.runners[symbol]
		runner.replaying = true
		for _, bar := range bars {
			le.step(runner, bar)
		}
		runner.replaying = false
		totalBars += len(bars)

		if le.deps.Journal != nil {
			if err := le.deps.Journal.BatchSaveBars(symbol, le.market.Interval, bars); err != nil {
				zap.L().Error("批量保存历史K线失败", zap.String("symbol", symbol), zap.Error(err))
			}
		}

		snap := runner.engine.Snapshot()
		zap.L().Info("✅ 历史数据初始化完成",
			zap.String("symbol", symbol),
			zap.Int("bars", len(bars)),
			zap.String("trend", snap.Trend.String()),
			zap.Time("oldest", bars[0].Timestamp),
			zap.Time("newest", bars[len(bars)-1].Timestamp))
	}

	zap.L().Info("🎉 所有历史K线数据初始化完成",
		zap.Int("symbols_count", len(historyData)),
		zap.Int("total_bars", totalBars))

	return nil
}

// workerIndex 交易对到worker的固定映射
func workerIndex(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % workerCount)
}
