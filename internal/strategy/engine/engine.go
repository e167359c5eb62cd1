package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"price-action-sentry/internal/scheduler"
	"price-action-sentry/internal/strategy/indicators"
	"price-action-sentry/internal/strategy/risk"
	"price-action-sentry/internal/strategy/signals"
	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

const (
	// minBufferSize K线缓冲区最小容量
	minBufferSize = 50
	// warmupBars 开始交易前至少需要的K线数
	warmupBars = 20
)

// State 引擎状态
type State int

const (
	StateWarmingUp State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "ACTIVE"
	}
	return "WARMING_UP"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Account 执行方提供的资金查询，下单定仓时同步调用
type Account interface {
	PortfolioEquity() float64
	AvailableCash() float64
}

// Hooks 事件回调，在引擎释放锁之后按发生顺序同步调用
type Hooks struct {
	OnStructure   func(symbol string, st structure.Structure)
	OnSignal      func(sig types.Signal)
	OnTradeOpened func(trade types.Trade)
	OnTradeClosed func(trade types.Trade) // 包括开仓被拒而取消的交易
}

// Option 引擎可选项
type Option func(*Engine)

// WithSymbol 设置交易对，仅用于日志和信号标识
func WithSymbol(symbol string) Option {
	return func(e *Engine) {
		e.symbol = symbol
	}
}

// WithHooks 设置事件回调
func WithHooks(hooks Hooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithIDGenerator 替换交易/订单ID生成器
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// Engine 价格行为策略引擎
//
// 每根K线按顺序执行：更新缓冲区 -> 定期刷新市场结构 -> 区域回踩 -> 形态确认 -> 定仓 -> 发出订单。
// OnBar、OnFill、OnReject 各自在同一把锁内完整执行，调用方需按真实时间顺序投递事件。
type Engine struct {
	symbol         string
	config         types.PriceActionConfig
	account        Account
	signalDetector *signals.RetestSignalDetector
	hooks          Hooks
	newID          func() string

	mu                  sync.Mutex
	buffer              []types.Bar
	bufferSize          int
	barCount            int
	lastStructureUpdate int
	structure           structure.Structure
	zones               structure.ZoneSet
	book                *tradeBook
	stats               Stats
}

// Stats 引擎统计
type Stats struct {
	ProcessedBars     int64 `json:"processed_bars"`
	StructureUpdates  int64 `json:"structure_updates"`
	StructureFailures int64 `json:"structure_failures"`
	Signals           int64 `json:"signals"`
	CounterTrend      int64 `json:"counter_trend"`
	SkippedSizing     int64 `json:"skipped_sizing"`
	TradesOpened      int64 `json:"trades_opened"`
	TradesClosed      int64 `json:"trades_closed"`
	TradesCanceled    int64 `json:"trades_canceled"`
}

// New 创建策略引擎，配置非法时返回 ErrInvalidConfiguration
func New(config types.PriceActionConfig, account Account, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: 缺少资金账户", types.ErrInvalidConfiguration)
	}

	bufferSize := config.ZoneRetestLookback + 10
	if bufferSize < minBufferSize {
		bufferSize = minBufferSize
	}

	e := &Engine{
		config:         config,
		account:        account,
		signalDetector: signals.NewRetestSignalDetector(config),
		newID:          uuid.NewString,
		buffer:         make([]types.Bar, 0, bufferSize),
		bufferSize:     bufferSize,
		structure:      structure.Structure{Trend: types.TrendUnknown},
		book:           newTradeBook(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// OnBar 处理一根已收盘的K线，返回本根K线发出的订单意图（入场、止损、止盈）
func (e *Engine) OnBar(bar types.Bar) []types.OrderIntent {
	e.mu.Lock()
	intents, events := e.step(bar)
	e.mu.Unlock()

	runEvents(events)
	return intents
}

// step 单根K线的完整处理流程，调用方持有锁
func (e *Engine) step(bar types.Bar) ([]types.OrderIntent, []func()) {
	var events []func()

	// 1. 更新K线缓冲区
	e.buffer = append(e.buffer, bar)
	if len(e.buffer) > e.bufferSize {
		e.buffer = append(e.buffer[:0], e.buffer[len(e.buffer)-e.bufferSize:]...)
	}
	e.barCount++
	e.stats.ProcessedBars++

	// 2. 定期刷新市场结构
	if scheduler.ShouldRefresh(e.barCount, e.lastStructureUpdate, e.config.StructureUpdateFrequency) && len(e.buffer) >= warmupBars {
		if st, err := e.refreshStructure(); err != nil {
			e.stats.StructureFailures++
			zap.L().Warn("⚠️ 市场结构刷新失败，沿用上一次结果",
				zap.String("symbol", e.symbol),
				zap.Int("bar", e.barCount),
				zap.Error(err))
		} else if e.hooks.OnStructure != nil {
			hook := e.hooks.OnStructure
			symbol := e.symbol
			events = append(events, func() { hook(symbol, st) })
		}
		e.lastStructureUpdate = e.barCount
	}

	// 3. 预热中或已达最大并发交易数
	if len(e.buffer) < warmupBars || e.book.activeCount() >= e.config.MaxConcurrentTrades {
		return nil, events
	}

	// 4-6. 区域回踩、形态确认、趋势方向标记
	candidate := e.signalDetector.DetectSignal(e.symbol, e.buffer, e.structure.Trend, e.zones)
	if candidate == nil {
		return nil, events
	}

	// 7. 定仓
	atr := indicators.CalculateATR(e.buffer, e.config.ATRPeriod)
	levels := risk.CalculateLevels(candidate.Side, bar.Close, candidate.Zone, atr, e.config.StopLossATRMult, e.config.RiskRewardRatio)
	size := risk.PositionSize(e.account.PortfolioEquity(), e.account.AvailableCash(), bar.Close, levels.StopDistance, e.config.MaxRiskPerTrade)
	if size <= 0 {
		e.stats.SkippedSizing++
		zap.L().Debug("仓位过小，放弃本次信号",
			zap.String("symbol", e.symbol),
			zap.Float64("stop_distance", levels.StopDistance),
			zap.Error(types.ErrSizing))
		return nil, events
	}

	// 8. 发出入场单及配对的止损止盈单
	trade, intents := e.newTrade(bar, candidate, levels, size)
	e.book.add(trade, intents)
	e.stats.Signals++
	if candidate.CounterTrend {
		e.stats.CounterTrend++
	}

	signal := types.Signal{
		Symbol:       e.symbol,
		TradeID:      trade.ID,
		Side:         candidate.Side,
		Price:        bar.Close,
		StopLoss:     levels.StopLoss,
		TakeProfit:   levels.TakeProfit,
		StopDistance: levels.StopDistance,
		Size:         size,
		ATR:          atr,
		Trend:        e.structure.Trend,
		Zone:         candidate.Zone,
		Pattern:      candidate.Pattern,
		CounterTrend: candidate.CounterTrend,
		BarIndex:     trade.EntryIndex,
		SignalTime:   bar.Timestamp,
	}

	zap.L().Info("🎯 区域回踩信号",
		zap.String("symbol", e.symbol),
		zap.String("side", signal.Side.String()),
		zap.String("zone", candidate.Zone.Side.String()),
		zap.Float64("zone_strength", candidate.Zone.Strength),
		zap.Float64("entry", signal.Price),
		zap.Float64("stop", signal.StopLoss),
		zap.Float64("target", signal.TakeProfit),
		zap.Float64("size", size),
		zap.Bool("counter_trend", signal.CounterTrend))

	if e.hooks.OnSignal != nil {
		hook := e.hooks.OnSignal
		events = append(events, func() { hook(signal) })
	}

	return intents, events
}

// refreshStructure 重新计算趋势与供需区域，失败时保留旧结构
func (e *Engine) refreshStructure() (st structure.Structure, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", types.ErrStructureRefresh, r)
		}
	}()

	st, err = structure.Analyze(e.buffer, e.config)
	if err != nil {
		return structure.Structure{}, err
	}

	e.structure = st
	e.zones = st.Zones.Filter(e.config.ZoneStrengthThreshold, e.config.MaxZonesToTrack)
	e.stats.StructureUpdates++

	zap.L().Debug("📐 市场结构更新",
		zap.String("symbol", e.symbol),
		zap.String("trend", st.Trend.String()),
		zap.Int("supply_zones", len(e.zones.Supply)),
		zap.Int("demand_zones", len(e.zones.Demand)))

	return st, nil
}

// newTrade 创建待成交交易及其三张订单
func (e *Engine) newTrade(bar types.Bar, candidate *signals.Candidate, levels risk.Levels, size float64) (*types.Trade, []types.OrderIntent) {
	trade := &types.Trade{
		ID:           e.newID(),
		Symbol:       e.symbol,
		Side:         candidate.Side,
		State:        types.TradePending,
		EntryPrice:   bar.Close,
		Size:         size,
		StopLoss:     levels.StopLoss,
		TakeProfit:   levels.TakeProfit,
		EntryIndex:   e.barCount - 1,
		EntryTime:    bar.Timestamp,
		CounterTrend: candidate.CounterTrend,
	}

	entry := types.OrderIntent{ID: e.newID(), TradeID: trade.ID, Kind: types.OrderMarket, Side: candidate.Side.EntrySide(),
		Role: types.RoleEntry, Size: size, CreatedAt: bar.Timestamp}
	stop := types.OrderIntent{ID: e.newID(), TradeID: trade.ID, Kind: types.OrderStop, Side: candidate.Side.ExitSide(),
		Role: types.RoleStopLoss, Size: size, Price: levels.StopLoss, CreatedAt: bar.Timestamp}
	target := types.OrderIntent{ID: e.newID(), TradeID: trade.ID, Kind: types.OrderLimit, Side: candidate.Side.ExitSide(),
		Role: types.RoleTakeProfit, Size: size, Price: levels.TakeProfit, CreatedAt: bar.Timestamp}

	trade.EntryOrderID = entry.ID
	trade.StopOrderID = stop.ID
	trade.TargetOrderID = target.ID

	return trade, []types.OrderIntent{entry, stop, target}
}

// OnFill 处理执行方的成交回报
func (e *Engine) OnFill(fill types.Fill) error {
	e.mu.Lock()
	trade, err := e.book.applyFill(fill)
	var events []func()
	if err == nil {
		events = e.tradeEvents(trade)
	}
	e.mu.Unlock()

	if err != nil {
		if errors.Is(err, types.ErrUnknownOrder) {
			zap.L().Debug("忽略未知订单的成交回报", zap.String("order_id", fill.OrderID))
		}
		return err
	}

	runEvents(events)
	return nil
}

// OnReject 处理执行方的拒绝/撤单回报
func (e *Engine) OnReject(rej types.Rejection) error {
	e.mu.Lock()
	trade, finished, err := e.book.applyReject(rej)
	var events []func()
	if err == nil && finished {
		events = e.tradeEvents(trade)
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if !finished && trade.ID != "" {
		zap.L().Warn("⚠️ 订单被拒绝",
			zap.String("symbol", e.symbol),
			zap.String("trade_id", trade.ID),
			zap.String("order_id", rej.OrderID),
			zap.String("reason", rej.Reason))
	}

	runEvents(events)
	return nil
}

// tradeEvents 根据交易状态更新统计并生成回调，调用方持有锁
func (e *Engine) tradeEvents(trade types.Trade) []func() {
	var hook func(types.Trade)

	switch trade.State {
	case types.TradeOpen:
		e.stats.TradesOpened++
		hook = e.hooks.OnTradeOpened
		zap.L().Info("📥 开仓成交",
			zap.String("symbol", e.symbol),
			zap.String("trade_id", trade.ID),
			zap.String("side", trade.Side.String()),
			zap.Float64("price", trade.EntryPrice),
			zap.Float64("size", trade.Size))
	case types.TradeClosed:
		e.stats.TradesClosed++
		hook = e.hooks.OnTradeClosed
		zap.L().Info("📤 平仓成交",
			zap.String("symbol", e.symbol),
			zap.String("trade_id", trade.ID),
			zap.String("reason", trade.ExitReason.String()),
			zap.Float64("exit", trade.ExitPrice),
			zap.Float64("pnl", trade.PnL))
	case types.TradeCanceled:
		e.stats.TradesCanceled++
		hook = e.hooks.OnTradeClosed
		zap.L().Warn("⚠️ 开仓单被拒，交易取消",
			zap.String("symbol", e.symbol),
			zap.String("trade_id", trade.ID))
	}

	if hook == nil {
		return nil
	}
	return []func(){func() { hook(trade) }}
}

func runEvents(events []func()) {
	for _, event := range events {
		event()
	}
}
