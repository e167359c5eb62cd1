package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"price-action-sentry/internal/broker"
	"price-action-sentry/internal/strategy/engine"
	"price-action-sentry/internal/strategy/patterns"
	"price-action-sentry/pkg/types"
)

// EquityPoint 某根K线收盘后的账户权益
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result 回测结果
type Result struct {
	Symbol          string          `json:"symbol"`
	Bars            int             `json:"bars"`
	InitialCash     float64         `json:"initial_cash"`
	FinalValue      float64         `json:"final_value"`
	ReturnPct       float64         `json:"return_pct"`
	NetPnL          float64         `json:"net_pnl"`
	TotalCommission float64         `json:"total_commission"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	LosingTrades    int             `json:"losing_trades"`
	CanceledTrades  int             `json:"canceled_trades"`
	OpenTrades      int             `json:"open_trades"`
	WinRate         float64         `json:"win_rate"`
	MaxDrawdown     float64         `json:"max_drawdown"`
	Trades          []types.Trade   `json:"trades"`
	EquityCurve     []EquityPoint   `json:"equity_curve"`
	Final           engine.Snapshot `json:"final"`
	PatternCounts   map[string]int  `json:"pattern_counts"`
	Signals         []types.Signal  `json:"signals"`
}

// Runner 回测执行器
type Runner struct {
	strategy types.PriceActionConfig
	config   types.BacktestConfig
	hooks    engine.Hooks
}

// NewRunner 创建回测执行器，hooks 会在策略引擎的事件上额外回调
func NewRunner(strategy types.PriceActionConfig, config types.BacktestConfig, hooks engine.Hooks) *Runner {
	return &Runner{
		strategy: strategy,
		config:   config,
		hooks:    hooks,
	}
}

// Run 逐根K线回放：先撮合上一根K线发出的订单，再让策略处理当前K线
func (r *Runner) Run(ctx context.Context, symbol string, bars []types.Bar) (*Result, error) {
	if err := types.BarSeries(bars).Validate(); err != nil {
		return nil, err
	}

	simBroker := broker.NewSimulatedBroker(r.config.InitialCash, r.config.Commission)

	result := &Result{
		Symbol:      symbol,
		Bars:        len(bars),
		InitialCash: r.config.InitialCash,
		EquityCurve: make([]EquityPoint, 0, len(bars)),
	}

	hooks := r.hooks
	userOnSignal := hooks.OnSignal
	hooks.OnSignal = func(sig types.Signal) {
		result.Signals = append(result.Signals, sig)
		if userOnSignal != nil {
			userOnSignal(sig)
		}
	}

	strategyEngine, err := engine.New(r.strategy, simBroker, engine.WithSymbol(symbol), engine.WithHooks(hooks))
	if err != nil {
		return nil, err
	}

	zap.L().Info("🧪 开始回测",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Float64("initial_cash", r.config.InitialCash),
		zap.Float64("commission", r.config.Commission))

	for i, bar := range bars {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		simBroker.ProcessBar(bar, strategyEngine)
		intents := strategyEngine.OnBar(bar)
		simBroker.Submit(intents)

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Timestamp: bar.Timestamp,
			Equity:    simBroker.PortfolioEquity(),
		})
	}

	result.Final = strategyEngine.Snapshot()
	result.FinalValue = simBroker.PortfolioEquity()
	result.PatternCounts = countPatterns(r.strategy, bars)
	calculateMetrics(result)

	zap.L().Info("✅ 回测完成",
		zap.String("symbol", symbol),
		zap.Float64("final_value", result.FinalValue),
		zap.Float64("return_pct", result.ReturnPct),
		zap.Int("total_trades", result.TotalTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("max_drawdown", result.MaxDrawdown))

	return result, nil
}

// calculateMetrics 计算胜率、收益率与最大回撤
func calculateMetrics(result *Result) {
	netPnL := decimal.Zero
	commission := decimal.Zero

	result.Trades = append(result.Trades, result.Final.History...)
	for _, trade := range result.Final.History {
		if trade.State == types.TradeCanceled {
			result.CanceledTrades++
			continue
		}

		result.TotalTrades++
		net := decimal.NewFromFloat(trade.PnL).Sub(decimal.NewFromFloat(trade.Commission))
		netPnL = netPnL.Add(net)
		commission = commission.Add(decimal.NewFromFloat(trade.Commission))
		if net.IsPositive() {
			result.WinningTrades++
		} else {
			result.LosingTrades++
		}
	}
	result.OpenTrades = len(result.Final.ActiveTrades)

	result.NetPnL, _ = netPnL.Float64()
	result.TotalCommission, _ = commission.Float64()

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if result.InitialCash > 0 {
		ret := decimal.NewFromFloat(result.FinalValue).Sub(decimal.NewFromFloat(result.InitialCash)).
			Div(decimal.NewFromFloat(result.InitialCash)).Mul(decimal.NewFromInt(100))
		result.ReturnPct, _ = ret.Float64()
	}
	result.MaxDrawdown = maxDrawdown(result.EquityCurve)
}

// maxDrawdown 权益曲线最大回撤百分比
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	drawdown := 0.0
	peak := curve[0].Equity
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - point.Equity) / peak * 100; dd > drawdown {
			drawdown = dd
		}
	}
	return drawdown
}

// countPatterns 全量扫描形态出现次数
func countPatterns(cfg types.PriceActionConfig, bars []types.Bar) map[string]int {
	detector := patterns.NewDetectorFromConfig(cfg)
	counts := make(map[string]int)
	for kind, matches := range detector.ScanPatterns(bars, nil) {
		counts[kind.String()] = len(matches)
	}
	return counts
}

// ExportCSV 导出交易明细
func ExportCSV(path string, result *Result) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建导出文件失败: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"trade_id", "symbol", "side", "state", "entry_time", "entry_price", "size",
		"stop_loss", "take_profit", "exit_time", "exit_price", "exit_reason", "pnl", "commission", "counter_trend"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("写入表头失败: %v", err)
	}

	for _, trade := range result.Trades {
		exitTime := ""
		if !trade.ExitTime.IsZero() {
			exitTime = trade.ExitTime.Format(time.RFC3339)
		}
		record := []string{
			trade.ID,
			trade.Symbol,
			trade.Side.String(),
			trade.State.String(),
			trade.EntryTime.Format(time.RFC3339),
			formatFloat(trade.EntryPrice),
			formatFloat(trade.Size),
			formatFloat(trade.StopLoss),
			formatFloat(trade.TakeProfit),
			exitTime,
			formatFloat(trade.ExitPrice),
			trade.ExitReason.String(),
			formatFloat(trade.PnL),
			formatFloat(trade.Commission),
			strconv.FormatBool(trade.CounterTrend),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入交易记录失败: %v", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
