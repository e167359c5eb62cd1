package types

import (
	"fmt"
	"time"
)

// StrategyConfig 策略配置总入口
type StrategyConfig struct {
	PriceAction PriceActionConfig `mapstructure:"price_action"`
}

// PriceActionConfig 价格行为策略配置，加载后不再修改
type PriceActionConfig struct {
	// 市场结构
	SwingLookback               int     `mapstructure:"swing_lookback"`                 // 摆动点左右窗口，默认5
	ATRSwingThresholdMultiplier float64 `mapstructure:"atr_swing_threshold_multiplier"` // 摆动点最小间距(ATR倍数)，默认1.0
	TrendStrengthThreshold      float64 `mapstructure:"trend_strength_threshold"`       // 趋势确认比例，(0,1]，默认0.66

	// 供需区域
	ZoneBufferATRMult     float64 `mapstructure:"zone_buffer_atr_mult"`    // 区域半宽(ATR倍数)，默认1.0
	MaxZonesToTrack       int     `mapstructure:"max_zones_to_track"`      // 每侧最多跟踪区域数，默认3
	ZoneStrengthThreshold float64 `mapstructure:"zone_strength_threshold"` // 区域最低强度，默认0.5

	// K线形态
	EngulfingThreshold         float64  `mapstructure:"engulfing_threshold"`          // 吞没容差比例，默认0.01
	MinBodySizeRatio           float64  `mapstructure:"min_body_size_ratio"`          // >=0.7 时锤子线/流星线要求极小实体，默认0.6
	RequirePatternConfirmation bool     `mapstructure:"require_pattern_confirmation"` // 是否需要形态确认，默认true
	AllowedPatterns            []string `mapstructure:"allowed_patterns"`             // 默认 bullish_engulfing, bearish_engulfing

	// 风险控制
	RiskRewardRatio float64 `mapstructure:"risk_reward_ratio"`  // 盈亏比，默认2.0
	StopLossATRMult float64 `mapstructure:"stop_loss_atr_mult"` // 止损ATR倍数，默认2.0
	MaxRiskPerTrade float64 `mapstructure:"max_risk_per_trade"` // 单笔风险占权益比例，默认0.02
	ATRPeriod       int     `mapstructure:"atr_period"`         // ATR周期，默认14

	// 交易管理
	MaxConcurrentTrades      int `mapstructure:"max_concurrent_trades"`      // 最大并发交易数，默认2
	ZoneRetestLookback       int `mapstructure:"zone_retest_lookback"`       // 默认20，决定K线缓冲区大小
	StructureUpdateFrequency int `mapstructure:"structure_update_frequency"` // 结构刷新间隔(K线数)，默认10
}

// DefaultPriceActionConfig 默认策略参数
func DefaultPriceActionConfig() PriceActionConfig {
	return PriceActionConfig{
		SwingLookback:               5,
		ATRSwingThresholdMultiplier: 1.0,
		TrendStrengthThreshold:      0.66,
		ZoneBufferATRMult:           1.0,
		MaxZonesToTrack:             3,
		ZoneStrengthThreshold:       0.5,
		EngulfingThreshold:          0.01,
		MinBodySizeRatio:            0.6,
		RequirePatternConfirmation:  true,
		AllowedPatterns:             []string{"bullish_engulfing", "bearish_engulfing"},
		RiskRewardRatio:             2.0,
		StopLossATRMult:             2.0,
		MaxRiskPerTrade:             0.02,
		ATRPeriod:                   14,
		MaxConcurrentTrades:         2,
		ZoneRetestLookback:          20,
		StructureUpdateFrequency:    10,
	}
}

// PatternAllowed 形态是否在允许列表中
func (c PriceActionConfig) PatternAllowed(kind PatternKind) bool {
	for _, name := range c.AllowedPatterns {
		if k, err := ParsePatternKind(name); err == nil && k == kind {
			return true
		}
	}
	return false
}

// Signal 区域回踩+形态确认后产生的交易信号
type Signal struct {
	Symbol       string    `json:"symbol"`
	TradeID      string    `json:"trade_id"`
	Side         TradeSide `json:"side"`
	Price        float64   `json:"price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	StopDistance float64   `json:"stop_distance"`
	Size         float64   `json:"size"`
	ATR          float64   `json:"atr"`
	Trend        Trend     `json:"trend"`
	Zone         Zone      `json:"zone"`
	Pattern      string    `json:"pattern,omitempty"` // 未要求确认时为空
	CounterTrend bool      `json:"counter_trend"`
	BarIndex     int       `json:"bar_index"`
	SignalTime   time.Time `json:"signal_time"`
}

// Validate 校验策略参数，非法时返回 ErrInvalidConfiguration
func (c PriceActionConfig) Validate() error {
	switch {
	case c.TrendStrengthThreshold <= 0 || c.TrendStrengthThreshold > 1:
		return fmt.Errorf("%w: trend_strength_threshold 必须在(0,1]内, 当前%.4f", ErrInvalidConfiguration, c.TrendStrengthThreshold)
	case c.SwingLookback < 1:
		return fmt.Errorf("%w: swing_lookback 必须>=1, 当前%d", ErrInvalidConfiguration, c.SwingLookback)
	case c.ATRPeriod < 1:
		return fmt.Errorf("%w: atr_period 必须>=1, 当前%d", ErrInvalidConfiguration, c.ATRPeriod)
	case c.ATRSwingThresholdMultiplier < 0:
		return fmt.Errorf("%w: atr_swing_threshold_multiplier 不能为负", ErrInvalidConfiguration)
	case c.ZoneBufferATRMult <= 0:
		return fmt.Errorf("%w: zone_buffer_atr_mult 必须>0", ErrInvalidConfiguration)
	case c.MaxZonesToTrack < 1:
		return fmt.Errorf("%w: max_zones_to_track 必须>=1", ErrInvalidConfiguration)
	case c.ZoneStrengthThreshold < 0 || c.ZoneStrengthThreshold > 1:
		return fmt.Errorf("%w: zone_strength_threshold 必须在[0,1]内", ErrInvalidConfiguration)
	case c.EngulfingThreshold < 0:
		return fmt.Errorf("%w: engulfing_threshold 不能为负", ErrInvalidConfiguration)
	case c.RiskRewardRatio <= 0:
		return fmt.Errorf("%w: risk_reward_ratio 必须>0", ErrInvalidConfiguration)
	case c.StopLossATRMult < 0:
		return fmt.Errorf("%w: stop_loss_atr_mult 不能为负", ErrInvalidConfiguration)
	case c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > 1:
		return fmt.Errorf("%w: max_risk_per_trade 必须在(0,1]内, 当前%.4f", ErrInvalidConfiguration, c.MaxRiskPerTrade)
	case c.MaxConcurrentTrades < 1:
		return fmt.Errorf("%w: max_concurrent_trades 必须>=1", ErrInvalidConfiguration)
	case c.ZoneRetestLookback < 0:
		return fmt.Errorf("%w: zone_retest_lookback 不能为负", ErrInvalidConfiguration)
	case c.StructureUpdateFrequency < 1:
		return fmt.Errorf("%w: structure_update_frequency 必须>=1", ErrInvalidConfiguration)
	}

	for _, name := range c.AllowedPatterns {
		if _, err := ParsePatternKind(name); err != nil {
			return fmt.Errorf("%w: allowed_patterns %v", ErrInvalidConfiguration, err)
		}
	}
	return nil
}
