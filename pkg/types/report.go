package types

import "time"

// MarketReport 单个交易对的一次结构分析结果
type MarketReport struct {
	Symbol        string                 `json:"symbol"`
	Interval      string                 `json:"interval"`
	Bars          int                    `json:"bars"`
	LastClose     float64                `json:"last_close"`
	Trend         Trend                  `json:"trend"`
	ATR           float64                `json:"atr"`
	ATRPercent    float64                `json:"atr_percent"`
	RangePosition float64                `json:"range_position"` // 收盘价在最近回踩窗口高低点之间的位置 0-1
	RangeWidthPct float64                `json:"range_width_pct"`
	SupplyZones   []Zone                 `json:"supply_zones"`
	DemandZones   []Zone                 `json:"demand_zones"`
	PatternCounts map[string]int         `json:"pattern_counts"`
	LatestPattern string                 `json:"latest_pattern,omitempty"` // 最新一根K线上的形态
	Setup         *TradeSide             `json:"setup,omitempty"`          // 最新K线满足回踩+确认时的方向
	CounterTrend  bool                   `json:"counter_trend"`
	Conditions    map[string]interface{} `json:"conditions,omitempty"` // 最新K线的各项信号条件
	Error         string                 `json:"error,omitempty"`
	AnalyzedAt    time.Time              `json:"analyzed_at"`
}

// HasSetup 最新K线是否构成入场条件
func (r *MarketReport) HasSetup() bool {
	return r.Setup != nil
}
