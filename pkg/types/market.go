package types

import (
	"fmt"
	"math"
	"time"
)

// Bar 单根K线（OHLCV），生成后不可修改
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Range K线振幅
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Body 实体大小
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}

// IsBullish 是否阳线
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish 是否阴线
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// UpperWick 上影线
func (b Bar) UpperWick() float64 {
	return b.High - math.Max(b.Open, b.Close)
}

// LowerWick 下影线
func (b Bar) LowerWick() float64 {
	return math.Min(b.Open, b.Close) - b.Low
}

// IsFinite 价格字段均为有限值且 high >= low
func (b Bar) IsFinite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.High >= b.Low
}

// BarSeries 按时间递增的K线序列
type BarSeries []Bar

// Closes 收盘价序列
func (s BarSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Validate 校验时间戳严格递增（由数据加载方调用）
func (s BarSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("K线时间戳未严格递增: 索引%d %s <= %s",
				i, s[i].Timestamp.Format(time.RFC3339), s[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}
