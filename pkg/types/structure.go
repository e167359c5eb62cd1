package types

import (
	"fmt"
	"strings"
	"time"
)

// Trend 市场趋势
type Trend int

const (
	TrendUnknown Trend = iota
	TrendUp
	TrendDown
	TrendRange
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "UPTREND"
	case TrendDown:
		return "DOWNTREND"
	case TrendRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText JSON中输出趋势名称
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(text []byte) error {
	for _, c := range []Trend{TrendUnknown, TrendUp, TrendDown, TrendRange} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("未知趋势: %q", text)
}

// SwingKind 摆动点类型
type SwingKind int

const (
	SwingHigh SwingKind = iota
	SwingLow
)

func (k SwingKind) String() string {
	if k == SwingLow {
		return "LOW"
	}
	return "HIGH"
}

func (k SwingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SwingPoint 经过ATR过滤的摆动高/低点
type SwingPoint struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  SwingKind `json:"kind"`
}

// ZoneSide 区域方向
type ZoneSide int

const (
	ZoneSupply ZoneSide = iota
	ZoneDemand
)

func (s ZoneSide) String() string {
	if s == ZoneDemand {
		return "DEMAND"
	}
	return "SUPPLY"
}

func (s ZoneSide) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ZoneSide) UnmarshalText(text []byte) error {
	switch string(text) {
	case "SUPPLY":
		*s = ZoneSupply
	case "DEMAND":
		*s = ZoneDemand
	default:
		return fmt.Errorf("未知区域方向: %q", text)
	}
	return nil
}

// Zone 供给/需求区域，[Lower, Upper] 为闭区间
type Zone struct {
	Price    float64  `json:"price"`
	Lower    float64  `json:"lower"`
	Upper    float64  `json:"upper"`
	Strength float64  `json:"strength"`
	Side     ZoneSide `json:"side"`
}

// Contains 价格是否落在区域内
func (z Zone) Contains(price float64) bool {
	return z.Lower <= price && price <= z.Upper
}

// PatternKind K线形态
type PatternKind int

const (
	PatternBullishEngulfing PatternKind = iota
	PatternBearishEngulfing
	PatternHammer
	PatternShootingStar
	PatternDoji
)

// AllPatternKinds 全部形态，按定义顺序
var AllPatternKinds = []PatternKind{
	PatternBullishEngulfing,
	PatternBearishEngulfing,
	PatternHammer,
	PatternShootingStar,
	PatternDoji,
}

func (k PatternKind) String() string {
	switch k {
	case PatternBullishEngulfing:
		return "bullish_engulfing"
	case PatternBearishEngulfing:
		return "bearish_engulfing"
	case PatternHammer:
		return "hammer"
	case PatternShootingStar:
		return "shooting_star"
	case PatternDoji:
		return "doji"
	default:
		return fmt.Sprintf("pattern(%d)", int(k))
	}
}

func (k PatternKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParsePatternKind 解析配置中的形态名称
func ParsePatternKind(name string) (PatternKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, k := range AllPatternKinds {
		if k.String() == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("未知的K线形态: %q", name)
}

// PatternMatch 某根K线上的形态匹配结果
type PatternMatch struct {
	Index     int         `json:"index"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      PatternKind `json:"kind"`
}
