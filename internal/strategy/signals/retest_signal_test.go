package signals

import (
	"testing"
	"time"

	"price-action-sentry/internal/strategy/structure"
	"price-action-sentry/pkg/types"
)

func candles(ohlc ...[4]float64) []types.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(ohlc))
	for i, v := range ohlc {
		bars[i] = types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
		}
	}
	return bars
}

var (
	demandZone = types.Zone{Price: 9, Lower: 8.5, Upper: 9.5, Strength: 1, Side: types.ZoneDemand}
	supplyZone = types.Zone{Price: 10.5, Lower: 10, Upper: 11, Strength: 1, Side: types.ZoneSupply}

	// 前阴后阳，后一根低点回踩需求区
	engulfingBars = candles([4]float64{10, 10.2, 8.8, 9}, [4]float64{8.95, 10.6, 8.9, 10.5})
	hammerBars    = candles([4]float64{9.5, 9.6, 9.2, 9.3}, [4]float64{9.3, 9.35, 7.3, 9.25})
)

func TestDetectRetest(t *testing.T) {
	bar := types.Bar{Open: 10, High: 10.2, Low: 9.4, Close: 10.1}

	zone, ok := DetectRetest(bar, structure.ZoneSet{Supply: []types.Zone{supplyZone}, Demand: []types.Zone{demandZone}})
	if !ok || zone.Side != types.ZoneDemand {
		t.Errorf("expected demand zone checked first, got %+v ok=%v", zone, ok)
	}

	zone, ok = DetectRetest(bar, structure.ZoneSet{Supply: []types.Zone{supplyZone}})
	if !ok || zone.Side != types.ZoneSupply {
		t.Errorf("expected supply retest by close, got %+v ok=%v", zone, ok)
	}

	far := types.Bar{Open: 20, High: 21, Low: 19, Close: 20}
	if _, ok := DetectRetest(far, structure.ZoneSet{Supply: []types.Zone{supplyZone}, Demand: []types.Zone{demandZone}}); ok {
		t.Errorf("expected no retest")
	}
}

func TestDetectSignal(t *testing.T) {
	zones := structure.ZoneSet{Demand: []types.Zone{demandZone}}

	cases := []struct {
		name        string
		mutate      func(*types.PriceActionConfig)
		bars        []types.Bar
		trend       types.Trend
		wantSignal  bool
		wantPattern string
		wantCounter bool
	}{
		{"engulfing with trend", nil, engulfingBars, types.TrendUp, true, "bullish_engulfing", false},
		{"engulfing counter trend", nil, engulfingBars, types.TrendDown, true, "bullish_engulfing", true},
		{"hammer not allowed", nil, hammerBars, types.TrendUp, false, "", false},
		{"hammer allowed but not a confirmation", func(c *types.PriceActionConfig) {
			c.AllowedPatterns = append(c.AllowedPatterns, "hammer")
		}, hammerBars, types.TrendRange, false, "", false},
		{"engulfing not allowed", func(c *types.PriceActionConfig) {
			c.AllowedPatterns = []string{"bearish_engulfing", "hammer"}
		}, engulfingBars, types.TrendUp, false, "", false},
		{"confirmation disabled", func(c *types.PriceActionConfig) {
			c.RequirePatternConfirmation = false
		}, hammerBars, types.TrendUp, true, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := types.DefaultPriceActionConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			candidate := NewRetestSignalDetector(cfg).DetectSignal("BTC-USDT", tc.bars, tc.trend, zones)

			if (candidate != nil) != tc.wantSignal {
				t.Fatalf("expected signal=%v, got %+v", tc.wantSignal, candidate)
			}
			if candidate == nil {
				return
			}
			if candidate.Side != types.SideLong {
				t.Errorf("expected LONG, got %v", candidate.Side)
			}
			if candidate.Pattern != tc.wantPattern {
				t.Errorf("expected pattern %q, got %q", tc.wantPattern, candidate.Pattern)
			}
			if candidate.CounterTrend != tc.wantCounter {
				t.Errorf("expected counter trend %v, got %v", tc.wantCounter, candidate.CounterTrend)
			}
		})
	}
}

func TestDetectSignalSupply(t *testing.T) {
	bars := candles([4]float64{10, 10.9, 9.9, 10.8}, [4]float64{10.85, 10.95, 9.5, 9.6})
	zones := structure.ZoneSet{Supply: []types.Zone{supplyZone}}

	candidate := NewRetestSignalDetector(types.DefaultPriceActionConfig()).DetectSignal("ETH-USDT", bars, types.TrendUp, zones)
	if candidate == nil {
		t.Fatal("expected short signal")
	}
	if candidate.Side != types.SideShort || candidate.Pattern != "bearish_engulfing" || !candidate.CounterTrend {
		t.Errorf("unexpected candidate: %+v", candidate)
	}
}

func TestDetectSignalEmpty(t *testing.T) {
	rsd := NewRetestSignalDetector(types.DefaultPriceActionConfig())
	if rsd.DetectSignal("BTC-USDT", nil, types.TrendUp, structure.ZoneSet{Demand: []types.Zone{demandZone}}) != nil {
		t.Errorf("expected nil for empty bars")
	}
}

func TestValidateSignalConditions(t *testing.T) {
	rsd := NewRetestSignalDetector(types.DefaultPriceActionConfig())
	st := structure.Structure{
		Trend: types.TrendUp,
		ATR:   0.5,
		Zones: structure.ZoneSet{Demand: []types.Zone{demandZone}},
	}

	conditions := rsd.ValidateSignalConditions(engulfingBars, st)
	if conditions["retest"] != true || conditions["retest_zone"] != "DEMAND" {
		t.Errorf("unexpected retest conditions: %v", conditions)
	}
	if conditions["bullish_engulfing"] != true || conditions["hammer"] != false {
		t.Errorf("unexpected pattern conditions: %v", conditions)
	}
	if conditions["demand_zones"] != 1 || conditions["sufficient_data"] != true {
		t.Errorf("unexpected zone conditions: %v", conditions)
	}

	empty := rsd.ValidateSignalConditions(nil, structure.Structure{})
	if empty["sufficient_data"] != false {
		t.Errorf("expected insufficient data for empty bars")
	}
}
