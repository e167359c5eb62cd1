package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestBarGeometry(t *testing.T) {
	bar := Bar{Open: 10, High: 12, Low: 9, Close: 11}
	if bar.Range() != 3 || bar.Body() != 1 || !bar.IsBullish() || bar.IsBearish() {
		t.Errorf("unexpected geometry: %+v", bar)
	}
	if bar.UpperWick() != 1 || bar.LowerWick() != 1 {
		t.Errorf("unexpected wicks: %f/%f", bar.UpperWick(), bar.LowerWick())
	}

	if (Bar{Open: math.NaN(), High: 1, Low: 0, Close: 1}).IsFinite() {
		t.Errorf("expected NaN bar to be rejected")
	}
	if (Bar{Open: 1, High: 0, Low: 1, Close: 1}).IsFinite() {
		t.Errorf("expected high < low to be rejected")
	}
}

func TestBarSeriesValidate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := BarSeries{
		{Timestamp: start, Close: 1},
		{Timestamp: start.Add(time.Minute), Close: 2},
		{Timestamp: start.Add(2 * time.Minute), Close: 3},
	}
	if err := series.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if closes := series.Closes(); len(closes) != 3 || closes[2] != 3 {
		t.Errorf("unexpected closes: %v", closes)
	}

	series[2].Timestamp = start
	if err := series.Validate(); err == nil {
		t.Errorf("expected error for non-increasing timestamps")
	}
}

func TestRealizedPnL(t *testing.T) {
	if got := RealizedPnL(SideLong, 100, 110, 2); got != 20 {
		t.Errorf("expected 20, got %f", got)
	}
	if got := RealizedPnL(SideShort, 100, 110, 2); got != -20 {
		t.Errorf("expected -20, got %f", got)
	}
	if SideShort.EntrySide() != OrderSell || SideShort.ExitSide() != OrderBuy {
		t.Errorf("unexpected order sides for short")
	}
}

func TestEnumJSON(t *testing.T) {
	trade := Trade{ID: "t1", Side: SideShort, State: TradeCanceled}
	data, err := json.Marshal(trade)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded struct {
		Side  TradeSide  `json:"side"`
		State TradeState `json:"state"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Side != SideShort || decoded.State != TradeCanceled {
		t.Errorf("unexpected decoded trade: %+v", decoded)
	}

	var trend Trend
	if err := trend.UnmarshalText([]byte("RANGE")); err != nil || trend != TrendRange {
		t.Errorf("expected RANGE, got %v (%v)", trend, err)
	}
	if err := trend.UnmarshalText([]byte("SIDEWAYS")); err == nil {
		t.Errorf("expected error for unknown trend")
	}
}

func TestParsePatternKind(t *testing.T) {
	kind, err := ParsePatternKind(" Shooting_Star ")
	if err != nil || kind != PatternShootingStar {
		t.Errorf("expected shooting_star, got %v (%v)", kind, err)
	}
	if _, err := ParsePatternKind("morning_star"); err == nil {
		t.Errorf("expected error for unknown pattern")
	}

	cfg := DefaultPriceActionConfig()
	if !cfg.PatternAllowed(PatternBullishEngulfing) || cfg.PatternAllowed(PatternHammer) {
		t.Errorf("unexpected default allowed patterns: %v", cfg.AllowedPatterns)
	}
}

func TestPriceActionConfigValidate(t *testing.T) {
	if err := DefaultPriceActionConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}

	testCases := []struct {
		name   string
		modify func(*PriceActionConfig)
	}{
		{"threshold zero", func(c *PriceActionConfig) { c.TrendStrengthThreshold = 0 }},
		{"threshold above one", func(c *PriceActionConfig) { c.TrendStrengthThreshold = 1.01 }},
		{"zero atr period", func(c *PriceActionConfig) { c.ATRPeriod = 0 }},
		{"zero buffer", func(c *PriceActionConfig) { c.ZoneBufferATRMult = 0 }},
		{"negative rr", func(c *PriceActionConfig) { c.RiskRewardRatio = -1 }},
		{"risk above one", func(c *PriceActionConfig) { c.MaxRiskPerTrade = 2 }},
		{"zero trades", func(c *PriceActionConfig) { c.MaxConcurrentTrades = 0 }},
		{"zero frequency", func(c *PriceActionConfig) { c.StructureUpdateFrequency = 0 }},
		{"unknown pattern", func(c *PriceActionConfig) { c.AllowedPatterns = []string{"marubozu"} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPriceActionConfig()
			tc.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}
