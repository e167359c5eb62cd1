package patterns

import (
	"testing"
	"time"

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

func defaultDetector() Detector {
	return NewDetectorFromConfig(types.DefaultPriceActionConfig())
}

func TestBullishEngulfing(t *testing.T) {
	d := defaultDetector()
	cases := []struct {
		name string
		bars []types.Bar
		want bool
	}{
		{"engulfs", candles([4]float64{10, 10.2, 8.8, 9}, [4]float64{8.95, 10.6, 8.9, 10.5}), true},
		{"within tolerance", candles([4]float64{10, 10.2, 8.8, 9}, [4]float64{9.005, 10.6, 8.9, 10.5}), true},
		{"open above prior close", candles([4]float64{10, 10.2, 8.8, 9}, [4]float64{9.05, 10.6, 9, 10.5}), false},
		{"smaller body", candles([4]float64{10, 10.2, 8.8, 9}, [4]float64{9, 10, 8.9, 9.9}), false},
		{"prior bullish", candles([4]float64{9, 10.2, 8.8, 10}, [4]float64{8.95, 10.6, 8.9, 10.5}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.BullishEngulfing(tc.bars, 1); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}

	// 第0根永远不匹配吞没
	if d.BullishEngulfing(candles([4]float64{9, 11, 8, 10.5}), 0) {
		t.Errorf("expected index 0 never to match")
	}
}

func TestBearishEngulfing(t *testing.T) {
	d := defaultDetector()
	bars := candles([4]float64{9, 10.2, 8.8, 10}, [4]float64{10.05, 10.3, 8.4, 8.5})
	if !d.BearishEngulfing(bars, 1) {
		t.Errorf("expected bearish engulfing")
	}
	if d.BullishEngulfing(bars, 1) {
		t.Errorf("expected no bullish engulfing")
	}
}

func TestPinBars(t *testing.T) {
	d := defaultDetector()
	hammer := candles([4]float64{9.9, 10.05, 8, 10})
	star := candles([4]float64{10.1, 12, 9.95, 10})

	if !d.Hammer(hammer, 0) || d.ShootingStar(hammer, 0) {
		t.Errorf("expected hammer only")
	}
	if !d.ShootingStar(star, 0) || d.Hammer(star, 0) {
		t.Errorf("expected shooting star only")
	}

	// min_body_size_ratio>=0.7 时实体上限收紧到2%
	strict := NewDetector(0.7, 0.01)
	if strict.Hammer(hammer, 0) {
		t.Errorf("expected strict detector to reject 5%% body")
	}
	tiny := candles([4]float64{9.99, 10.05, 8, 10})
	if !strict.Hammer(tiny, 0) {
		t.Errorf("expected strict detector to accept tiny body")
	}
}

func TestZeroRangeNeverMatches(t *testing.T) {
	d := defaultDetector()
	flat := candles([4]float64{10, 10, 10, 10}, [4]float64{10, 10, 10, 10})
	for _, kind := range types.AllPatternKinds {
		for i := range flat {
			if d.Detect(kind, flat, i) {
				t.Errorf("%v matched zero-range candle at %d", kind, i)
			}
		}
	}
}

func TestDoji(t *testing.T) {
	d := defaultDetector()
	bars := candles([4]float64{10, 11, 9, 10.1}, [4]float64{10, 11, 9, 10.5})
	if !d.Doji(bars, 0) {
		t.Errorf("expected doji at body 5%% of range")
	}
	if d.Doji(bars, 1) {
		t.Errorf("expected no doji at body 25%% of range")
	}
}

func TestScanPatterns(t *testing.T) {
	d := defaultDetector()
	bars := candles(
		[4]float64{10, 10.2, 8.8, 9},
		[4]float64{8.95, 10.6, 8.9, 10.5},
		[4]float64{10.4, 10.55, 8.4, 10.5},
	)

	results := d.ScanPatterns(bars, nil)
	if len(results) != len(DefaultScanKinds) {
		t.Fatalf("expected every default kind present, got %d", len(results))
	}
	if _, ok := results[types.PatternDoji]; ok {
		t.Errorf("expected doji excluded from default scan")
	}

	engulfing := results[types.PatternBullishEngulfing]
	if len(engulfing) != 1 || engulfing[0].Index != 1 || !engulfing[0].Timestamp.Equal(bars[1].Timestamp) {
		t.Errorf("unexpected engulfing matches: %+v", engulfing)
	}
	if hammers := results[types.PatternHammer]; len(hammers) != 1 || hammers[0].Index != 2 {
		t.Errorf("unexpected hammer matches: %+v", hammers)
	}
	if stars := results[types.PatternShootingStar]; stars == nil || len(stars) != 0 {
		t.Errorf("expected empty non-nil shooting star list, got %+v", stars)
	}

	dojis := d.ScanPatterns(bars, []types.PatternKind{types.PatternDoji})
	if len(dojis) != 1 || len(dojis[types.PatternDoji]) != 1 {
		t.Errorf("unexpected doji scan: %+v", dojis)
	}
}
