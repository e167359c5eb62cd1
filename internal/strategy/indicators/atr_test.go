package indicators

import (
	"math"
	"testing"
	"time"

	"price-action-sentry/pkg/types"
)

func bar(o, h, l, c float64) types.Bar {
	return types.Bar{Open: o, High: h, Low: l, Close: c}
}

func withTimes(bars []types.Bar) []types.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i].Timestamp = base.Add(time.Duration(i) * 15 * time.Minute)
	}
	return bars
}

func TestTrueRange(t *testing.T) {
	bars := withTimes([]types.Bar{
		bar(10, 11, 9, 10),
		bar(10, 10.5, 9.5, 10),  // 内部K线: high-low
		bar(13, 14, 12.5, 13.5), // 跳空高开: high-prevClose
		bar(9, 9.5, 8, 9),       // 跳空低开: prevClose-low
	})

	cases := []struct {
		i    int
		want float64
	}{
		{1, 1.0},
		{2, 4.0},
		{3, 5.5},
	}
	for _, tc := range cases {
		if got := TrueRange(bars, tc.i); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("TrueRange(%d): expected %v, got %v", tc.i, tc.want, got)
		}
	}
}

func TestCalculateATR(t *testing.T) {
	bars := withTimes([]types.Bar{
		bar(10, 11, 9, 10),
		bar(10, 11, 9, 10),
		bar(10, 12, 8, 10),
		bar(10, 13, 7, 10),
	})

	// TR: 2, 4, 6
	if got := CalculateATR(bars, 14); math.Abs(got-4) > 1e-9 {
		t.Errorf("expected ATR 4 over all TRs, got %v", got)
	}
	if got := CalculateATR(bars, 2); math.Abs(got-5) > 1e-9 {
		t.Errorf("expected ATR 5 over last 2 TRs, got %v", got)
	}
}

func TestCalculateATRFallbacks(t *testing.T) {
	cases := []struct {
		name string
		bars []types.Bar
		want float64
	}{
		{"empty", nil, atrEpsilon},
		{"single bar", withTimes([]types.Bar{bar(100, 101, 99, 100)}), 0.1},
		{"flat bars", withTimes([]types.Bar{bar(50, 50, 50, 50), bar(50, 50, 50, 50)}), 0.05},
		{"zero prices", withTimes([]types.Bar{bar(0, 0, 0, 0), bar(0, 0, 0, 0)}), atrEpsilon},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateATR(tc.bars, 14)
			if got <= 0 {
				t.Fatalf("expected positive ATR, got %v", got)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNormalizedATR(t *testing.T) {
	if got := NormalizedATR(2, 100); got != 2 {
		t.Errorf("expected 2%%, got %v", got)
	}
	if got := NormalizedATR(2, 0); got != 0 {
		t.Errorf("expected 0 for zero price, got %v", got)
	}
}

func TestWindowChannel(t *testing.T) {
	bars := withTimes([]types.Bar{
		bar(10, 12, 9, 11),
		bar(11, 15, 10, 14),
		bar(14, 14, 8, 9),
		bar(9, 10, 9, 10),
	})

	ch, ok := WindowChannel(bars, 0, 3)
	if !ok || ch.Upper != 15 || ch.Lower != 8 || ch.Middle != 11.5 {
		t.Errorf("unexpected channel: %+v ok=%v", ch, ok)
	}

	if _, ok := WindowChannel(bars, 3, 3); ok {
		t.Errorf("expected empty window")
	}

	recent, ok := RecentChannel(bars, 2)
	if !ok || recent.Upper != 14 || recent.Lower != 8 {
		t.Errorf("unexpected recent channel: %+v", recent)
	}
	if pos := recent.Position(11); pos != 0.5 {
		t.Errorf("expected position 0.5, got %v", pos)
	}
	if pos := recent.Position(100); pos != 1 {
		t.Errorf("expected position clamped to 1, got %v", pos)
	}
	if (Channel{Upper: 5, Lower: 5, Middle: 5}).Position(5) != 0.5 {
		t.Errorf("expected flat channel position 0.5")
	}
}
