package risk

import (
	"math"
	"testing"

	"price-action-sentry/pkg/types"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateLevelsLong(t *testing.T) {
	zone := types.Zone{Price: 100, Lower: 99, Upper: 101, Side: types.ZoneDemand}

	// ATR止损 100.5-2*1=98.5 比区域下沿99更远
	levels := CalculateLevels(types.SideLong, 100.5, zone, 1, 2, 2)
	if !approx(levels.StopLoss, 98.5) || !approx(levels.StopDistance, 2) || !approx(levels.TakeProfit, 104.5) {
		t.Errorf("unexpected levels: %+v", levels)
	}

	// 区域下沿更远时使用区域下沿
	levels = CalculateLevels(types.SideLong, 100.5, zone, 0.25, 2, 2)
	if !approx(levels.StopLoss, 99) || !approx(levels.TakeProfit, 103.5) {
		t.Errorf("unexpected levels: %+v", levels)
	}
}

func TestCalculateLevelsShort(t *testing.T) {
	zone := types.Zone{Price: 100, Lower: 99, Upper: 101, Side: types.ZoneSupply}

	levels := CalculateLevels(types.SideShort, 99.5, zone, 1, 2, 2)
	if !approx(levels.StopLoss, 101.5) || !approx(levels.StopDistance, 2) || !approx(levels.TakeProfit, 95.5) {
		t.Errorf("unexpected levels: %+v", levels)
	}
}

func TestPositionSize(t *testing.T) {
	cases := []struct {
		name                                       string
		equity, cash, price, stopDistance, maxRisk float64
		want                                       float64
	}{
		{"risk budget", 10000, 10000, 100, 2, 0.02, 100},
		{"capped by cash", 10000, 1000, 100, 2, 0.02, 9.5},
		{"zero stop distance", 10000, 10000, 100, 0, 0.02, 0},
		{"negative stop distance", 10000, 10000, 100, -1, 0.02, 0},
		{"no cash", 10000, 0, 100, 2, 0.02, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PositionSize(tc.equity, tc.cash, tc.price, tc.stopDistance, tc.maxRisk)
			if !approx(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
