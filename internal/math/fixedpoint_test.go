package math_test

import (
	"testing"

	fpmath "PerpTrade/internal/math"
)

func TestDivideInt128_RoundHalfEven(t *testing.T) {
	cases := []struct {
		num, denom, want int64
	}{
		{7, 2, 4},  // .5 rounds to even (4)
		{5, 2, 2},  // .5 rounds to even (2)
		{3, 4, 1},  // .75 rounds up
		{1, 4, 0},  // .25 rounds down
		{-7, 2, -4},
		{-5, 2, -2},
		{10, 5, 2}, // exact
	}

	for _, c := range cases {
		n := fpmath.MultiplyInt128(c.num, 1)
		got := fpmath.DivideInt128(n, c.denom, fpmath.RoundHalfEven)
		if got != c.want {
			t.Errorf("%d/%d: got %d, want %d", c.num, c.denom, got, c.want)
		}
	}
}

func TestComputeRealizedPnL_LongProfit(t *testing.T) {
	// 2.083333 units, entry 2400.00, exit 2900.00
	pnl := fpmath.ComputeRealizedPnL(+1, 290000, 240000, 2083333)
	if pnl != 1_041_666_500 { // 1041.6665 USDT
		t.Errorf("got %d, want 1041666500", pnl)
	}
}

func TestComputeRealizedPnL_LongLoss(t *testing.T) {
	pnl := fpmath.ComputeRealizedPnL(+1, 200000, 240000, 2083333)
	if pnl != -833_333_200 {
		t.Errorf("got %d, want -833333200", pnl)
	}
}

func TestComputeRealizedPnL_ShortMirrorsLong(t *testing.T) {
	long := fpmath.ComputeRealizedPnL(+1, 200000, 240000, 2083333)
	short := fpmath.ComputeRealizedPnL(-1, 200000, 240000, 2083333)
	if long != -short {
		t.Errorf("short pnl %d does not mirror long pnl %d", short, long)
	}
}

func TestComputeRealizedPnL_FlatPrice(t *testing.T) {
	if pnl := fpmath.ComputeRealizedPnL(+1, 240000, 240000, 2083333); pnl != 0 {
		t.Errorf("got %d, want 0", pnl)
	}
}

func TestComputeNotional(t *testing.T) {
	notional := fpmath.ComputeNotional(2083333, 240000)
	if notional != 4_999_999_200 { // 4999.9992 USDT
		t.Errorf("got %d, want 4999999200", notional)
	}
}
