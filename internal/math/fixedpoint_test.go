package math_test

import (
	"testing"

	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
)

func TestApplyBps(t *testing.T) {
	// 50_000 POL coverage at 120 bps (1.2%) = 600 POL premium
	coverage := int64(50_000_000_000)
	premium := fpmath.ApplyBps(coverage, 120)
	if premium != 600_000_000 {
		t.Errorf("got %d, want 600_000_000", premium)
	}
}

func TestApplyBps_ZeroRate(t *testing.T) {
	if got := fpmath.ApplyBps(1_000_000, 0); got != 0 {
		t.Errorf("zero rate should produce zero premium, got %d", got)
	}
}

func TestApplyBps_NoOverflow(t *testing.T) {
	// 1 billion POL at 350 bps — the raw product overflows int64,
	// the int128 intermediate must not.
	coverage := int64(1_000_000_000_000_000)
	premium := fpmath.ApplyBps(coverage, 350)
	if premium != 35_000_000_000_000 {
		t.Errorf("got %d, want 35_000_000_000_000", premium)
	}
}

func TestMulRatio(t *testing.T) {
	// 90% of 100 POL
	got := fpmath.MulRatio(100_000_000, 900_000)
	if got != 90_000_000 {
		t.Errorf("got %d, want 90_000_000", got)
	}
}

func TestDivRatio(t *testing.T) {
	// 100 POL / 1.5 = 66.666667 POL (half-even)
	got := fpmath.DivRatio(100_000_000, 1_500_000)
	if got != 66_666_667 {
		t.Errorf("got %d, want 66_666_667", got)
	}
}

func TestRatio(t *testing.T) {
	// 61 / 100 = 0.61
	got := fpmath.Ratio(61_000_000, 100_000_000)
	if got != 610_000 {
		t.Errorf("got %d, want 610_000", got)
	}
}

func TestDivideInt128_BankersRounding(t *testing.T) {
	cases := []struct {
		a, b, denom int64
		want        int64
	}{
		{5, 1, 2, 2},  // 2.5 rounds to even 2
		{7, 1, 2, 4},  // 3.5 rounds to even 4
		{6, 1, 4, 2},  // 1.5 rounds to even 2
		{10, 1, 4, 2}, // 2.5 rounds to even 2
	}
	for _, c := range cases {
		got := fpmath.MulDiv(c.a, c.b, c.denom, fpmath.RoundHalfEven)
		if got != c.want {
			t.Errorf("MulDiv(%d,%d,%d): got %d, want %d", c.a, c.b, c.denom, got, c.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.5", 12_500_000, false},
		{"0.000001", 1, false},
		{"100", 100_000_000, false},
		{"-3.25", -3_250_000, false},
		{"0.0000001", 0, true}, // too many fractional digits
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, c := range cases {
		got, err := fpmath.ParseAmount(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseAmount(%q): got %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatAmount_RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 999_999, 1_000_000, 50_000_000_000, -12_500_000} {
		s := fpmath.FormatAmount(v)
		back, err := fpmath.ParseAmount(s)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", s, err)
		}
		if back != v {
			t.Errorf("round trip %d -> %q -> %d", v, s, back)
		}
	}
}
