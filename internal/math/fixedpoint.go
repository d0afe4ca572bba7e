package math

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Amount is a fixed-point monetary value in 1e-6 units of the insured
// asset (POL). All coverage, premium, pool, and payout figures use this
// representation — never float64, which drifts on monetary values.
type Amount = int64

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// AmountConfig covers coverage/premium/pool amounts: 0.000001 POL
	AmountConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
	// RatioConfig covers reserve ratios and utilization: 1_500_000 = 1.5x
	RatioConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
)

// RatioScale is the scale shared by ratios and percentages.
const RatioScale int64 = 1_000_000

// BpsDenominator converts basis points to a fraction: rate_bps / 10_000.
const BpsDenominator int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundHalfEven {
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denominator through an int128 intermediate.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	raw := MultiplyInt128(a, b)
	result := DivideInt128(raw, denominator, roundingMode)
	putInt128(raw)
	return result
}

// ApplyBps computes amount * rateBps / 10_000 — the premium formula.
func ApplyBps(amount Amount, rateBps int64) Amount {
	return MulDiv(amount, rateBps, BpsDenominator, RoundHalfEven)
}

// MulRatio scales an amount by a ratio-scaled factor
// (e.g. MulRatio(pool, 900_000) = 90% of pool).
func MulRatio(amount Amount, ratio int64) Amount {
	return MulDiv(amount, ratio, RatioScale, RoundHalfEven)
}

// DivRatio divides an amount by a ratio-scaled factor
// (e.g. DivRatio(pool, 1_500_000) = pool / 1.5).
func DivRatio(amount Amount, ratio int64) Amount {
	return MulDiv(amount, RatioScale, ratio, RoundHalfEven)
}

// Ratio computes numerator / denominator in ratio scale.
// Callers must handle denominator == 0 before invoking.
func Ratio(numerator, denominator int64) int64 {
	return MulDiv(numerator, RatioScale, denominator, RoundHalfEven)
}

// ParseAmount parses a decimal string ("12.5") into an Amount.
// At most 6 fractional digits are accepted; extra precision is an error,
// not silently truncated.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		fracPart = s[idx+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if len(fracPart) > AmountConfig.DecimalPrecision {
		return 0, fmt.Errorf("amount %q exceeds %d fractional digits", s, AmountConfig.DecimalPrecision)
	}

	// Right-pad the fraction to full precision
	fracPart += strings.Repeat("0", AmountConfig.DecimalPrecision-len(fracPart))

	combined := intPart + fracPart
	v, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}

	result := v.Int64()
	if negative {
		result = -result
	}
	return result, nil
}

// FormatAmount renders an Amount as a decimal string with full precision.
func FormatAmount(a Amount) string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%06d", sign, a/AmountConfig.Scale, a%AmountConfig.Scale)
}
