package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	PriceConfig    = DecimalConfig{DecimalPrecision: 2, Scale: 100}       // 0.01
	QuantityConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001
	QuoteConfig    = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 USDT
	LeverageConfig = DecimalConfig{DecimalPrecision: 2, Scale: 100}       // hundredths: 500 = 5.00x
)

// FractionScale is the scale for margin and fee fractions (parts per million).
const FractionScale int64 = 1_000_000

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

// DivideInt128 performs numerator / denominator with rounding.
// The denominator must be positive; the sign of the result follows the numerator.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	abs := getInt128()

	neg := numerator.Sign() < 0
	abs.Abs(numerator)

	quotient.DivMod(abs, denom, remainder)

	result := quotient.Int64()

	switch roundingMode {
	case RoundHalfEven:
		// Banker's rounding: if remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)

		if cmp > 0 {
			// remainder > half: round up
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			// remainder == half and even denominator: round to even
			if result%2 != 0 {
				result++
			}
		}
	case RoundUp:
		// Away from zero on any nonzero remainder.
		if remainder.Sign() != 0 {
			result++
		}
	case RoundDown:
		// Truncation toward zero: DivMod already did it.
	}

	if neg {
		result = -result
	}

	putInt128(quotient)
	putInt128(remainder)
	putInt128(abs)

	return result
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// ComputeRealizedPnL calculates PnL for closing a position at exitPrice.
// Result is in quote scale and negative when the position lost money.
func ComputeRealizedPnL(
	sideSign int64, // +1 for long, -1 for short
	exitPrice int64, // Price scale
	entryPrice int64, // Price scale
	positionSize int64, // Quantity scale
) int64 {
	priceDiff := exitPrice - entryPrice

	// raw_pnl = sideSign * priceDiff * positionSize
	temp := MultiplyInt128(sideSign*priceDiff, positionSize)

	// Convert to quote precision: raw_pnl * quoteScale / (priceScale * qtyScale)
	temp.Mul(temp, big.NewInt(QuoteConfig.Scale))
	denominator := PriceConfig.Scale * QuantityConfig.Scale

	result := DivideInt128(temp, denominator, RoundHalfEven)

	putInt128(temp)

	return result
}

// ComputeNotional calculates position notional value in quote scale.
func ComputeNotional(positionSize, price int64) int64 {
	raw := MultiplyInt128(positionSize, price)

	raw.Mul(raw, big.NewInt(QuoteConfig.Scale))
	denominator := PriceConfig.Scale * QuantityConfig.Scale

	result := DivideInt128(raw, denominator, RoundHalfEven)

	putInt128(raw)

	return result
}
