package math

import (
	"errors"
	"math/big"
)

// Margin computation errors. Callers match these with errors.Is.
var (
	ErrInvalidLeverage   = errors.New("invalid leverage")
	ErrInvalidCollateral = errors.New("invalid collateral amount")
)

// OpenTerms is the derived state for a newly opened position.
type OpenTerms struct {
	PositionSize     int64 // Quantity scale, fixed for the life of the position
	LiquidationPrice int64 // Price scale
}

// ResizeTerms is the derived state after a collateral change.
// PositionSize is never altered by a resize; only the leverage/collateral
// ratio changes, which moves the liquidation price.
type ResizeTerms struct {
	NewCollateral       int64 // Quote scale
	NewLeverage         int64 // Leverage scale (hundredths)
	NewLiquidationPrice int64 // Price scale
}

// ComputeOpen derives position size and liquidation price for a new position.
//
// positionSize = collateral * leverage / entryPrice (underlying units).
// The liquidation price sits where losses have consumed all but the
// maintenance fraction of the posted collateral:
//
//	long:  entry - entry*(1-mm)/leverage
//	short: entry + entry*(1-mm)/leverage
//
// Higher leverage therefore moves the liquidation price strictly toward the
// entry price on either side.
func ComputeOpen(
	entryPrice int64, // Price scale
	leverage int64, // Leverage scale
	collateral int64, // Quote scale
	sideSign int64, // +1 long, -1 short
	maxLeverage int64, // Leverage scale
	maintenancePPM int64, // FractionScale
) (OpenTerms, error) {
	if leverage < LeverageConfig.Scale || leverage > maxLeverage {
		return OpenTerms{}, ErrInvalidLeverage
	}
	if collateral <= 0 {
		return OpenTerms{}, ErrInvalidCollateral
	}

	return OpenTerms{
		PositionSize:     ComputePositionSize(collateral, leverage, entryPrice),
		LiquidationPrice: ComputeLiquidationPrice(entryPrice, leverage, sideSign, maintenancePPM),
	}, nil
}

// ComputeResize derives the new leverage and liquidation price after a
// signed collateral change. A negative delta whose magnitude reaches the
// current collateral is rejected: collateral must stay positive while the
// position is open. The implied leverage must remain within [1x, maxLeverage].
func ComputeResize(
	entryPrice int64,
	positionSize int64,
	collateral int64,
	collateralDelta int64,
	sideSign int64,
	maxLeverage int64,
	maintenancePPM int64,
) (ResizeTerms, error) {
	if collateralDelta < 0 && -collateralDelta >= collateral {
		return ResizeTerms{}, ErrInvalidCollateral
	}

	newCollateral := collateral + collateralDelta
	newLeverage := ComputeImpliedLeverage(positionSize, entryPrice, newCollateral)
	if newLeverage < LeverageConfig.Scale || newLeverage > maxLeverage {
		return ResizeTerms{}, ErrInvalidLeverage
	}

	return ResizeTerms{
		NewCollateral:       newCollateral,
		NewLeverage:         newLeverage,
		NewLiquidationPrice: ComputeLiquidationPrice(entryPrice, newLeverage, sideSign, maintenancePPM),
	}, nil
}

// ComputePositionSize returns collateral * leverage / entryPrice in quantity scale.
// Scale identity: qtyScale*priceScale == quoteScale*leverageScale, so the
// scaled computation reduces to collateral*leverage/entryPrice exactly.
func ComputePositionSize(collateral, leverage, entryPrice int64) int64 {
	scaled := MultiplyInt128(collateral, leverage)
	result := DivideInt128(scaled, entryPrice, RoundHalfEven)
	putInt128(scaled)
	return result
}

// ComputeImpliedLeverage returns positionSize * entryPrice / collateral in
// leverage scale. This is the inverse of ComputePositionSize and is used on
// resize, where the size stays fixed and the collateral moves.
func ComputeImpliedLeverage(positionSize, entryPrice, collateral int64) int64 {
	scaled := MultiplyInt128(positionSize, entryPrice)
	result := DivideInt128(scaled, collateral, RoundHalfEven)
	putInt128(scaled)
	return result
}

// ComputeLiquidationPrice returns the price at which the position becomes
// eligible for forced closure. The distance from entry is
// entry*(1-mm)/leverage; long positions liquidate below entry, shorts above.
func ComputeLiquidationPrice(entryPrice, leverage, sideSign, maintenancePPM int64) int64 {
	num := MultiplyInt128(entryPrice, FractionScale-maintenancePPM)
	num.Mul(num, big.NewInt(LeverageConfig.Scale))

	delta := DivideInt128(num, leverage*FractionScale, RoundHalfEven)
	putInt128(num)

	return entryPrice - sideSign*delta
}
