package market

import (
	"fmt"

	fpmath "PerpTrade/internal/math"
	"PerpTrade/internal/vault"
)

// Params defines the trading parameters for one market
type Params struct {
	Market            string // Market name, e.g. "ETH-USDT"
	Feed              string // Oracle feed the market prices against
	CollateralAsset   string // Asset positions post collateral in
	MaxLeverage       int64  // Fixed-point: leverage scale (1500 = 15.00x)
	MaintenancePPM    int64  // Maintenance fraction (scale=1_000_000; 96_000 = 9.6%)
	LiquidationFeePPM int64  // Liquidator's cut of remaining collateral (scale=1_000_000)
}

var (
	// Default market params (MVP)
	DefaultParams = map[string]*Params{
		"ETH-USDT": {
			Market:            "ETH-USDT",
			Feed:              "ETH-FEED",
			CollateralAsset:   "USDT",
			MaxLeverage:       1500, // 15x
			MaintenancePPM:    96_000,
			LiquidationFeePPM: 50_000, // 5%
		},
		"BTC-USDT": {
			Market:            "BTC-USDT",
			Feed:              "BTC-FEED",
			CollateralAsset:   "USDT",
			MaxLeverage:       1500,
			MaintenancePPM:    96_000,
			LiquidationFeePPM: 50_000,
		},
	}
)

// Validate checks that market parameters are within valid ranges:
// max_leverage >= 1x, maintenance in (0, 1_000_000), fee in [0, 1_000_000].
func (p *Params) Validate() error {
	if p.Market == "" {
		return fmt.Errorf("market name must be set")
	}
	if p.Feed == "" {
		return fmt.Errorf("feed must be set for market %s", p.Market)
	}
	if _, ok := vault.GetAssetID(p.CollateralAsset); !ok {
		return fmt.Errorf("unknown collateral asset %q for market %s", p.CollateralAsset, p.Market)
	}
	if p.MaxLeverage < fpmath.LeverageConfig.Scale {
		return fmt.Errorf("max_leverage must be >= %d, got %d", fpmath.LeverageConfig.Scale, p.MaxLeverage)
	}
	if p.MaintenancePPM <= 0 || p.MaintenancePPM >= fpmath.FractionScale {
		return fmt.Errorf("maintenance_ppm must be in (0, %d), got %d", fpmath.FractionScale, p.MaintenancePPM)
	}
	if p.LiquidationFeePPM < 0 || p.LiquidationFeePPM > fpmath.FractionScale {
		return fmt.Errorf("liquidation_fee_ppm must be in [0, %d], got %d", fpmath.FractionScale, p.LiquidationFeePPM)
	}
	return nil
}
