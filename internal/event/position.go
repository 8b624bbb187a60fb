package event

// PositionOpened is emitted when a position is created.
type PositionOpened struct {
	PositionID       string `json:"position_id"`
	Owner            string `json:"owner"`
	Side             string `json:"side"`
	Leverage         int64  `json:"leverage"`
	Collateral       int64  `json:"collateral"`
	PositionSize     int64  `json:"position_size"`
	EntryPrice       int64  `json:"entry_price"`
	LiquidationPrice int64  `json:"liquidation_price"`
}

// PositionResized is emitted when a position's collateral changes.
type PositionResized struct {
	PositionID          string `json:"position_id"`
	Owner               string `json:"owner"`
	CollateralDelta     int64  `json:"collateral_delta"`
	NewCollateral       int64  `json:"new_collateral"`
	NewLeverage         int64  `json:"new_leverage"`
	OldLiquidationPrice int64  `json:"old_liquidation_price"`
	NewLiquidationPrice int64  `json:"new_liquidation_price"`
}

// PositionClosed is emitted when the owner closes a position.
type PositionClosed struct {
	PositionID  string `json:"position_id"`
	Owner       string `json:"owner"`
	ExitPrice   int64  `json:"exit_price"`
	RealizedPnL int64  `json:"realized_pnl"`
	Payout      int64  `json:"payout"`
}

// PositionLiquidated is emitted when a third party liquidates a position.
type PositionLiquidated struct {
	PositionID       string `json:"position_id"`
	Owner            string `json:"owner"`
	Liquidator       string `json:"liquidator"`
	MarkPrice        int64  `json:"mark_price"`
	LiquidationPrice int64  `json:"liquidation_price"`
	Reward           int64  `json:"reward"`
	Forfeited        int64  `json:"forfeited"`
}

// MarkPriceUpdate is the inbound price-feed payload.
// PriceSequence orders updates per feed; stale sequences are dropped.
type MarkPriceUpdate struct {
	Feed          string `json:"feed"`
	Price         int64  `json:"price"`
	PriceSequence int64  `json:"price_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}
