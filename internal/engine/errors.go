package engine

import "errors"

// Operation errors. Callers match these with errors.Is; the HTTP layer maps
// them onto status codes.
var (
	ErrPositionNotFound = errors.New("position does not exist")
	ErrNotOwner         = errors.New("sender != owner")
	ErrSelfLiquidation  = errors.New("you cannot liquidate your own position")
	ErrNotLiquidatable  = errors.New("cannot be liquidated")
	ErrNoMarkPrice      = errors.New("no mark price published for market")
	ErrSettlementFailed = errors.New("settlement failed")
)
