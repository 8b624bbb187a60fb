package engine

import (
	"fmt"
	"sync"
	"time"

	"PerpTrade/internal/event"
	"PerpTrade/internal/index"
	"PerpTrade/internal/market"
	fpmath "PerpTrade/internal/math"
	"PerpTrade/internal/observability"
	"PerpTrade/internal/oracle"
	"PerpTrade/internal/position"
	"PerpTrade/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink receives event envelopes as the engine commits mutations.
// Emit must not block for long: it runs under the engine lock.
type Sink interface {
	Emit(env *event.Envelope)
}

// Engine is the lifecycle controller for one market. All mutations run
// under a single lock, so each operation observes and produces a consistent
// triple of store, index, and vault state.
//
// Settlement ordering: validate and compute first, then call the vault,
// then commit in-memory state. The in-memory commit cannot fail, so a vault
// error always leaves positions untouched.
type Engine struct {
	mu sync.Mutex

	params *market.Params
	board  *oracle.Board
	vault  vault.Vault

	store  *position.Store
	longs  *index.Index
	shorts *index.Index

	hasher   *StateHasher
	sequence int64

	sink    Sink
	metrics *observability.Metrics
	log     zerolog.Logger
}

// CloseResult reports the outcome of a voluntary close.
type CloseResult struct {
	Position    position.Position
	ExitPrice   int64
	RealizedPnL int64
	Payout      int64
}

// LiquidationResult reports the outcome of a forced close.
type LiquidationResult struct {
	Position  position.Position
	MarkPrice int64
	Reward    int64
	Forfeited int64
}

func New(
	params *market.Params,
	board *oracle.Board,
	v vault.Vault,
	sink Sink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("engine for %s: %w", params.Market, err)
	}

	return &Engine{
		params:  params,
		board:   board,
		vault:   v,
		store:   position.NewStore(),
		longs:   index.New(event.SideLong),
		shorts:  index.New(event.SideShort),
		hasher:  NewStateHasher(),
		sink:    sink,
		metrics: metrics,
		log:     logger.With().Str("market", params.Market).Logger(),
	}, nil
}

// Market returns the market name this engine controls.
func (e *Engine) Market() string {
	return e.params.Market
}

// Params returns a copy of the market parameters.
func (e *Engine) Params() market.Params {
	return *e.params
}

// MarkPrice returns the current mark price for this engine's feed.
func (e *Engine) MarkPrice() (int64, bool) {
	return e.board.Price(e.params.Feed)
}

// Sequence returns the next event sequence to be assigned.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

func (e *Engine) indexFor(side event.Side) *index.Index {
	if side == event.SideShort {
		return e.shorts
	}
	return e.longs
}

// ============================================================================
// Mutations
// ============================================================================

// CreatePosition opens a leveraged position at the current mark price.
// Collateral is pulled from the owner's vault account before any state is
// committed.
func (e *Engine) CreatePosition(owner uuid.UUID, side event.Side, leverage, collateral int64) (position.Position, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	entryPrice, ok := e.board.Price(e.params.Feed)
	if !ok {
		e.reject("create", "no_mark_price")
		return position.Position{}, ErrNoMarkPrice
	}

	terms, err := fpmath.ComputeOpen(entryPrice, leverage, collateral, side.Sign(),
		e.params.MaxLeverage, e.params.MaintenancePPM)
	if err != nil {
		e.reject("create", "invalid")
		return position.Position{}, err
	}

	if err := e.vault.Pull(owner, e.params.CollateralAsset, collateral); err != nil {
		e.reject("create", "settlement")
		return position.Position{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	p := &position.Position{
		ID:               e.store.NextID(owner, e.params.Market),
		Owner:            owner,
		Market:           e.params.Market,
		Side:             side,
		Collateral:       collateral,
		Leverage:         leverage,
		PositionSize:     terms.PositionSize,
		EntryPrice:       entryPrice,
		LiquidationPrice: terms.LiquidationPrice,
		Status:           position.StatusOpen,
	}
	if err := e.store.Insert(p); err != nil {
		// NextID is nonce-unique; an insert collision means corrupted state.
		panic(fmt.Sprintf("FATAL: id collision in %s: %v", e.params.Market, err))
	}
	e.indexFor(side).Insert(p.LiquidationPrice, p.ID)

	e.emit(event.TypePositionOpened, &event.PositionOpened{
		PositionID:       p.ID.String(),
		Owner:            owner.String(),
		Side:             side.String(),
		Leverage:         leverage,
		Collateral:       collateral,
		PositionSize:     p.PositionSize,
		EntryPrice:       entryPrice,
		LiquidationPrice: p.LiquidationPrice,
	}, p.CanonicalBytes())

	e.applied("create", start)
	e.log.Info().
		Str("position_id", p.ID.String()).
		Str("side", side.String()).
		Int64("entry_price", entryPrice).
		Int64("liquidation_price", p.LiquidationPrice).
		Msg("position opened")

	return *p, nil
}

// ResizePosition adds or removes collateral on an open position. The
// position size never changes; the implied leverage and liquidation price
// move instead.
func (e *Engine) ResizePosition(sender uuid.UUID, id position.ID, collateralDelta int64) (position.Position, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.store.Get(id)
	if p == nil {
		e.reject("resize", "not_found")
		return position.Position{}, ErrPositionNotFound
	}
	if p.Owner != sender {
		e.reject("resize", "not_owner")
		return position.Position{}, ErrNotOwner
	}

	terms, err := fpmath.ComputeResize(p.EntryPrice, p.PositionSize, p.Collateral,
		collateralDelta, p.SideSign(), e.params.MaxLeverage, e.params.MaintenancePPM)
	if err != nil {
		e.reject("resize", "invalid")
		return position.Position{}, err
	}

	switch {
	case collateralDelta > 0:
		err = e.vault.Pull(sender, e.params.CollateralAsset, collateralDelta)
	case collateralDelta < 0:
		err = e.vault.Pay(sender, e.params.CollateralAsset, -collateralDelta)
	}
	if err != nil {
		e.reject("resize", "settlement")
		return position.Position{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	oldLiq := p.LiquidationPrice
	e.indexFor(p.Side).Remove(oldLiq, p.ID)
	p.Collateral = terms.NewCollateral
	p.Leverage = terms.NewLeverage
	p.LiquidationPrice = terms.NewLiquidationPrice
	p.Version++
	e.indexFor(p.Side).Insert(p.LiquidationPrice, p.ID)

	e.emit(event.TypePositionResized, &event.PositionResized{
		PositionID:          p.ID.String(),
		Owner:               p.Owner.String(),
		CollateralDelta:     collateralDelta,
		NewCollateral:       p.Collateral,
		NewLeverage:         p.Leverage,
		OldLiquidationPrice: oldLiq,
		NewLiquidationPrice: p.LiquidationPrice,
	}, p.CanonicalBytes())

	e.applied("resize", start)
	e.log.Info().
		Str("position_id", p.ID.String()).
		Int64("collateral_delta", collateralDelta).
		Int64("new_leverage", p.Leverage).
		Int64("liquidation_price", p.LiquidationPrice).
		Msg("position resized")

	return *p, nil
}

// ClosePosition settles an open position at the current mark price and
// pays out the remaining equity. Losses beyond the posted collateral are
// absorbed by the margin pool: the payout never goes negative.
func (e *Engine) ClosePosition(sender uuid.UUID, id position.ID) (CloseResult, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.store.Get(id)
	if p == nil {
		e.reject("close", "not_found")
		return CloseResult{}, ErrPositionNotFound
	}
	if p.Owner != sender {
		e.reject("close", "not_owner")
		return CloseResult{}, ErrNotOwner
	}

	exitPrice, ok := e.board.Price(e.params.Feed)
	if !ok {
		e.reject("close", "no_mark_price")
		return CloseResult{}, ErrNoMarkPrice
	}

	pnl := fpmath.ComputeRealizedPnL(p.SideSign(), exitPrice, p.EntryPrice, p.PositionSize)
	payout := p.Collateral + pnl
	if payout < 0 {
		payout = 0
	}

	if payout > 0 {
		if err := e.vault.Pay(sender, e.params.CollateralAsset, payout); err != nil {
			e.reject("close", "settlement")
			return CloseResult{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}

	e.store.Remove(id)
	e.indexFor(p.Side).Remove(p.LiquidationPrice, p.ID)
	p.Status = position.StatusClosed
	p.Version++

	e.emit(event.TypePositionClosed, &event.PositionClosed{
		PositionID:  p.ID.String(),
		Owner:       p.Owner.String(),
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		Payout:      payout,
	}, p.CanonicalBytes())

	e.applied("close", start)
	e.log.Info().
		Str("position_id", p.ID.String()).
		Int64("exit_price", exitPrice).
		Int64("realized_pnl", pnl).
		Int64("payout", payout).
		Msg("position closed")

	return CloseResult{Position: *p, ExitPrice: exitPrice, RealizedPnL: pnl, Payout: payout}, nil
}

// LiquidatePosition force-closes a position whose liquidation price has
// been crossed by the mark price. The liquidator earns a fee cut of the
// remaining collateral; the rest is forfeited to the insurance fund.
func (e *Engine) LiquidatePosition(liquidator uuid.UUID, id position.ID) (LiquidationResult, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.store.Get(id)
	if p == nil {
		e.reject("liquidate", "not_found")
		return LiquidationResult{}, ErrPositionNotFound
	}
	if p.Owner == liquidator {
		e.reject("liquidate", "self_liquidation")
		return LiquidationResult{}, ErrSelfLiquidation
	}

	markPrice, ok := e.board.Price(e.params.Feed)
	if !ok {
		e.reject("liquidate", "no_mark_price")
		return LiquidationResult{}, ErrNoMarkPrice
	}

	crossed := (p.Side == event.SideLong && markPrice <= p.LiquidationPrice) ||
		(p.Side == event.SideShort && markPrice >= p.LiquidationPrice)
	if !crossed {
		e.reject("liquidate", "not_liquidatable")
		return LiquidationResult{}, ErrNotLiquidatable
	}

	scaled := fpmath.MultiplyInt128(p.Collateral, e.params.LiquidationFeePPM)
	reward := fpmath.DivideInt128(scaled, fpmath.FractionScale, fpmath.RoundDown)
	forfeited := p.Collateral - reward

	// Profitable closes draw unrealized PnL from the same pool, so the pool
	// may no longer cover this position's collateral. Both settlement legs
	// go through one atomic vault call: a shortfall aborts the liquidation
	// with no partial payout and the position stays open.
	if err := e.vault.SettleLiquidation(liquidator, e.params.CollateralAsset, reward, forfeited); err != nil {
		e.reject("liquidate", "settlement")
		return LiquidationResult{}, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	e.store.Remove(id)
	e.indexFor(p.Side).Remove(p.LiquidationPrice, p.ID)
	p.Status = position.StatusLiquidated
	p.Version++

	e.emit(event.TypePositionLiquidated, &event.PositionLiquidated{
		PositionID:       p.ID.String(),
		Owner:            p.Owner.String(),
		Liquidator:       liquidator.String(),
		MarkPrice:        markPrice,
		LiquidationPrice: p.LiquidationPrice,
		Reward:           reward,
		Forfeited:        forfeited,
	}, p.CanonicalBytes())

	e.applied("liquidate", start)
	if e.metrics != nil {
		e.metrics.LiquidationsTotal.WithLabelValues(e.params.Market).Inc()
		e.metrics.LiquidationReward.WithLabelValues(e.params.Market).Add(float64(reward))
		e.metrics.ForfeitedTotal.WithLabelValues(e.params.Market).Add(float64(forfeited))
	}
	e.log.Info().
		Str("position_id", p.ID.String()).
		Str("liquidator", liquidator.String()).
		Int64("mark_price", markPrice).
		Int64("reward", reward).
		Int64("forfeited", forfeited).
		Msg("position liquidated")

	return LiquidationResult{Position: *p, MarkPrice: markPrice, Reward: reward, Forfeited: forfeited}, nil
}

// ============================================================================
// Reads
// ============================================================================

// GetPosition returns a copy of an open position.
func (e *Engine) GetPosition(id position.ID) (position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.store.Get(id)
	if p == nil {
		return position.Position{}, ErrPositionNotFound
	}
	return *p, nil
}

// PositionsByOwner returns copies of the owner's open positions in
// creation order.
func (e *Engine) PositionsByOwner(owner uuid.UUID) []position.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.store.ByOwner(owner)
	out := make([]position.Position, 0, len(ids))
	for _, id := range ids {
		if p := e.store.Get(id); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// TopLongs returns up to k long position ids closest to liquidation at the
// current mark price.
func (e *Engine) TopLongs(k int) ([]position.ID, error) {
	return e.topK(e.longs, k)
}

// TopShorts returns up to k short position ids closest to liquidation at
// the current mark price.
func (e *Engine) TopShorts(k int) ([]position.ID, error) {
	return e.topK(e.shorts, k)
}

func (e *Engine) topK(ix *index.Index, k int) ([]position.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	markPrice, ok := e.board.Price(e.params.Feed)
	if !ok {
		return nil, ErrNoMarkPrice
	}
	return ix.TopK(k, markPrice), nil
}

// BucketAtPrice returns the ids whose liquidation price is exactly price,
// longs first, each side in insertion order. A price can in principle carry
// buckets on both sides.
func (e *Engine) BucketAtPrice(price int64) []position.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.longs.Bucket(price)
	return append(out, e.shorts.Bucket(price)...)
}

// OpenCount returns the number of open positions per side.
func (e *Engine) OpenCount() (longs, shorts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.longs.Len(), e.shorts.Len()
}

// ============================================================================
// Event emission
// ============================================================================

func (e *Engine) emit(t event.Type, payload interface{}, stateDigest []byte) {
	prev := e.hasher.Tip()
	stateHash := e.hasher.ComputeHash(e.sequence, stateDigest)

	env := &event.Envelope{
		Sequence:  e.sequence,
		Market:    e.params.Market,
		Type:      t,
		Timestamp: time.Now().UTC(),
		StateHash: stateHash,
		PrevHash:  prev,
		Payload:   payload,
	}
	e.sequence++

	if e.sink != nil {
		e.sink.Emit(env)
	}
	if e.metrics != nil {
		e.metrics.EngineSequence.WithLabelValues(e.params.Market).Set(float64(e.sequence))
	}
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.EngineOpsApplied.WithLabelValues(e.params.Market, op).Inc()
	e.metrics.EngineOpDuration.WithLabelValues(e.params.Market, op).Observe(time.Since(start).Seconds())
	e.metrics.OpenPositions.WithLabelValues(e.params.Market, event.SideLong.String()).Set(float64(e.longs.Len()))
	e.metrics.OpenPositions.WithLabelValues(e.params.Market, event.SideShort.String()).Set(float64(e.shorts.Len()))
	e.metrics.IndexPriceLevels.WithLabelValues(e.params.Market, event.SideLong.String()).Set(float64(e.longs.PriceLevels()))
	e.metrics.IndexPriceLevels.WithLabelValues(e.params.Market, event.SideShort.String()).Set(float64(e.shorts.PriceLevels()))
}

func (e *Engine) reject(op, reason string) {
	if e.metrics == nil {
		return
	}
	e.metrics.EngineOpsRejected.WithLabelValues(e.params.Market, op, reason).Inc()
}
