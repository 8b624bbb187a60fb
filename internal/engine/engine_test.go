package engine_test

import (
	"errors"
	"testing"

	"PerpTrade/internal/engine"
	"PerpTrade/internal/event"
	"PerpTrade/internal/market"
	fpmath "PerpTrade/internal/math"
	"PerpTrade/internal/oracle"
	"PerpTrade/internal/position"
	"PerpTrade/internal/vault"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	entry2400      = 240000        // 2400.00 in price scale
	collateral1000 = 1_000_000_000 // 1000 USDT in quote scale
	funding        = 10_000_000_000

	liqLong5x  = 196608 // 1966.08
	liqShort5x = 283392 // 2833.92
)

type captureSink struct {
	envelopes []*event.Envelope
}

func (s *captureSink) Emit(env *event.Envelope) {
	s.envelopes = append(s.envelopes, env)
}

type harness struct {
	board   *oracle.Board
	ledger  *vault.Ledger
	eng     *engine.Engine
	sink    *captureSink
	feedSeq int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		board:  oracle.NewBoard(),
		ledger: vault.NewLedger(),
		sink:   &captureSink{},
	}

	params := &market.Params{
		Market:            "ETH-USDT",
		Feed:              "ETH-FEED",
		CollateralAsset:   "USDT",
		MaxLeverage:       1500,
		MaintenancePPM:    96_000,
		LiquidationFeePPM: 50_000,
	}

	eng, err := engine.New(params, h.board, h.ledger, h.sink, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	h.eng = eng
	return h
}

func (h *harness) setMark(t *testing.T, price int64) {
	t.Helper()
	h.feedSeq++
	if err := h.board.Set("ETH-FEED", price, h.feedSeq, h.feedSeq*1000); err != nil {
		t.Fatalf("set mark: %v", err)
	}
}

func (h *harness) fund(t *testing.T, owner uuid.UUID, amount int64) {
	t.Helper()
	if err := h.ledger.Deposit(owner, "USDT", amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func (h *harness) openLong5x(t *testing.T, owner uuid.UUID) position.Position {
	t.Helper()
	h.fund(t, owner, funding)
	p, err := h.eng.CreatePosition(owner, event.SideLong, 500, collateral1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

// ============================================================================
// CreatePosition
// ============================================================================

func TestCreatePosition_Long5x(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	h.fund(t, owner, funding)

	p, err := h.eng.CreatePosition(owner, event.SideLong, 500, collateral1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if p.EntryPrice != entry2400 {
		t.Errorf("entry: %d", p.EntryPrice)
	}
	if p.PositionSize != 2083333 {
		t.Errorf("size: %d, want 2083333", p.PositionSize)
	}
	if p.LiquidationPrice != liqLong5x {
		t.Errorf("liq: %d, want %d", p.LiquidationPrice, liqLong5x)
	}
	if p.Status != position.StatusOpen {
		t.Errorf("status: %v", p.Status)
	}

	if got := h.ledger.Balance(owner, "USDT"); got != funding-collateral1000 {
		t.Errorf("owner balance: %d", got)
	}
	if got := h.ledger.PoolBalance("USDT"); got != collateral1000 {
		t.Errorf("pool: %d", got)
	}

	if bucket := h.eng.BucketAtPrice(liqLong5x); len(bucket) != 1 || bucket[0] != p.ID {
		t.Errorf("index bucket: %v", bucket)
	}
}

func TestCreatePosition_Short5x(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	h.fund(t, owner, funding)

	p, err := h.eng.CreatePosition(owner, event.SideShort, 500, collateral1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.LiquidationPrice != liqShort5x {
		t.Errorf("liq: %d, want %d", p.LiquidationPrice, liqShort5x)
	}
	if bucket := h.eng.BucketAtPrice(liqShort5x); len(bucket) != 1 {
		t.Errorf("short bucket: %v", bucket)
	}
}

func TestCreatePosition_NoMarkPrice(t *testing.T) {
	h := newHarness(t)
	owner := uuid.New()
	h.fund(t, owner, funding)

	_, err := h.eng.CreatePosition(owner, event.SideLong, 500, collateral1000)
	if !errors.Is(err, engine.ErrNoMarkPrice) {
		t.Fatalf("got %v, want ErrNoMarkPrice", err)
	}
}

func TestCreatePosition_InvalidInputsLeaveVaultUntouched(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	h.fund(t, owner, funding)

	if _, err := h.eng.CreatePosition(owner, event.SideLong, 50, collateral1000); !errors.Is(err, fpmath.ErrInvalidLeverage) {
		t.Errorf("sub-1x leverage: got %v", err)
	}
	if _, err := h.eng.CreatePosition(owner, event.SideLong, 1600, collateral1000); !errors.Is(err, fpmath.ErrInvalidLeverage) {
		t.Errorf("over-max leverage: got %v", err)
	}
	if _, err := h.eng.CreatePosition(owner, event.SideLong, 500, 0); !errors.Is(err, fpmath.ErrInvalidCollateral) {
		t.Errorf("zero collateral: got %v", err)
	}

	if got := h.ledger.Balance(owner, "USDT"); got != funding {
		t.Errorf("rejected creates must not move funds, balance=%d", got)
	}
}

func TestCreatePosition_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	h.fund(t, owner, 100)

	_, err := h.eng.CreatePosition(owner, event.SideLong, 500, collateral1000)
	if !errors.Is(err, engine.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	if got := h.eng.PositionsByOwner(owner); len(got) != 0 {
		t.Errorf("no position should exist after failed settlement: %v", got)
	}
}

// ============================================================================
// ResizePosition
// ============================================================================

func TestResizePosition_AddCollateralMovesLiquidationOut(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	got, err := h.eng.ResizePosition(owner, p.ID, collateral1000)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}

	if got.Collateral != 2*collateral1000 {
		t.Errorf("collateral: %d", got.Collateral)
	}
	if got.Leverage != 250 {
		t.Errorf("leverage: %d, want 250", got.Leverage)
	}
	if got.LiquidationPrice != 153216 {
		t.Errorf("liq: %d, want 153216", got.LiquidationPrice)
	}
	if got.PositionSize != p.PositionSize {
		t.Errorf("size must not change on resize: %d", got.PositionSize)
	}

	if bucket := h.eng.BucketAtPrice(liqLong5x); len(bucket) != 0 {
		t.Errorf("old bucket should be empty: %v", bucket)
	}
	if bucket := h.eng.BucketAtPrice(153216); len(bucket) != 1 {
		t.Errorf("new bucket should hold the id: %v", bucket)
	}
}

func TestResizePosition_RemoveCollateralMovesLiquidationIn(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)
	before := h.ledger.Balance(owner, "USDT")

	got, err := h.eng.ResizePosition(owner, p.ID, -collateral1000/2)
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if got.Leverage != 1000 {
		t.Errorf("leverage: %d, want 1000", got.Leverage)
	}
	if got.LiquidationPrice <= liqLong5x {
		t.Errorf("withdrawing collateral must move liquidation toward entry: %d", got.LiquidationPrice)
	}
	if bal := h.ledger.Balance(owner, "USDT"); bal != before+collateral1000/2 {
		t.Errorf("withdrawn collateral should return to owner: %d", bal)
	}
}

func TestResizePosition_AccessAndBounds(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	if _, err := h.eng.ResizePosition(uuid.New(), p.ID, 100); !errors.Is(err, engine.ErrNotOwner) {
		t.Errorf("foreign sender: got %v", err)
	}
	var unknown position.ID
	if _, err := h.eng.ResizePosition(owner, unknown, 100); !errors.Is(err, engine.ErrPositionNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
	if _, err := h.eng.ResizePosition(owner, p.ID, -collateral1000); !errors.Is(err, fpmath.ErrInvalidCollateral) {
		t.Errorf("full withdrawal: got %v", err)
	}
	if _, err := h.eng.ResizePosition(owner, p.ID, -collateral1000+1000); !errors.Is(err, fpmath.ErrInvalidLeverage) {
		t.Errorf("near-full withdrawal breaches max leverage: got %v", err)
	}

	// Failed resizes must leave the index untouched.
	if bucket := h.eng.BucketAtPrice(liqLong5x); len(bucket) != 1 {
		t.Errorf("bucket after failed resizes: %v", bucket)
	}
}

// ============================================================================
// ClosePosition
// ============================================================================

func TestClosePosition_ProfitPayout(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	// Counterparty collateral funds the pool for the winner's payout.
	counterparty := uuid.New()
	h.fund(t, counterparty, funding)
	if _, err := h.eng.CreatePosition(counterparty, event.SideShort, 500, 5*collateral1000); err != nil {
		t.Fatalf("counterparty: %v", err)
	}

	h.setMark(t, 290000) // 2900.00
	before := h.ledger.Balance(owner, "USDT")

	res, err := h.eng.ClosePosition(owner, p.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	wantPnL := int64(1_041_666_500)
	if res.RealizedPnL != wantPnL {
		t.Errorf("pnl: %d, want %d", res.RealizedPnL, wantPnL)
	}
	if res.Payout != collateral1000+wantPnL {
		t.Errorf("payout: %d", res.Payout)
	}
	if res.Position.Status != position.StatusClosed {
		t.Errorf("status: %v", res.Position.Status)
	}

	if bal := h.ledger.Balance(owner, "USDT"); bal != before+res.Payout {
		t.Errorf("balance after close: %d", bal)
	}
	if _, err := h.eng.GetPosition(p.ID); !errors.Is(err, engine.ErrPositionNotFound) {
		t.Errorf("closed position should be gone: %v", err)
	}
	if bucket := h.eng.BucketAtPrice(liqLong5x); len(bucket) != 0 {
		t.Errorf("bucket after close: %v", bucket)
	}
}

func TestClosePosition_LossBeyondCollateralPaysNothing(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	// 2400 -> 1900: loss = 500 * 2.083333 ETH > 1000 USDT collateral.
	h.setMark(t, 190000)
	before := h.ledger.Balance(owner, "USDT")

	res, err := h.eng.ClosePosition(owner, p.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if res.Payout != 0 {
		t.Errorf("payout: %d, want 0", res.Payout)
	}
	if res.RealizedPnL >= 0 {
		t.Errorf("pnl should be negative: %d", res.RealizedPnL)
	}
	if bal := h.ledger.Balance(owner, "USDT"); bal != before {
		t.Errorf("no payout expected, balance=%d", bal)
	}
}

func TestClosePosition_AccessErrors(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	if _, err := h.eng.ClosePosition(uuid.New(), p.ID); !errors.Is(err, engine.ErrNotOwner) {
		t.Errorf("foreign sender: got %v", err)
	}
	var unknown position.ID
	if _, err := h.eng.ClosePosition(owner, unknown); !errors.Is(err, engine.ErrPositionNotFound) {
		t.Errorf("unknown id: got %v", err)
	}
}

// ============================================================================
// LiquidatePosition
// ============================================================================

func TestLiquidatePosition_LongAtBoundary(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)
	liquidator := uuid.New()

	h.setMark(t, liqLong5x) // exactly at the liquidation price

	res, err := h.eng.LiquidatePosition(liquidator, p.ID)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	wantReward := int64(50_000_000) // 5% of 1000 USDT
	if res.Reward != wantReward {
		t.Errorf("reward: %d, want %d", res.Reward, wantReward)
	}
	if res.Forfeited != collateral1000-wantReward {
		t.Errorf("forfeited: %d", res.Forfeited)
	}
	if res.Position.Status != position.StatusLiquidated {
		t.Errorf("status: %v", res.Position.Status)
	}

	if bal := h.ledger.Balance(liquidator, "USDT"); bal != wantReward {
		t.Errorf("liquidator balance: %d", bal)
	}
	if got := h.ledger.InsuranceBalance("USDT"); got != collateral1000-wantReward {
		t.Errorf("insurance: %d", got)
	}
	if _, err := h.eng.GetPosition(p.ID); !errors.Is(err, engine.ErrPositionNotFound) {
		t.Errorf("liquidated position should be gone: %v", err)
	}
	if bucket := h.eng.BucketAtPrice(liqLong5x); len(bucket) != 0 {
		t.Errorf("bucket after liquidation: %v", bucket)
	}
}

func TestLiquidatePosition_ShortWhenPriceRises(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	h.fund(t, owner, funding)
	p, err := h.eng.CreatePosition(owner, event.SideShort, 500, collateral1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.setMark(t, liqShort5x+100)
	if _, err := h.eng.LiquidatePosition(uuid.New(), p.ID); err != nil {
		t.Fatalf("short past its liquidation price must be liquidatable: %v", err)
	}
}

func TestLiquidatePosition_Guards(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	if _, err := h.eng.LiquidatePosition(owner, p.ID); !errors.Is(err, engine.ErrSelfLiquidation) {
		t.Errorf("self liquidation: got %v", err)
	}
	var unknown position.ID
	if _, err := h.eng.LiquidatePosition(uuid.New(), unknown); !errors.Is(err, engine.ErrPositionNotFound) {
		t.Errorf("unknown id: got %v", err)
	}

	// 2000.00 is above the 1966.08 liquidation price: still healthy.
	h.setMark(t, 200000)
	if _, err := h.eng.LiquidatePosition(uuid.New(), p.ID); !errors.Is(err, engine.ErrNotLiquidatable) {
		t.Errorf("healthy position: got %v", err)
	}
	if _, err := h.eng.GetPosition(p.ID); err != nil {
		t.Errorf("failed liquidation must not remove the position: %v", err)
	}
}

func TestLiquidatePosition_DrainedPoolAbortsWithoutPartialPayout(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)

	winner := uuid.New()
	pWin := h.openLong5x(t, winner)

	loser := uuid.New()
	h.fund(t, loser, funding)
	pLose, err := h.eng.CreatePosition(loser, event.SideShort, 1000, collateral1000) // 10x, liq 2616.96
	if err != nil {
		t.Fatalf("create short: %v", err)
	}

	// 2832.00: the long is deep in profit, the short past its liquidation
	// price. Closing the winner pays unrealized PnL out of the margin pool,
	// leaving it below the short's collateral.
	h.setMark(t, 283200)
	if _, err := h.eng.ClosePosition(winner, pWin.ID); err != nil {
		t.Fatalf("close winner: %v", err)
	}
	if pool := h.ledger.PoolBalance("USDT"); pool >= collateral1000 {
		t.Fatalf("pool should be drained below the short's collateral: %d", pool)
	}

	liquidator := uuid.New()
	_, err = h.eng.LiquidatePosition(liquidator, pLose.ID)
	if !errors.Is(err, engine.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}

	// No partial payout: neither the reward nor the forfeit may have moved.
	if bal := h.ledger.Balance(liquidator, "USDT"); bal != 0 {
		t.Errorf("liquidator must not be paid on a shortfall: %d", bal)
	}
	if got := h.ledger.InsuranceBalance("USDT"); got != 0 {
		t.Errorf("insurance must not be credited on a shortfall: %d", got)
	}

	// The position stays open and indexed.
	got, err := h.eng.GetPosition(pLose.ID)
	if err != nil {
		t.Fatalf("position must survive a failed liquidation: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("status: %v", got.Status)
	}
	if bucket := h.eng.BucketAtPrice(pLose.LiquidationPrice); len(bucket) != 1 {
		t.Errorf("bucket after failed liquidation: %v", bucket)
	}
}

// ============================================================================
// Settlement atomicity
// ============================================================================

type failingVault struct {
	pullErr   error
	payErr    error
	settleErr error
}

func (v *failingVault) Pull(owner uuid.UUID, asset string, amount int64) error { return v.pullErr }
func (v *failingVault) Pay(owner uuid.UUID, asset string, amount int64) error  { return v.payErr }
func (v *failingVault) SettleLiquidation(liquidator uuid.UUID, asset string, reward, forfeited int64) error {
	return v.settleErr
}

func TestSettlementFailureRollsBack(t *testing.T) {
	board := oracle.NewBoard()
	if err := board.Set("ETH-FEED", entry2400, 1, 0); err != nil {
		t.Fatalf("set mark: %v", err)
	}
	fv := &failingVault{}
	params := &market.Params{
		Market:            "ETH-USDT",
		Feed:              "ETH-FEED",
		CollateralAsset:   "USDT",
		MaxLeverage:       1500,
		MaintenancePPM:    96_000,
		LiquidationFeePPM: 50_000,
	}
	eng, err := engine.New(params, board, fv, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	owner := uuid.New()
	p, err := eng.CreatePosition(owner, event.SideLong, 500, collateral1000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Payout fails: the close must not commit.
	fv.payErr = errors.New("wire down")
	if _, err := eng.ClosePosition(owner, p.ID); !errors.Is(err, engine.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	got, err := eng.GetPosition(p.ID)
	if err != nil {
		t.Fatalf("position must survive a failed close: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("status: %v", got.Status)
	}
	if bucket := eng.BucketAtPrice(liqLong5x); len(bucket) != 1 {
		t.Errorf("index must survive a failed close: %v", bucket)
	}

	// Pull fails: the create must not commit.
	fv.pullErr = errors.New("wire down")
	if _, err := eng.CreatePosition(owner, event.SideLong, 500, collateral1000); !errors.Is(err, engine.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	if got := eng.PositionsByOwner(owner); len(got) != 1 {
		t.Errorf("only the original position should exist: %d", len(got))
	}

	// Liquidation settlement fails: the position must stay open.
	fv.payErr = nil
	fv.settleErr = errors.New("wire down")
	if err := board.Set("ETH-FEED", liqLong5x, 2, 0); err != nil {
		t.Fatalf("set mark: %v", err)
	}
	if _, err := eng.LiquidatePosition(uuid.New(), p.ID); !errors.Is(err, engine.ErrSettlementFailed) {
		t.Fatalf("got %v, want ErrSettlementFailed", err)
	}
	got, err = eng.GetPosition(p.ID)
	if err != nil {
		t.Fatalf("position must survive a failed liquidation: %v", err)
	}
	if got.Status != position.StatusOpen {
		t.Errorf("status: %v", got.Status)
	}
	if bucket := eng.BucketAtPrice(liqLong5x); len(bucket) != 1 {
		t.Errorf("index must survive a failed liquidation: %v", bucket)
	}
}

// ============================================================================
// Risk ordering
// ============================================================================

func TestTopLongs_OrdersByProximityToLiquidation(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)

	riskiest := uuid.New()
	h.fund(t, riskiest, funding)
	pRisky, err := h.eng.CreatePosition(riskiest, event.SideLong, 1000, collateral1000) // 10x
	if err != nil {
		t.Fatalf("create 10x: %v", err)
	}

	safer := uuid.New()
	h.fund(t, safer, funding)
	pSafe, err := h.eng.CreatePosition(safer, event.SideLong, 200, collateral1000) // 2x
	if err != nil {
		t.Fatalf("create 2x: %v", err)
	}

	ids, err := h.eng.TopLongs(10)
	if err != nil {
		t.Fatalf("top longs: %v", err)
	}
	if len(ids) != 2 || ids[0] != pRisky.ID || ids[1] != pSafe.ID {
		t.Fatalf("risk order wrong: %v (risky=%s safe=%s)", ids, pRisky.ID, pSafe.ID)
	}

	shorts, err := h.eng.TopShorts(10)
	if err != nil {
		t.Fatalf("top shorts: %v", err)
	}
	if len(shorts) != 0 {
		t.Errorf("no shorts open, got %v", shorts)
	}
}

func TestBucketAtPrice_SpansBothSides(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	long := uuid.New()
	pLong := h.openLong5x(t, long) // liq 1966.08

	// A 4.52x short entered at 1638.40 liquidates at 1638.40 + 1638.40*0.2,
	// the same 1966.08 price level as the long.
	h.setMark(t, 163840)
	short := uuid.New()
	h.fund(t, short, funding)
	pShort, err := h.eng.CreatePosition(short, event.SideShort, 452, collateral1000)
	if err != nil {
		t.Fatalf("create short: %v", err)
	}
	if pShort.LiquidationPrice != liqLong5x {
		t.Fatalf("short liq: %d, want %d", pShort.LiquidationPrice, liqLong5x)
	}

	bucket := h.eng.BucketAtPrice(liqLong5x)
	if len(bucket) != 2 || bucket[0] != pLong.ID || bucket[1] != pShort.ID {
		t.Errorf("bucket should list longs then shorts: %v", bucket)
	}
}

// ============================================================================
// Event chain
// ============================================================================

func TestEventChain_SequencesAndHashesLink(t *testing.T) {
	h := newHarness(t)
	h.setMark(t, entry2400)
	owner := uuid.New()
	p := h.openLong5x(t, owner)

	if _, err := h.eng.ResizePosition(owner, p.ID, collateral1000); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if _, err := h.eng.ClosePosition(owner, p.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	envs := h.sink.envelopes
	if len(envs) != 3 {
		t.Fatalf("got %d envelopes, want 3", len(envs))
	}

	wantTypes := []event.Type{event.TypePositionOpened, event.TypePositionResized, event.TypePositionClosed}
	for i, env := range envs {
		if env.Sequence != int64(i) {
			t.Errorf("envelope %d: sequence %d", i, env.Sequence)
		}
		if env.Type != wantTypes[i] {
			t.Errorf("envelope %d: type %v, want %v", i, env.Type, wantTypes[i])
		}
		if env.Market != "ETH-USDT" {
			t.Errorf("envelope %d: market %s", i, env.Market)
		}
		if i > 0 && env.PrevHash != envs[i-1].StateHash {
			t.Errorf("envelope %d: prev hash does not link to previous state hash", i)
		}
		if env.StateHash == env.PrevHash {
			t.Errorf("envelope %d: state hash must advance", i)
		}
	}
}
