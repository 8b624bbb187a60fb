package vault

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Vault is the fund-custody boundary the engine settles against. Every call
// either fully succeeds or leaves balances untouched; the engine commits
// position state only after the vault call returns nil.
type Vault interface {
	// Pull moves amount from the owner's collateral into the margin pool.
	Pull(owner uuid.UUID, asset string, amount int64) error
	// Pay moves amount from the margin pool to the owner's collateral.
	Pay(owner uuid.UUID, asset string, amount int64) error
	// SettleLiquidation pays the liquidator's reward and forfeits the
	// remainder to the insurance fund in one atomic step. Both legs debit
	// the margin pool; if the pool cannot cover reward+forfeited, nothing
	// moves.
	SettleLiquidation(liquidator uuid.UUID, asset string, reward, forfeited int64) error
}

// Ledger is a zero-sum double-entry vault: every transfer debits one
// account and credits another, so balances across all accounts always sum
// to zero per asset. Deposits enter through the external boundary account.
type Ledger struct {
	mu       sync.Mutex
	balances map[AccountKey]int64
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[AccountKey]int64),
	}
}

// transfer debits from and credits to. Fails without side effects when the
// debited account would go negative; external boundary accounts are exempt
// (they mirror funds held outside the system and run negative by design
// of double-entry bookkeeping).
func (l *Ledger) transfer(from, to AccountKey, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("transfer amount must be >= 0, got %d", amount)
	}
	if from.Scope != AccountScopeExternal && l.balances[from] < amount {
		return fmt.Errorf("insufficient balance in %s: have=%d, need=%d",
			from.AccountPath(), l.balances[from], amount)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func resolveAsset(asset string) (AssetID, error) {
	id, ok := GetAssetID(asset)
	if !ok {
		return 0, fmt.Errorf("unknown asset %q", asset)
	}
	return id, nil
}

// Deposit credits the owner's collateral from the external boundary.
func (l *Ledger) Deposit(owner uuid.UUID, asset string, amount int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be > 0, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(NewExternalAccountKey(assetID), NewUserAccountKey(owner, assetID), amount)
}

// Withdraw debits the owner's collateral back to the external boundary.
func (l *Ledger) Withdraw(owner uuid.UUID, asset string, amount int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return fmt.Errorf("withdrawal amount must be > 0, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(NewUserAccountKey(owner, assetID), NewExternalAccountKey(assetID), amount)
}

func (l *Ledger) Pull(owner uuid.UUID, asset string, amount int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(
		NewUserAccountKey(owner, assetID),
		NewSystemAccountKey(SubTypeSystemMarginPool, assetID),
		amount,
	)
}

func (l *Ledger) Pay(owner uuid.UUID, asset string, amount int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(
		NewSystemAccountKey(SubTypeSystemMarginPool, assetID),
		NewUserAccountKey(owner, assetID),
		amount,
	)
}

// Forfeit moves amount from the margin pool to the insurance fund.
func (l *Ledger) Forfeit(asset string, amount int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(
		NewSystemAccountKey(SubTypeSystemMarginPool, assetID),
		NewSystemAccountKey(SubTypeSystemInsuranceFund, assetID),
		amount,
	)
}

// SettleLiquidation distributes a liquidated position's collateral: reward
// to the liquidator, forfeited to the insurance fund. The pool balance is
// checked against the full sum up front, under the same lock as the
// transfers, so a shortfall can never leave a partial payout behind.
func (l *Ledger) SettleLiquidation(liquidator uuid.UUID, asset string, reward, forfeited int64) error {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return err
	}
	if reward < 0 || forfeited < 0 {
		return fmt.Errorf("liquidation amounts must be >= 0, got reward=%d forfeited=%d", reward, forfeited)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pool := NewSystemAccountKey(SubTypeSystemMarginPool, assetID)
	if l.balances[pool] < reward+forfeited {
		return fmt.Errorf("insufficient balance in %s: have=%d, need=%d",
			pool.AccountPath(), l.balances[pool], reward+forfeited)
	}
	if reward > 0 {
		if err := l.transfer(pool, NewUserAccountKey(liquidator, assetID), reward); err != nil {
			return err
		}
	}
	if forfeited > 0 {
		return l.transfer(pool, NewSystemAccountKey(SubTypeSystemInsuranceFund, assetID), forfeited)
	}
	return nil
}

// Balance returns the owner's free collateral for asset.
func (l *Ledger) Balance(owner uuid.UUID, asset string) int64 {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[NewUserAccountKey(owner, assetID)]
}

// PoolBalance returns the margin pool balance for asset.
func (l *Ledger) PoolBalance(asset string) int64 {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[NewSystemAccountKey(SubTypeSystemMarginPool, assetID)]
}

// InsuranceBalance returns the insurance fund balance for asset.
func (l *Ledger) InsuranceBalance(asset string) int64 {
	assetID, err := resolveAsset(asset)
	if err != nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[NewSystemAccountKey(SubTypeSystemInsuranceFund, assetID)]
}

// GlobalSum returns the per-asset sum of all balances (0 for a zero-sum ledger).
func (l *Ledger) GlobalSum() map[AssetID]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := make(map[AssetID]int64)
	for key, balance := range l.balances {
		totals[key.AssetID] += balance
	}
	return totals
}
