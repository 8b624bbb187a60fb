package vault

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope is the top-level namespace of a ledger account. User accounts
// hold per-owner free collateral, system accounts hold the pooled margin and
// insurance funds, and external accounts mirror value held outside the
// system so the books stay zero-sum.
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType narrows the purpose within a scope.
type AccountSubType uint8

const (
	SubTypeCollateral AccountSubType = iota

	SubTypeSystemMarginPool
	SubTypeSystemInsuranceFund

	SubTypeExternalDeposits
)

var subTypeNames = map[AccountSubType]string{
	SubTypeCollateral:          "collateral",
	SubTypeSystemMarginPool:    "margin_pool",
	SubTypeSystemInsuranceFund: "insurance_fund",
	SubTypeExternalDeposits:    "deposits",
}

// AssetID is the compact numeric form of a collateral asset symbol.
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDT": 1,
		"USDC": 2,
	}
	idToAsset = map[AssetID]string{
		1: "USDT",
		2: "USDC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey identifies one balance. It is a comparable value type so it can
// key the balance map directly; EntityID carries the owner UUID for user
// accounts and stays zero for system and external accounts, which are
// singletons per sub-type and asset.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte
	SubType  AccountSubType
	AssetID  AssetID
}

func NewUserAccountKey(owner uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: owner,
		SubType:  SubTypeCollateral,
		AssetID:  assetID,
	}
}

func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

func NewExternalAccountKey(assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalDeposits,
		AssetID: assetID,
	}
}

// AccountPath renders the key for logging, e.g.
// "user:9f3c...:collateral:USDT" or "system:margin_pool:USDT".
func (k AccountKey) AccountPath() string {
	asset, _ := GetAssetName(k.AssetID)
	sub := subTypeNames[k.SubType]
	if sub == "" {
		sub = "unknown"
	}

	switch k.Scope {
	case AccountScopeUser:
		return fmt.Sprintf("user:%s:%s:%s", uuid.UUID(k.EntityID).String(), sub, asset)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", sub, asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", sub, asset)
	}
	return "unknown"
}
