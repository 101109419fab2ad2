package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/ledger"
	"StableVault/internal/solvency"
)

// AccountSnapshot is the debt plus collateral-value view of one account.
type AccountSnapshot struct {
	User               uuid.UUID
	Debt               *uint256.Int
	CollateralValueUsd *uint256.Int
	HealthFactor       *uint256.Int
}

// Snapshot returns the account's debt, total collateral value, and health
// factor under current prices.
func (e *Engine) Snapshot(ctx context.Context, user uuid.UUID) (*AccountSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	debt := e.ledger.DebtOf(user)
	collateralValue, err := e.valuation.TotalCollateralValueUsd(ctx, e.ledger, user)
	if err != nil {
		return nil, err
	}

	return &AccountSnapshot{
		User:               user,
		Debt:               debt,
		CollateralValueUsd: collateralValue,
		HealthFactor:       e.solvency.CalculateHealthFactor(debt, collateralValue),
	}, nil
}

// HealthFactorOf returns the user's current health factor.
func (e *Engine) HealthFactorOf(ctx context.Context, user uuid.UUID) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.solvency.HealthFactor(ctx, e.ledger, user)
}

// CollateralBalance returns the user's deposited amount of one asset.
func (e *Engine) CollateralBalance(user uuid.UUID, asset string) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.DepositOf(user, asset)
}

// DebtOf returns the user's outstanding issued debt.
func (e *Engine) DebtOf(user uuid.UUID) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.DebtOf(user)
}

// RegisteredAssets lists the accepted collateral assets in registry order.
func (e *Engine) RegisteredAssets() []ledger.Asset {
	return e.ledger.Registry().Assets()
}

// FeedIDFor returns the price-feed identifier backing an asset.
func (e *Engine) FeedIDFor(asset string) (string, bool) {
	return e.ledger.Registry().FeedID(asset)
}

// UsdValue values an asset amount at current prices.
func (e *Engine) UsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error) {
	return e.valuation.UsdValue(ctx, asset, amount)
}

// AssetAmountFromUsd converts a USD amount to asset units at current prices.
func (e *Engine) AssetAmountFromUsd(ctx context.Context, asset string, usdAmount *uint256.Int) (*uint256.Int, error) {
	return e.valuation.AssetAmountFromUsd(ctx, asset, usdAmount)
}

// SimulateHealthFactor is the pure health formula for what-if tooling.
func (e *Engine) SimulateHealthFactor(debt, collateralValueUsd *uint256.Int) *uint256.Int {
	return e.solvency.CalculateHealthFactor(debt, collateralValueUsd)
}

// Params returns the fixed protocol parameters.
func (e *Engine) Params() solvency.Params {
	return e.solvency.Params()
}
