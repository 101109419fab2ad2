// Package solvency computes the health factor of accounts and enforces the
// minimum-health-factor invariant after mutating operations.
package solvency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/ledger"
	fpmath "StableVault/internal/math"
	"StableVault/internal/valuation"
)

// HealthFactorBrokenError reports a post-mutation health factor below the
// protocol minimum. The offending value is carried for callers and logs.
type HealthFactorBrokenError struct {
	User         uuid.UUID
	HealthFactor *uint256.Int
}

func (e *HealthFactorBrokenError) Error() string {
	return fmt.Sprintf("solvency: health factor broken for %s: %s", e.User, e.HealthFactor)
}

// Engine derives health factors from ledger state and live valuations.
type Engine struct {
	valuation *valuation.Service
	params    Params
}

func NewEngine(valuation *valuation.Service, params Params) *Engine {
	return &Engine{valuation: valuation, params: params}
}

func (e *Engine) Params() Params {
	return e.params
}

// CalculateHealthFactor is the pure form of the health formula, exposed for
// what-if simulation: (collateralValueUsd * threshold / 100) * 1e18 / debt.
// A zero debt is infinitely healthy and saturates to the maximum value.
func (e *Engine) CalculateHealthFactor(debt, collateralValueUsd *uint256.Int) *uint256.Int {
	if debt.IsZero() {
		return fpmath.Clone(fpmath.MaxUint256)
	}
	adjusted := fpmath.PctOf(collateralValueUsd, e.params.LiquidationThresholdPct)
	return fpmath.WadDiv(adjusted, debt)
}

// HealthFactor computes the user's current health factor against the given
// ledger view (committed state or an in-flight staging).
func (e *Engine) HealthFactor(ctx context.Context, view ledger.View, user uuid.UUID) (*uint256.Int, error) {
	debt := view.DebtOf(user)
	if debt.IsZero() {
		return fpmath.Clone(fpmath.MaxUint256), nil
	}

	collateralValue, err := e.valuation.TotalCollateralValueUsd(ctx, view, user)
	if err != nil {
		return nil, err
	}
	return e.CalculateHealthFactor(debt, collateralValue), nil
}

// AssertHealthy is the single gate every debt-increasing or
// collateral-decreasing mutation must pass before it is committed. It fails
// with HealthFactorBrokenError when the user's health factor is below the
// protocol minimum.
func (e *Engine) AssertHealthy(ctx context.Context, view ledger.View, user uuid.UUID) error {
	hf, err := e.HealthFactor(ctx, view, user)
	if err != nil {
		return err
	}
	if hf.Lt(e.params.MinHealthFactor) {
		return &HealthFactorBrokenError{User: user, HealthFactor: hf}
	}
	return nil
}
