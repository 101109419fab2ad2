package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/event"
	fpmath "StableVault/internal/math"
)

// Liquidate lets the liquidator repay debtToCover of the target's debt and
// seize the collateral equivalent plus the protocol bonus. The target must
// be under-margined going in, and must be strictly healthier coming out.
//
// Known residual risk: once aggregate collateralization falls to 100% or
// below, the bonus cannot be funded and the incentive to liquidate
// disappears.
func (e *Engine) Liquidate(
	ctx context.Context,
	liquidator uuid.UUID,
	collateralAsset string,
	target uuid.UUID,
	debtToCover *uint256.Int,
) error {
	const op = "liquidate"
	start := time.Now()

	if err := validateAmount(debtToCover); err != nil {
		e.reject(op, "validation")
		return err
	}
	if !e.ledger.Registry().IsRegistered(collateralAsset) {
		e.reject(op, "validation")
		return fmt.Errorf("%w: %s", ErrAssetNotRegistered, collateralAsset)
	}

	ctx, done, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	startHF, err := e.solvency.HealthFactor(ctx, e.ledger, target)
	if err != nil {
		e.reject(op, "oracle")
		return err
	}
	if !startHF.Lt(e.solvency.Params().MinHealthFactor) {
		e.reject(op, "liquidation")
		return fmt.Errorf("%w: target %s at %s", ErrHealthFactorOk, target, startHF)
	}

	// Covered debt translated to collateral units, plus the bonus share.
	baseAmount, err := e.valuation.AssetAmountFromUsd(ctx, collateralAsset, debtToCover)
	if err != nil {
		e.reject(op, "oracle")
		return err
	}
	bonusAmount := fpmath.PctOf(baseAmount, e.solvency.Params().LiquidationBonusPct)
	seizeAmount := new(uint256.Int).Add(baseAmount, bonusAmount)

	st := e.ledger.Stage()

	// Leg 1: force-redeem the target's collateral to the liquidator. The
	// target's own health check is deferred; it happens once, after both
	// legs.
	seizeEvts, err := e.redeemCollateral(ctx, st, target, liquidator, collateralAsset, seizeAmount)
	if err != nil {
		e.reject(op, rejectReason(err))
		return err
	}

	// Leg 2: retire the covered debt, funded by the liquidator's units.
	burnEvts, err := e.burnDebt(ctx, st, target, liquidator, debtToCover)
	if err != nil {
		e.compensateCollateral(ctx, liquidator, collateralAsset, seizeAmount)
		e.reject(op, rejectReason(err))
		return err
	}

	revert := func() {
		e.compensateCollateral(ctx, liquidator, collateralAsset, seizeAmount)
		e.compensateStable(ctx, liquidator, debtToCover)
	}

	endHF, err := e.solvency.HealthFactor(ctx, st, target)
	if err != nil {
		revert()
		e.reject(op, "oracle")
		return err
	}
	if !endHF.Gt(startHF) {
		revert()
		e.reject(op, "liquidation")
		return fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, startHF, endHF)
	}

	// The liquidator must not end the operation under-margined themselves.
	// A no-op for debt-free liquidators, kept in case liquidators hold
	// positions of their own.
	if err := e.solvency.AssertHealthy(ctx, st, liquidator); err != nil {
		revert()
		e.reject(op, "health")
		return err
	}

	st.Commit()

	opID := uuid.New()
	evts := append(seizeEvts, burnEvts...)
	evts = append(evts, &event.PositionLiquidated{
		Liquidator:        liquidator,
		Target:            target,
		Asset:             collateralAsset,
		DebtCovered:       debtToCover.Dec(),
		CollateralSeized:  seizeAmount.Dec(),
		StartingHealthWad: startHF.Dec(),
		EndingHealthWad:   endHF.Dec(),
	})
	e.emit(opID, evts)

	if e.metrics != nil {
		e.metrics.Liquidations.Inc()
	}
	e.applied(op, start)
	e.log.Info().Str("op", op).
		Stringer("liquidator", liquidator).
		Stringer("target", target).
		Str("asset", collateralAsset).
		Str("debt_covered", debtToCover.Dec()).
		Str("collateral_seized", seizeAmount.Dec()).
		Msg("position liquidated")
	return nil
}
