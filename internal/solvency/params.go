package solvency

import (
	"github.com/holiman/uint256"

	fpmath "StableVault/internal/math"
)

// Params are the protocol risk parameters. They are fixed at construction
// and never mutated at runtime.
type Params struct {
	// LiquidationThresholdPct is the percentage of collateral value counted
	// toward solvency. 50 means positions must be 200% over-collateralized.
	LiquidationThresholdPct uint64

	// LiquidationBonusPct is the extra collateral percentage awarded to a
	// liquidator on top of the covered debt's collateral equivalent.
	LiquidationBonusPct uint64

	// MinHealthFactor is the wad-scale floor below which a position is
	// liquidatable.
	MinHealthFactor *uint256.Int
}

// DefaultParams returns the deployment defaults: 50% threshold, 10% bonus,
// minimum health factor 1.0.
func DefaultParams() Params {
	return Params{
		LiquidationThresholdPct: 50,
		LiquidationBonusPct:     10,
		MinHealthFactor:         fpmath.Clone(fpmath.Wad),
	}
}
