package math

import (
	"github.com/holiman/uint256"
)

// All USD-denominated quantities in the engine share an 18-decimal
// fixed-point scale (the "wad" scale). Oracle prices arrive at their
// feed's native precision and are rescaled to wad before any multiply.
const (
	WadDecimals = 18
	// Oracle feeds report at most 18 decimals; anything above is rejected
	// at the adapter boundary.
	MaxFeedDecimals = 18
)

var (
	// Wad is 1e18, the unit of the fixed-point USD scale.
	Wad = uint256.NewInt(1_000_000_000_000_000_000)

	// Hundred is the divisor for whole-number percentage parameters.
	Hundred = uint256.NewInt(100)

	// MaxUint256 is the saturation value for "infinitely healthy" ratios.
	MaxUint256 = new(uint256.Int).Sub(uint256.NewInt(0), uint256.NewInt(1))
)

// Pow10 returns 10^n. Panics on 256-bit overflow, which is unreachable for
// any decimal count accepted at the adapter boundary.
func Pow10(n uint32) *uint256.Int {
	result := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint32(0); i < n; i++ {
		if _, overflow := result.MulOverflow(result, ten); overflow {
			panic("fixedpoint: Pow10 overflow")
		}
	}
	return result
}

// FeedScaleFactor returns the multiplier that lifts a price quoted with
// feedDecimals decimals onto the wad scale: 10^(18 - feedDecimals).
func FeedScaleFactor(feedDecimals uint32) *uint256.Int {
	if feedDecimals > MaxFeedDecimals {
		panic("fixedpoint: feed decimals exceed wad precision")
	}
	return Pow10(WadDecimals - feedDecimals)
}

// MulDiv computes a * b / denom with full 256-bit intermediates and
// truncation toward zero. The truncation direction is part of the protocol
// arithmetic and must not be changed to any rounding mode.
func MulDiv(a, b, denom *uint256.Int) *uint256.Int {
	if denom.IsZero() {
		panic("fixedpoint: division by zero")
	}
	product := new(uint256.Int)
	if _, overflow := product.MulOverflow(a, b); overflow {
		panic("fixedpoint: MulDiv overflow")
	}
	return product.Div(product, denom)
}

// WadMul computes (a * b) / 1e18, truncating.
func WadMul(a, b *uint256.Int) *uint256.Int {
	return MulDiv(a, b, Wad)
}

// WadDiv computes (a * 1e18) / b, truncating.
func WadDiv(a, b *uint256.Int) *uint256.Int {
	return MulDiv(a, Wad, b)
}

// PctOf computes amount * pct / 100, truncating. Used for the liquidation
// threshold and bonus parameters, which are whole-number percentages.
func PctOf(amount *uint256.Int, pct uint64) *uint256.Int {
	return MulDiv(amount, uint256.NewInt(pct), Hundred)
}

// Clone returns an owned copy of v, or zero when v is nil. Ledger reads hand
// out clones so callers can never alias internal balance state.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
