package math_test

import (
	"testing"

	fpmath "StableVault/internal/math"

	"github.com/holiman/uint256"
)

func TestPow10(t *testing.T) {
	cases := []struct {
		n    uint32
		want uint64
	}{
		{0, 1},
		{1, 10},
		{8, 100_000_000},
		{18, 1_000_000_000_000_000_000},
	}

	for _, c := range cases {
		got := fpmath.Pow10(c.n)
		if got.Uint64() != c.want {
			t.Errorf("Pow10(%d): got %s, want %d", c.n, got, c.want)
		}
	}
}

func TestFeedScaleFactor(t *testing.T) {
	// An 8-decimal feed needs a 1e10 lift to reach the wad scale.
	got := fpmath.FeedScaleFactor(8)
	if got.Uint64() != 10_000_000_000 {
		t.Errorf("FeedScaleFactor(8): got %s, want 1e10", got)
	}

	// An 18-decimal feed is already on the wad scale.
	got = fpmath.FeedScaleFactor(18)
	if got.Uint64() != 1 {
		t.Errorf("FeedScaleFactor(18): got %s, want 1", got)
	}
}

func TestMulDiv_TruncatesTowardZero(t *testing.T) {
	// 7 * 3 / 2 = 10.5 → 10
	got := fpmath.MulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
	if got.Uint64() != 10 {
		t.Errorf("MulDiv(7,3,2): got %s, want 10", got)
	}
}

func TestMulDiv_DivisionByZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on zero denominator")
		}
	}()
	fpmath.MulDiv(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0))
}

func TestWadMulDiv_RoundTrip(t *testing.T) {
	// 2000e18 * 1.5e18 / 1e18 = 3000e18
	price := new(uint256.Int).Mul(uint256.NewInt(2000), fpmath.Wad)
	amount := uint256.NewInt(1_500_000_000_000_000_000)

	value := fpmath.WadMul(price, amount)
	want := new(uint256.Int).Mul(uint256.NewInt(3000), fpmath.Wad)
	if !value.Eq(want) {
		t.Errorf("WadMul: got %s, want %s", value, want)
	}

	back := fpmath.WadDiv(value, price)
	if !back.Eq(amount) {
		t.Errorf("WadDiv round trip: got %s, want %s", back, amount)
	}
}

func TestPctOf(t *testing.T) {
	amount := new(uint256.Int).Mul(uint256.NewInt(20000), fpmath.Wad)

	half := fpmath.PctOf(amount, 50)
	want := new(uint256.Int).Mul(uint256.NewInt(10000), fpmath.Wad)
	if !half.Eq(want) {
		t.Errorf("PctOf(20000e18, 50): got %s, want %s", half, want)
	}

	tenth := fpmath.PctOf(uint256.NewInt(100), 10)
	if tenth.Uint64() != 10 {
		t.Errorf("PctOf(100, 10): got %s, want 10", tenth)
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	orig := uint256.NewInt(42)
	cp := fpmath.Clone(orig)
	cp.SetUint64(7)
	if orig.Uint64() != 42 {
		t.Error("Clone must not alias the original")
	}

	if !fpmath.Clone(nil).IsZero() {
		t.Error("Clone(nil) should be zero")
	}
}

func TestMulDiv_OverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on 256-bit product overflow")
		}
	}()
	fpmath.MulDiv(fpmath.MaxUint256, uint256.NewInt(2), uint256.NewInt(1))
}
