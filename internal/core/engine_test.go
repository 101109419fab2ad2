package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/ledger"
	"StableVault/internal/oracle"
	"StableVault/internal/solvency"
	"StableVault/internal/testutil"
	"StableVault/internal/valuation"
)

type fixture struct {
	engine  *Engine
	custody *testutil.FakeCustody
	stable  *testutil.FakeStable
	sink    *testutil.RecordingSink
	feed    *oracle.CachedFeed
	guard   *oracle.StalenessGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg, err := ledger.NewRegistry(
		[]string{"WETH", "WBTC"},
		[]string{"WETH/USD", "WBTC/USD"},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	feed := oracle.NewCachedFeed()
	guard := oracle.NewStalenessGuard(feed, 0)
	val := valuation.NewService(guard, reg)

	f := &fixture{
		custody: testutil.NewFakeCustody(),
		stable:  testutil.NewFakeStable(),
		sink:    &testutil.RecordingSink{},
		feed:    feed,
		guard:   guard,
	}
	f.engine = NewEngine(Deps{
		Ledger:    ledger.New(reg),
		Valuation: val,
		Solvency:  solvency.NewEngine(val, solvency.DefaultParams()),
		Custody:   f.custody,
		Stable:    f.stable,
		Sink:      f.sink,
		Logger:    zerolog.Nop(),
	})

	f.setPrice("WETH/USD", 2000)
	f.setPrice("WBTC/USD", 30000)
	return f
}

// setPrice publishes a fresh 8-decimal USD quote.
func (f *fixture) setPrice(feedID string, usd uint64) {
	f.feed.Update(feedID, oracle.Quote{
		Price:     new(uint256.Int).Mul(uint256.NewInt(usd), uint256.NewInt(100_000_000)),
		Decimals:  8,
		UpdatedAt: time.Now(),
	})
}

func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func TestDepositRecordsCollateral(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	if err := f.engine.Deposit(context.Background(), user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if got := f.engine.CollateralBalance(user, "WETH"); !got.Eq(wad(10)) {
		t.Errorf("balance = %s, want %s", got.Dec(), wad(10).Dec())
	}
	if f.custody.TransferIns != 1 {
		t.Errorf("custody TransferIns = %d, want 1", f.custody.TransferIns)
	}
	if got := f.custody.Held(user, "WETH"); !got.Eq(wad(10)) {
		t.Errorf("custody held = %s, want %s", got.Dec(), wad(10).Dec())
	}

	evts := f.sink.OfType(event.TypeCollateralDeposited)
	if len(evts) != 1 {
		t.Fatalf("got %d deposit events, want 1", len(evts))
	}
	if evts[0].Sequence != 1 {
		t.Errorf("sequence = %d, want 1", evts[0].Sequence)
	}
	if evts[0].User != user {
		t.Errorf("event user = %s, want %s", evts[0].User, user)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", uint256.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("zero amount: got %v, want ErrZeroAmount", err)
	}
	if err := f.engine.Deposit(ctx, user, "WETH", nil); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("nil amount: got %v, want ErrZeroAmount", err)
	}
	if err := f.engine.Deposit(ctx, user, "DOGE", wad(1)); !errors.Is(err, ErrAssetNotRegistered) {
		t.Errorf("unknown asset: got %v, want ErrAssetNotRegistered", err)
	}
	if f.sink.Len() != 0 {
		t.Errorf("rejected deposits emitted %d events", f.sink.Len())
	}
}

func TestDepositTransferFailureCommitsNothing(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.custody.FailTransferIn = errors.New("allowance exceeded")

	err := f.engine.Deposit(context.Background(), user, "WETH", wad(10))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}

	if got := f.engine.CollateralBalance(user, "WETH"); !got.IsZero() {
		t.Errorf("balance = %s after failed deposit, want 0", got.Dec())
	}
	if f.sink.Len() != 0 {
		t.Errorf("failed deposit emitted %d events", f.sink.Len())
	}
}

func TestRedeemRoundTrip(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Redeem(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if got := f.engine.CollateralBalance(user, "WETH"); !got.IsZero() {
		t.Errorf("balance = %s after round trip, want 0", got.Dec())
	}
	if f.custody.TransferOuts != 1 {
		t.Errorf("custody TransferOuts = %d, want 1", f.custody.TransferOuts)
	}
	if got := len(f.sink.OfType(event.TypeCollateralRedeemed)); got != 1 {
		t.Errorf("got %d redeem events, want 1", got)
	}
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Redeem(ctx, user, "WETH", wad(6)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := f.engine.CollateralBalance(user, "WETH"); !got.Eq(wad(5)) {
		t.Errorf("balance = %s, want unchanged %s", got.Dec(), wad(5).Dec())
	}
}

func TestRedeemBlockedWhenUnhealthy(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	// 10 WETH at $2000 backs 5000 debt at exactly 2.0 health.
	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Mint(ctx, user, wad(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	insBefore := f.custody.TransferIns
	eventsBefore := f.sink.Len()

	// Redeeming 8 WETH would leave 2000 * 2 * 0.5 = 2000 against 5000.
	err := f.engine.Redeem(ctx, user, "WETH", wad(8))
	var broken *solvency.HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}

	// The transfer already ran and must have been clawed back.
	if f.custody.TransferOuts != 1 {
		t.Errorf("custody TransferOuts = %d, want 1", f.custody.TransferOuts)
	}
	if f.custody.TransferIns != insBefore+1 {
		t.Errorf("custody TransferIns = %d, want %d (claw-back)", f.custody.TransferIns, insBefore+1)
	}
	if got := f.engine.CollateralBalance(user, "WETH"); !got.Eq(wad(10)) {
		t.Errorf("balance = %s after aborted redeem, want %s", got.Dec(), wad(10).Dec())
	}
	if f.sink.Len() != eventsBefore {
		t.Errorf("aborted redeem emitted %d events", f.sink.Len()-eventsBefore)
	}
}

func TestMintRequiresHealth(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// $20000 collateral at the 50% threshold supports at most 10000 debt.
	if err := f.engine.Mint(ctx, user, wad(10000)); err != nil {
		t.Fatalf("mint at the limit: %v", err)
	}

	err := f.engine.Mint(ctx, user, uint256.NewInt(1))
	var broken *solvency.HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}

	if got := f.engine.DebtOf(user); !got.Eq(wad(10000)) {
		t.Errorf("debt = %s, want %s", got.Dec(), wad(10000).Dec())
	}
	if got := f.stable.BalanceOf(user); !got.Eq(wad(10000)) {
		t.Errorf("stable balance = %s, want %s", got.Dec(), wad(10000).Dec())
	}
}

func TestMintWithoutCollateral(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Mint(context.Background(), uuid.New(), wad(1))
	var broken *solvency.HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}
	if !broken.HealthFactor.IsZero() {
		t.Errorf("health factor = %s, want 0", broken.HealthFactor.Dec())
	}
}

func TestMintExternalFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f.stable.FailMint = errors.New("minter paused")
	if err := f.engine.Mint(ctx, user, wad(100)); !errors.Is(err, ErrMintFailed) {
		t.Fatalf("got %v, want ErrMintFailed", err)
	}
	if got := f.engine.DebtOf(user); !got.IsZero() {
		t.Errorf("debt = %s after failed mint, want 0", got.Dec())
	}
}

func TestBurnReducesDebt(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Mint(ctx, user, wad(5000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Burn(ctx, user, wad(2000)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	if got := f.engine.DebtOf(user); !got.Eq(wad(3000)) {
		t.Errorf("debt = %s, want %s", got.Dec(), wad(3000).Dec())
	}
	if got := f.stable.TotalSupply(); !got.Eq(wad(3000)) {
		t.Errorf("supply = %s, want %s", got.Dec(), wad(3000).Dec())
	}
	if got := len(f.sink.OfType(event.TypeStableBurned)); got != 1 {
		t.Errorf("got %d burn events, want 1", got)
	}
}

func TestBurnMoreThanOwed(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Mint(ctx, user, wad(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Burn(ctx, user, wad(1001)); !errors.Is(err, ErrInsufficientDebt) {
		t.Errorf("got %v, want ErrInsufficientDebt", err)
	}
	if got := f.engine.DebtOf(user); !got.Eq(wad(1000)) {
		t.Errorf("debt = %s, want unchanged %s", got.Dec(), wad(1000).Dec())
	}
}

func TestBurnWithoutUnits(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.Deposit(ctx, user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Mint(ctx, user, wad(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	f.stable.FailTransferIn = errors.New("units locked elsewhere")
	if err := f.engine.Burn(ctx, user, wad(500)); !errors.Is(err, ErrTransferFailed) {
		t.Errorf("got %v, want ErrTransferFailed", err)
	}
	if got := f.engine.DebtOf(user); !got.Eq(wad(1000)) {
		t.Errorf("debt = %s, want unchanged %s", got.Dec(), wad(1000).Dec())
	}
}

func TestDepositAndMint(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	if err := f.engine.DepositAndMint(context.Background(), user, "WETH", wad(10), wad(5000)); err != nil {
		t.Fatalf("depositAndMint: %v", err)
	}
	if got := f.engine.CollateralBalance(user, "WETH"); !got.Eq(wad(10)) {
		t.Errorf("balance = %s, want %s", got.Dec(), wad(10).Dec())
	}
	if got := f.engine.DebtOf(user); !got.Eq(wad(5000)) {
		t.Errorf("debt = %s, want %s", got.Dec(), wad(5000).Dec())
	}
}

func TestDepositAndMintFailedMintKeepsDeposit(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	// 10 WETH supports only 10000 debt.
	err := f.engine.DepositAndMint(context.Background(), user, "WETH", wad(10), wad(10001))
	var broken *solvency.HealthFactorBrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("got %v, want HealthFactorBrokenError", err)
	}

	// The deposit leg completed on its own.
	if got := f.engine.CollateralBalance(user, "WETH"); !got.Eq(wad(10)) {
		t.Errorf("balance = %s, want %s", got.Dec(), wad(10).Dec())
	}
	if got := f.engine.DebtOf(user); !got.IsZero() {
		t.Errorf("debt = %s, want 0", got.Dec())
	}
}

func TestBurnAndRedeemFullExit(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.DepositAndMint(ctx, user, "WETH", wad(10), wad(5000)); err != nil {
		t.Fatalf("depositAndMint: %v", err)
	}
	if err := f.engine.BurnAndRedeem(ctx, user, "WETH", wad(5000), wad(10)); err != nil {
		t.Fatalf("burnAndRedeem: %v", err)
	}

	if got := f.engine.DebtOf(user); !got.IsZero() {
		t.Errorf("debt = %s, want 0", got.Dec())
	}
	if got := f.engine.CollateralBalance(user, "WETH"); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got.Dec())
	}
	if got := f.stable.TotalSupply(); !got.IsZero() {
		t.Errorf("supply = %s, want 0", got.Dec())
	}
}

func TestReentrantCallbackRejected(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	var inner error
	f.custody.OnTransferIn = func(ctx context.Context) {
		inner = f.engine.Mint(ctx, user, wad(1))
	}

	if err := f.engine.Deposit(context.Background(), user, "WETH", wad(10)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !errors.Is(inner, ErrReentrantCall) {
		t.Errorf("re-entrant mint: got %v, want ErrReentrantCall", inner)
	}
	if got := f.engine.DebtOf(user); !got.IsZero() {
		t.Errorf("debt = %s after blocked re-entry, want 0", got.Dec())
	}
}

func TestHealthFactorLifecycle(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	// Debt-free accounts saturate at the maximum.
	hf, err := f.engine.HealthFactorOf(ctx, user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if hf.Lt(wad(1_000_000)) {
		t.Errorf("debt-free health factor = %s, want saturated max", hf.Dec())
	}

	if err := f.engine.DepositAndMint(ctx, user, "WETH", wad(10), wad(5000)); err != nil {
		t.Fatalf("depositAndMint: %v", err)
	}

	// 20000 * 0.5 / 5000 = 2.0.
	hf, err = f.engine.HealthFactorOf(ctx, user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if !hf.Eq(wad(2)) {
		t.Errorf("health factor = %s, want %s", hf.Dec(), wad(2).Dec())
	}

	// Price collapse: 6000 * 0.5 / 5000 = 0.6.
	f.setPrice("WETH/USD", 600)
	hf, err = f.engine.HealthFactorOf(ctx, user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	want := new(uint256.Int).Mul(uint256.NewInt(6), uint256.NewInt(1e17))
	if !hf.Eq(want) {
		t.Errorf("health factor = %s, want %s", hf.Dec(), want.Dec())
	}

	snap, err := f.engine.Snapshot(ctx, user)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Debt.Eq(wad(5000)) {
		t.Errorf("snapshot debt = %s, want %s", snap.Debt.Dec(), wad(5000).Dec())
	}
	if !snap.CollateralValueUsd.Eq(wad(6000)) {
		t.Errorf("snapshot collateral value = %s, want %s", snap.CollateralValueUsd.Dec(), wad(6000).Dec())
	}
	if !snap.HealthFactor.Eq(want) {
		t.Errorf("snapshot health factor = %s, want %s", snap.HealthFactor.Dec(), want.Dec())
	}
}

func TestEventSequenceMonotonic(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if err := f.engine.DepositAndMint(ctx, user, "WETH", wad(10), wad(5000)); err != nil {
		t.Fatalf("depositAndMint: %v", err)
	}
	if err := f.engine.Burn(ctx, user, wad(1000)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	for i, env := range f.sink.Envelopes {
		if env.Sequence != int64(i+1) {
			t.Errorf("envelope %d has sequence %d, want %d", i, env.Sequence, i+1)
		}
	}
}
