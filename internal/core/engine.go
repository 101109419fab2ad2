// Package core implements the position operations and liquidation protocol
// of the stable-unit engine. Every mutating operation stages its ledger
// changes, orders external collaborator calls and solvency checks exactly as
// the protocol requires, and commits only when the whole operation has
// succeeded.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/ledger"
	"StableVault/internal/observability"
	"StableVault/internal/solvency"
	"StableVault/internal/valuation"
)

// Engine is the single mutation authority over the ledger. A global lock
// serializes operations, modeling the platform's atomic-call guarantee; a
// context marker blocks re-entrant invocation from collaborator callbacks.
type Engine struct {
	ledger    *ledger.Ledger
	valuation *valuation.Service
	solvency  *solvency.Engine
	custody   CollateralCustody
	stable    StableUnit
	sink      EventSink
	metrics   *observability.Metrics
	log       zerolog.Logger

	mu  sync.RWMutex
	seq int64
	now func() time.Time
}

// Deps bundles the engine's collaborators and services.
type Deps struct {
	Ledger    *ledger.Ledger
	Valuation *valuation.Service
	Solvency  *solvency.Engine
	Custody   CollateralCustody
	Stable    StableUnit
	Sink      EventSink
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

func NewEngine(deps Deps) *Engine {
	return &Engine{
		ledger:    deps.Ledger,
		valuation: deps.Valuation,
		solvency:  deps.Solvency,
		custody:   deps.Custody,
		stable:    deps.Stable,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       time.Now,
	}
}

// ResumeSequence fast-forwards the event sequence counter past already
// persisted events. Called once at startup, before the engine serves
// traffic.
func (e *Engine) ResumeSequence(seq int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq > e.seq {
		e.seq = seq
	}
}

type reentryKey struct{}

// begin acquires the engine for a mutating operation. The returned context
// is passed to every collaborator call; a collaborator that calls back into
// the engine with it is rejected with ErrReentrantCall before it can touch
// the lock.
func (e *Engine) begin(ctx context.Context, op string) (context.Context, func(), error) {
	if ctx.Value(reentryKey{}) != nil {
		e.reject(op, "reentrant")
		return nil, nil, fmt.Errorf("%w: %s invoked inside a pending operation", ErrReentrantCall, op)
	}
	e.mu.Lock()
	return context.WithValue(ctx, reentryKey{}, op), e.mu.Unlock, nil
}

func validateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	return nil
}

// emit assigns sequence numbers and delivers the events of a committed
// operation. Called with the engine lock held.
func (e *Engine) emit(opID uuid.UUID, evts []event.Event) {
	if e.sink == nil {
		return
	}
	for _, ev := range evts {
		e.seq++
		e.sink.Emit(event.Envelope{
			Sequence:    e.seq,
			Type:        ev.EventType(),
			OperationID: opID,
			User:        ev.Subject(),
			Timestamp:   e.now(),
			Payload:     ev,
		})
	}
}

func (e *Engine) applied(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) reject(op, reason string) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
}

// Deposit credits the user's collateral and pulls the assets into custody.
// The ledger increase and the deposit event are staged first, the custody
// transfer runs last; a failed transfer aborts with nothing committed. No
// solvency check: deposits only improve health.
func (e *Engine) Deposit(ctx context.Context, user uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "deposit"
	start := time.Now()

	if err := validateAmount(amount); err != nil {
		e.reject(op, "validation")
		return err
	}
	if !e.ledger.Registry().IsRegistered(asset) {
		e.reject(op, "validation")
		return fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}

	ctx, done, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	st := e.ledger.Stage()
	st.AddDeposit(user, asset, amount)
	evts := []event.Event{&event.CollateralDeposited{
		User:   user,
		Asset:  asset,
		Amount: amount.Dec(),
	}}

	if err := e.custody.TransferIn(ctx, user, asset, amount); err != nil {
		e.reject(op, "transfer")
		return fmt.Errorf("%w: deposit of %s %s for %s: %v", ErrTransferFailed, amount.Dec(), asset, user, err)
	}

	st.Commit()
	e.emit(uuid.New(), evts)
	e.applied(op, start)
	e.log.Info().Str("op", op).Stringer("user", user).Str("asset", asset).
		Str("amount", amount.Dec()).Msg("collateral deposited")
	return nil
}

// Redeem is the self-service withdrawal: the user's deposit is decreased,
// the collateral transferred out, and only then is the user's health factor
// checked. A failed check claws the transfer back and aborts — a rejected
// withdrawal never partially applies.
func (e *Engine) Redeem(ctx context.Context, user uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "redeem"
	start := time.Now()

	ctx, done, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	st := e.ledger.Stage()
	evts, err := e.redeemCollateral(ctx, st, user, user, asset, amount)
	if err != nil {
		e.reject(op, rejectReason(err))
		return err
	}

	if err := e.solvency.AssertHealthy(ctx, st, user); err != nil {
		// The collateral already left custody; pull it back before aborting.
		e.compensateCollateral(ctx, user, asset, amount)
		e.reject(op, "health")
		return err
	}

	st.Commit()
	e.emit(uuid.New(), evts)
	e.applied(op, start)
	e.log.Info().Str("op", op).Stringer("user", user).Str("asset", asset).
		Str("amount", amount.Dec()).Msg("collateral redeemed")
	return nil
}

// redeemCollateral stages a deposit decrease for from and transfers the
// collateral out to to. Shared by self-service withdrawal and liquidation
// seizure; the caller owns any subsequent health check.
func (e *Engine) redeemCollateral(
	ctx context.Context,
	st *ledger.Staging,
	from, to uuid.UUID,
	asset string,
	amount *uint256.Int,
) ([]event.Event, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !e.ledger.Registry().IsRegistered(asset) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	if st.DepositOf(from, asset).Lt(amount) {
		return nil, fmt.Errorf("%w: %s has less than %s %s deposited",
			ErrInsufficientBalance, from, amount.Dec(), asset)
	}

	st.SubDeposit(from, asset, amount)
	evts := []event.Event{&event.CollateralRedeemed{
		From:   from,
		To:     to,
		Asset:  asset,
		Amount: amount.Dec(),
	}}

	if err := e.custody.TransferOut(ctx, to, asset, amount); err != nil {
		return nil, fmt.Errorf("%w: redemption of %s %s to %s: %v", ErrTransferFailed, amount.Dec(), asset, to, err)
	}

	return evts, nil
}

// compensateCollateral reverses an already-executed outbound transfer when
// a later step of the same operation fails. Compensation failing means the
// all-or-nothing contract is unrecoverable — that is an assertion failure,
// not an error to return.
func (e *Engine) compensateCollateral(ctx context.Context, holder uuid.UUID, asset string, amount *uint256.Int) {
	if err := e.custody.TransferIn(ctx, holder, asset, amount); err != nil {
		panic(fmt.Sprintf("FATAL: cannot reverse collateral transfer of %s %s from %s: %v",
			amount.Dec(), asset, holder, err))
	}
}

// compensateStable re-issues stable units burned by a failed operation.
func (e *Engine) compensateStable(ctx context.Context, payer uuid.UUID, amount *uint256.Int) {
	if err := e.stable.Mint(ctx, payer, amount); err != nil {
		panic(fmt.Sprintf("FATAL: cannot reverse stable unit burn of %s for %s: %v",
			amount.Dec(), payer, err))
	}
}

// Mint issues debt against the caller's collateral. The debt increase is
// checked for solvency before any stable units exist; a failed external
// issuance aborts with the debt rolled back.
func (e *Engine) Mint(ctx context.Context, user uuid.UUID, amount *uint256.Int) error {
	const op = "mint"
	start := time.Now()

	if err := validateAmount(amount); err != nil {
		e.reject(op, "validation")
		return err
	}

	ctx, done, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	st := e.ledger.Stage()
	st.AddDebt(user, amount)

	if err := e.solvency.AssertHealthy(ctx, st, user); err != nil {
		e.reject(op, "health")
		return err
	}

	if err := e.stable.Mint(ctx, user, amount); err != nil {
		e.reject(op, "mint")
		return fmt.Errorf("%w: %s units for %s: %v", ErrMintFailed, amount.Dec(), user, err)
	}

	st.Commit()
	e.emit(uuid.New(), []event.Event{&event.StableMinted{User: user, Amount: amount.Dec()}})
	e.applied(op, start)
	e.log.Info().Str("op", op).Stringer("user", user).Str("amount", amount.Dec()).Msg("stable units minted")
	return nil
}

// Burn retires the caller's own debt, funded by their own stable units.
func (e *Engine) Burn(ctx context.Context, user uuid.UUID, amount *uint256.Int) error {
	const op = "burn"
	start := time.Now()

	ctx, done, err := e.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	st := e.ledger.Stage()
	evts, err := e.burnDebt(ctx, st, user, user, amount)
	if err != nil {
		e.reject(op, rejectReason(err))
		return err
	}

	// Burning cannot worsen health; the check is kept as a backstop. A
	// failure here can only come from the oracle, which still aborts the
	// whole operation.
	if err := e.solvency.AssertHealthy(ctx, st, user); err != nil {
		e.compensateStable(ctx, user, amount)
		e.reject(op, "health")
		return err
	}

	st.Commit()
	e.emit(uuid.New(), evts)
	e.applied(op, start)
	e.log.Info().Str("op", op).Stringer("user", user).Str("amount", amount.Dec()).Msg("stable units burned")
	return nil
}

// burnDebt stages a debt decrease for onBehalfOf, funded by pulling stable
// units from payer into custody and destroying them. Shared by self-service
// burn and liquidation.
func (e *Engine) burnDebt(
	ctx context.Context,
	st *ledger.Staging,
	onBehalfOf, payer uuid.UUID,
	amount *uint256.Int,
) ([]event.Event, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if st.DebtOf(onBehalfOf).Lt(amount) {
		return nil, fmt.Errorf("%w: %s owes less than %s", ErrInsufficientDebt, onBehalfOf, amount.Dec())
	}

	st.SubDebt(onBehalfOf, amount)

	if err := e.stable.TransferIn(ctx, payer, amount); err != nil {
		return nil, fmt.Errorf("%w: pulling %s stable units from %s: %v", ErrTransferFailed, amount.Dec(), payer, err)
	}
	if err := e.stable.Burn(ctx, amount); err != nil {
		// Units are already in custody; a failed burn of the engine's own
		// balance means the collaborator contract is broken.
		panic(fmt.Sprintf("FATAL: stable unit burn of %s failed after custody pull: %v", amount.Dec(), err))
	}

	return []event.Event{&event.StableBurned{
		OnBehalfOf: onBehalfOf,
		Payer:      payer,
		Amount:     amount.Dec(),
	}}, nil
}

// DepositAndMint composes deposit then mint. The composition is sequential:
// each leg is atomic on its own, and a failed mint leaves the completed
// deposit in place.
func (e *Engine) DepositAndMint(
	ctx context.Context,
	user uuid.UUID,
	asset string,
	collateralAmount, debtAmount *uint256.Int,
) error {
	if err := e.Deposit(ctx, user, asset, collateralAmount); err != nil {
		return err
	}
	return e.Mint(ctx, user, debtAmount)
}

// BurnAndRedeem composes burn then redeem. Burning first means the redeem
// leg's health check sees the reduced debt.
func (e *Engine) BurnAndRedeem(
	ctx context.Context,
	user uuid.UUID,
	asset string,
	debtAmount, collateralAmount *uint256.Int,
) error {
	if err := e.Burn(ctx, user, debtAmount); err != nil {
		return err
	}
	return e.Redeem(ctx, user, asset, collateralAmount)
}

// rejectReason maps an operation error onto a metrics label.
func rejectReason(err error) string {
	switch {
	case isAny(err, ErrZeroAmount, ErrAssetNotRegistered, ErrInsufficientBalance, ErrInsufficientDebt):
		return "validation"
	case isAny(err, ErrTransferFailed, ErrMintFailed):
		return "transfer"
	case isAny(err, ErrHealthFactorOk, ErrHealthFactorNotImproved):
		return "liquidation"
	default:
		return "other"
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
