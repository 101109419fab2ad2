package ledger

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	fpmath "StableVault/internal/math"
)

// View is the read surface over position state. Both the committed Ledger
// and an in-flight Staging satisfy it, so valuation and solvency checks can
// run against either.
type View interface {
	// DepositOf returns the deposited amount of asset for user (owned copy).
	DepositOf(user uuid.UUID, asset string) *uint256.Int
	// DebtOf returns the user's issued-debt balance (owned copy).
	DebtOf(user uuid.UUID) *uint256.Int
	// Registry returns the fixed collateral registry.
	Registry() *Registry
}

type depositKey struct {
	user  uuid.UUID
	asset string
}

// Ledger holds the committed per-user collateral deposits and debt balances
// plus the asset registry. All mutation goes through a Staging overlay; the
// staged mutators perform no solvency validation — callers own invariant
// enforcement, and a decrease below zero panics rather than wrapping.
type Ledger struct {
	registry *Registry
	deposits map[depositKey]*uint256.Int
	debts    map[uuid.UUID]*uint256.Int
}

func New(registry *Registry) *Ledger {
	return &Ledger{
		registry: registry,
		deposits: make(map[depositKey]*uint256.Int),
		debts:    make(map[uuid.UUID]*uint256.Int),
	}
}

func (l *Ledger) Registry() *Registry {
	return l.registry
}

func (l *Ledger) DepositOf(user uuid.UUID, asset string) *uint256.Int {
	return fpmath.Clone(l.deposits[depositKey{user, asset}])
}

func (l *Ledger) DebtOf(user uuid.UUID) *uint256.Int {
	return fpmath.Clone(l.debts[user])
}
