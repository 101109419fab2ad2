package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	fpmath "StableVault/internal/math"
)

// Staging is a mutation overlay on top of the committed ledger. Operations
// stage their balance changes here, run solvency checks against the staged
// view, and commit only after every external collaborator call has
// succeeded. On any failure the staging is simply dropped and the committed
// state is untouched.
//
// A Staging is single-use: Commit applies the buffered changes to the base
// ledger exactly once.
type Staging struct {
	base      *Ledger
	deposits  map[depositKey]*uint256.Int // absolute staged values
	debts     map[uuid.UUID]*uint256.Int  // absolute staged values
	committed bool
}

// Stage opens a mutation overlay over the committed state.
func (l *Ledger) Stage() *Staging {
	return &Staging{
		base:     l,
		deposits: make(map[depositKey]*uint256.Int),
		debts:    make(map[uuid.UUID]*uint256.Int),
	}
}

func (s *Staging) Registry() *Registry {
	return s.base.registry
}

func (s *Staging) DepositOf(user uuid.UUID, asset string) *uint256.Int {
	if v, ok := s.deposits[depositKey{user, asset}]; ok {
		return fpmath.Clone(v)
	}
	return s.base.DepositOf(user, asset)
}

func (s *Staging) DebtOf(user uuid.UUID) *uint256.Int {
	if v, ok := s.debts[user]; ok {
		return fpmath.Clone(v)
	}
	return s.base.DebtOf(user)
}

// AddDeposit stages an increase of the user's deposit of asset.
func (s *Staging) AddDeposit(user uuid.UUID, asset string, amount *uint256.Int) {
	cur := s.DepositOf(user, asset)
	if _, overflow := cur.AddOverflow(cur, amount); overflow {
		panic(fmt.Sprintf("ledger: staged deposit overflow for user %s asset %s", user, asset))
	}
	s.deposits[depositKey{user, asset}] = cur
}

// SubDeposit stages a decrease. Underflow is a broken caller precondition:
// the engine validates balances before staging a decrease.
func (s *Staging) SubDeposit(user uuid.UUID, asset string, amount *uint256.Int) {
	cur := s.DepositOf(user, asset)
	if cur.Lt(amount) {
		panic(fmt.Sprintf("ledger: staged deposit underflow for user %s asset %s", user, asset))
	}
	s.deposits[depositKey{user, asset}] = cur.Sub(cur, amount)
}

// AddDebt stages an increase of the user's issued debt.
func (s *Staging) AddDebt(user uuid.UUID, amount *uint256.Int) {
	cur := s.DebtOf(user)
	if _, overflow := cur.AddOverflow(cur, amount); overflow {
		panic(fmt.Sprintf("ledger: staged debt overflow for user %s", user))
	}
	s.debts[user] = cur
}

// SubDebt stages a decrease of the user's issued debt.
func (s *Staging) SubDebt(user uuid.UUID, amount *uint256.Int) {
	cur := s.DebtOf(user)
	if cur.Lt(amount) {
		panic(fmt.Sprintf("ledger: staged debt underflow for user %s", user))
	}
	s.debts[user] = cur.Sub(cur, amount)
}

// Commit applies the staged balances to the committed ledger.
func (s *Staging) Commit() {
	if s.committed {
		panic("ledger: staging committed twice")
	}
	s.committed = true

	for key, v := range s.deposits {
		if v.IsZero() {
			delete(s.base.deposits, key)
			continue
		}
		s.base.deposits[key] = fpmath.Clone(v)
	}
	for user, v := range s.debts {
		if v.IsZero() {
			delete(s.base.debts, user)
			continue
		}
		s.base.debts[user] = fpmath.Clone(v)
	}
}
