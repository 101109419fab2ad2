// Package custody provides in-memory implementations of the engine's
// external collaborators. They model the settlement side of the protocol
// for development and single-node deployments; wiring real token or bank
// adapters replaces these without touching the engine.
package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// InMemoryCustody tracks collateral held by the engine as one pool per
// asset. Per-user attribution lives in the ledger, not here: the engine's
// recipient under a liquidation differs from the depositor, so custody can
// only account for the aggregate. Inbound transfers always succeed; users
// are assumed to have settled the assets out of band.
type InMemoryCustody struct {
	mu     sync.Mutex
	pooled map[string]*uint256.Int
}

func NewInMemoryCustody() *InMemoryCustody {
	return &InMemoryCustody{pooled: make(map[string]*uint256.Int)}
}

func (c *InMemoryCustody) TransferIn(_ context.Context, from uuid.UUID, asset string, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.pooled[asset]
	if cur == nil {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("custody: %s pool overflow crediting %s", asset, from)
	}
	c.pooled[asset] = next
	return nil
}

func (c *InMemoryCustody) TransferOut(_ context.Context, to uuid.UUID, asset string, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The engine only releases amounts the ledger already holds, so the
	// pool can never run dry unless the books and custody have diverged.
	cur := c.pooled[asset]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("custody: %s pool below %s releasing to %s", asset, amount.Dec(), to)
	}
	c.pooled[asset] = new(uint256.Int).Sub(cur, amount)
	return nil
}

// Held reports the pooled amount in custody for an asset.
func (c *InMemoryCustody) Held(asset string) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.pooled[asset]; cur != nil {
		return new(uint256.Int).Set(cur)
	}
	return new(uint256.Int)
}

// InMemoryStable is a ledgered stable unit: per-user balances, a pooled
// pending-burn balance, and total supply. The engine is the only minter.
type InMemoryStable struct {
	mu       sync.Mutex
	balances map[uuid.UUID]*uint256.Int
	pooled   *uint256.Int
	supply   *uint256.Int
}

func NewInMemoryStable() *InMemoryStable {
	return &InMemoryStable{
		balances: make(map[uuid.UUID]*uint256.Int),
		pooled:   new(uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (s *InMemoryStable) Mint(_ context.Context, to uuid.UUID, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.balances[to]
	if cur == nil {
		cur = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("stable: balance overflow for %s", to)
	}
	supply, overflow := new(uint256.Int).AddOverflow(s.supply, amount)
	if overflow {
		return fmt.Errorf("stable: supply overflow")
	}
	s.balances[to] = next
	s.supply = supply
	return nil
}

func (s *InMemoryStable) TransferIn(_ context.Context, from uuid.UUID, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.balances[from]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("stable: balance of %s below %s", from, amount.Dec())
	}
	s.balances[from] = new(uint256.Int).Sub(cur, amount)
	s.pooled.Add(s.pooled, amount)
	return nil
}

func (s *InMemoryStable) Burn(_ context.Context, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pooled.Lt(amount) {
		return fmt.Errorf("stable: pooled balance below %s", amount.Dec())
	}
	s.pooled.Sub(s.pooled, amount)
	s.supply.Sub(s.supply, amount)
	return nil
}

// BalanceOf reports a user's stable unit balance.
func (s *InMemoryStable) BalanceOf(user uuid.UUID) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.balances[user]; cur != nil {
		return new(uint256.Int).Set(cur)
	}
	return new(uint256.Int)
}

// TotalSupply reports the outstanding stable unit supply.
func (s *InMemoryStable) TotalSupply() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.supply)
}
