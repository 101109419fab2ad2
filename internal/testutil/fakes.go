package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/event"
)

// FakeCustody is an in-memory collateral custody double. It tracks per-user
// per-asset amounts held by the engine, supports scripted failures, and can
// invoke hooks before each transfer to exercise callback behavior.
type FakeCustody struct {
	mu   sync.Mutex
	held map[string]map[uuid.UUID]*uint256.Int // asset -> user -> amount in custody

	FailTransferIn  error
	FailTransferOut error

	// Hooks run before the transfer executes, with the operation context.
	OnTransferIn  func(ctx context.Context)
	OnTransferOut func(ctx context.Context)

	TransferIns  int
	TransferOuts int
}

func NewFakeCustody() *FakeCustody {
	return &FakeCustody{held: make(map[string]map[uuid.UUID]*uint256.Int)}
}

func (c *FakeCustody) TransferIn(ctx context.Context, from uuid.UUID, asset string, amount *uint256.Int) error {
	if c.OnTransferIn != nil {
		c.OnTransferIn(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TransferIns++
	if c.FailTransferIn != nil {
		return c.FailTransferIn
	}
	byUser := c.held[asset]
	if byUser == nil {
		byUser = make(map[uuid.UUID]*uint256.Int)
		c.held[asset] = byUser
	}
	cur := byUser[from]
	if cur == nil {
		cur = new(uint256.Int)
	}
	byUser[from] = new(uint256.Int).Add(cur, amount)
	return nil
}

func (c *FakeCustody) TransferOut(ctx context.Context, to uuid.UUID, asset string, amount *uint256.Int) error {
	if c.OnTransferOut != nil {
		c.OnTransferOut(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TransferOuts++
	if c.FailTransferOut != nil {
		return c.FailTransferOut
	}
	return nil
}

// Held returns the amount of asset the custody holds for user.
func (c *FakeCustody) Held(user uuid.UUID, asset string) *uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.held[asset][user]
	if cur == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(cur)
}

// FakeStable is an in-memory stable unit double tracking per-user balances
// and total supply.
type FakeStable struct {
	mu       sync.Mutex
	balances map[uuid.UUID]*uint256.Int
	pooled   *uint256.Int // units pulled into engine custody, pending burn
	supply   *uint256.Int

	FailMint       error
	FailTransferIn error
	FailBurn       error

	OnMint func(ctx context.Context)

	Mints, TransferIns, Burns int
}

func NewFakeStable() *FakeStable {
	return &FakeStable{
		balances: make(map[uuid.UUID]*uint256.Int),
		pooled:   new(uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (s *FakeStable) Mint(ctx context.Context, to uuid.UUID, amount *uint256.Int) error {
	if s.OnMint != nil {
		s.OnMint(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Mints++
	if s.FailMint != nil {
		return s.FailMint
	}
	cur := s.balances[to]
	if cur == nil {
		cur = new(uint256.Int)
	}
	s.balances[to] = new(uint256.Int).Add(cur, amount)
	s.supply.Add(s.supply, amount)
	return nil
}

func (s *FakeStable) TransferIn(ctx context.Context, from uuid.UUID, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransferIns++
	if s.FailTransferIn != nil {
		return s.FailTransferIn
	}
	cur := s.balances[from]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("stable balance of %s below %s", from, amount.Dec())
	}
	s.balances[from] = new(uint256.Int).Sub(cur, amount)
	s.pooled.Add(s.pooled, amount)
	return nil
}

func (s *FakeStable) Burn(ctx context.Context, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Burns++
	if s.FailBurn != nil {
		return s.FailBurn
	}
	if s.pooled.Lt(amount) {
		return fmt.Errorf("pooled units below %s", amount.Dec())
	}
	s.pooled.Sub(s.pooled, amount)
	s.supply.Sub(s.supply, amount)
	return nil
}

// BalanceOf returns the user's stable unit balance.
func (s *FakeStable) BalanceOf(user uuid.UUID) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balances[user]
	if cur == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(cur)
}

// TotalSupply returns the outstanding stable unit supply.
func (s *FakeStable) TotalSupply() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.supply)
}

// RecordingSink captures emitted event envelopes in order.
type RecordingSink struct {
	mu        sync.Mutex
	Envelopes []event.Envelope
}

func (r *RecordingSink) Emit(env event.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Envelopes = append(r.Envelopes, env)
}

// OfType returns the captured envelopes of one event type.
func (r *RecordingSink) OfType(t event.Type) []event.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Envelope
	for _, env := range r.Envelopes {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

// Len returns the number of captured envelopes.
func (r *RecordingSink) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Envelopes)
}
