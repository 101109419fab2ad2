package ledger

import (
	"fmt"
)

// Asset identifies an accepted collateral type and the price feed that
// values it.
type Asset struct {
	Symbol string
	FeedID string
}

// Registry is the fixed set of accepted collateral assets. It is built once
// at construction and never mutated; iteration order is construction order,
// so valuation sums are deterministic.
type Registry struct {
	assets   []Asset
	bySymbol map[string]Asset
}

// NewRegistry builds a registry from parallel slices of asset symbols and
// price-feed identifiers. The slices must be the same length.
func NewRegistry(symbols, feedIDs []string) (*Registry, error) {
	if len(symbols) != len(feedIDs) {
		return nil, fmt.Errorf("registry: %d symbols but %d feed ids", len(symbols), len(feedIDs))
	}

	r := &Registry{
		assets:   make([]Asset, 0, len(symbols)),
		bySymbol: make(map[string]Asset, len(symbols)),
	}

	for i, sym := range symbols {
		if sym == "" {
			return nil, fmt.Errorf("registry: empty asset symbol at index %d", i)
		}
		if feedIDs[i] == "" {
			return nil, fmt.Errorf("registry: empty feed id for asset %s", sym)
		}
		if _, dup := r.bySymbol[sym]; dup {
			return nil, fmt.Errorf("registry: duplicate asset %s", sym)
		}
		a := Asset{Symbol: sym, FeedID: feedIDs[i]}
		r.assets = append(r.assets, a)
		r.bySymbol[sym] = a
	}

	return r, nil
}

// Assets returns the registered assets in construction order.
func (r *Registry) Assets() []Asset {
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// IsRegistered reports whether symbol is an accepted collateral asset.
func (r *Registry) IsRegistered(symbol string) bool {
	_, ok := r.bySymbol[symbol]
	return ok
}

// FeedID returns the price-feed identifier for an asset.
func (r *Registry) FeedID(symbol string) (string, bool) {
	a, ok := r.bySymbol[symbol]
	return a.FeedID, ok
}
