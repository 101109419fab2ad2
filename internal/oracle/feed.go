package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	fpmath "StableVault/internal/math"
)

var (
	// ErrStalePrice is returned when a quote is older than the configured
	// freshness window. Valuations must never fall back to a stale or
	// zero-substituted price.
	ErrStalePrice = errors.New("oracle: stale price")

	// ErrUnknownFeed is returned when no quote has ever been observed for
	// the requested feed.
	ErrUnknownFeed = errors.New("oracle: unknown feed")
)

// Quote is an ephemeral price observation from a feed. Price is expressed
// with Decimals decimal places; UpdatedAt is the feed's own report time.
type Quote struct {
	Price     *uint256.Int
	Decimals  uint32
	UpdatedAt time.Time
}

// PriceFeed supplies the latest USD price quote for a feed identifier.
type PriceFeed interface {
	LatestQuote(ctx context.Context, feedID string) (Quote, error)
}

// StalenessGuard wraps a PriceFeed and rejects quotes older than the
// freshness window. Every raw oracle read used in valuation goes through
// this wrapper.
type StalenessGuard struct {
	inner  PriceFeed
	maxAge time.Duration
	now    func() time.Time
}

// DefaultFreshnessWindow mirrors the common heartbeat of USD reference
// feeds: a quote older than this is unusable.
const DefaultFreshnessWindow = 3 * time.Hour

func NewStalenessGuard(inner PriceFeed, maxAge time.Duration) *StalenessGuard {
	if maxAge <= 0 {
		maxAge = DefaultFreshnessWindow
	}
	return &StalenessGuard{inner: inner, maxAge: maxAge, now: time.Now}
}

// WithClock overrides the guard's clock. Test hook.
func (g *StalenessGuard) WithClock(now func() time.Time) *StalenessGuard {
	g.now = now
	return g
}

func (g *StalenessGuard) LatestQuote(ctx context.Context, feedID string) (Quote, error) {
	q, err := g.inner.LatestQuote(ctx, feedID)
	if err != nil {
		return Quote{}, err
	}

	if q.Price == nil || q.Price.IsZero() {
		return Quote{}, fmt.Errorf("%w: zero price on feed %s", ErrStalePrice, feedID)
	}
	if q.Decimals > fpmath.MaxFeedDecimals {
		return Quote{}, fmt.Errorf("oracle: feed %s reports %d decimals, max %d",
			feedID, q.Decimals, fpmath.MaxFeedDecimals)
	}

	age := g.now().Sub(q.UpdatedAt)
	if age > g.maxAge {
		return Quote{}, fmt.Errorf("%w: feed %s is %s old (max %s)",
			ErrStalePrice, feedID, age, g.maxAge)
	}

	return q, nil
}

// CachedFeed holds the latest quote per feed identifier. The price
// subscriber updates it as reports arrive; valuation reads it through a
// StalenessGuard.
type CachedFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewCachedFeed() *CachedFeed {
	return &CachedFeed{quotes: make(map[string]Quote)}
}

// Update stores the latest quote for a feed. Older reports than the cached
// one are ignored.
func (f *CachedFeed) Update(feedID string, q Quote) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.quotes[feedID]; ok && cur.UpdatedAt.After(q.UpdatedAt) {
		return
	}
	q.Price = fpmath.Clone(q.Price)
	f.quotes[feedID] = q
}

func (f *CachedFeed) LatestQuote(_ context.Context, feedID string) (Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	q, ok := f.quotes[feedID]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownFeed, feedID)
	}
	q.Price = fpmath.Clone(q.Price)
	return q, nil
}
