// Package valuation converts between collateral-asset amounts and their
// 18-decimal fixed-point USD values using staleness-guarded oracle quotes.
package valuation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/ledger"
	fpmath "StableVault/internal/math"
	"StableVault/internal/oracle"
)

// Service values collateral through the price feed. All outputs are on the
// wad (1e18) scale; divisions truncate toward zero.
type Service struct {
	feed     oracle.PriceFeed
	registry *ledger.Registry
}

func NewService(feed oracle.PriceFeed, registry *ledger.Registry) *Service {
	return &Service{feed: feed, registry: registry}
}

// wadPrice returns the asset's USD price lifted onto the wad scale.
func (s *Service) wadPrice(ctx context.Context, asset string) (*uint256.Int, error) {
	feedID, ok := s.registry.FeedID(asset)
	if !ok {
		return nil, fmt.Errorf("valuation: asset %s not registered", asset)
	}

	q, err := s.feed.LatestQuote(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("valuation: price for %s: %w", asset, err)
	}

	return new(uint256.Int).Mul(q.Price, fpmath.FeedScaleFactor(q.Decimals)), nil
}

// UsdValue returns the wad-scale USD value of amount units of asset:
// wadPrice * amount / 1e18. The multiply-before-divide order keeps the
// conversion linear: UsdValue(a) + UsdValue(b) == UsdValue(a+b) whenever the
// wad price itself is exact.
func (s *Service) UsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error) {
	price, err := s.wadPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	return fpmath.WadMul(price, amount), nil
}

// AssetAmountFromUsd is the inverse conversion: the quantity of asset worth
// usdAmount, i.e. usdAmount * 1e18 / wadPrice, truncating.
func (s *Service) AssetAmountFromUsd(ctx context.Context, asset string, usdAmount *uint256.Int) (*uint256.Int, error) {
	price, err := s.wadPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	return fpmath.WadDiv(usdAmount, price), nil
}

// TotalCollateralValueUsd sums the USD value of the user's deposit of every
// registered asset, iterating the registry in its fixed construction order.
// Assets the user holds none of contribute zero.
func (s *Service) TotalCollateralValueUsd(ctx context.Context, view ledger.View, user uuid.UUID) (*uint256.Int, error) {
	total := new(uint256.Int)

	for _, asset := range s.registry.Assets() {
		deposit := view.DepositOf(user, asset.Symbol)
		if deposit.IsZero() {
			continue
		}
		value, err := s.UsdValue(ctx, asset.Symbol, deposit)
		if err != nil {
			return nil, err
		}
		if _, overflow := total.AddOverflow(total, value); overflow {
			panic(fmt.Sprintf("valuation: collateral value overflow for user %s", user))
		}
	}

	return total, nil
}
