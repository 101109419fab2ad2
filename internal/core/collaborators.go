package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"StableVault/internal/event"
)

// CollateralCustody is the external transfer mechanism for collateral
// assets. Transfers can fail (insufficient allowance, paused asset) and may
// re-enter the engine; the engine never assumes success without checking
// the returned error, and marks the context so re-entrant calls are
// rejected.
type CollateralCustody interface {
	// TransferIn moves amount of asset from the user into engine custody.
	TransferIn(ctx context.Context, from uuid.UUID, asset string, amount *uint256.Int) error
	// TransferOut moves amount of asset from engine custody to the user.
	TransferOut(ctx context.Context, to uuid.UUID, asset string, amount *uint256.Int) error
}

// StableUnit is the synthetic asset collaborator. The engine is its only
// authorized minter; burning destroys units already pulled into engine
// custody.
type StableUnit interface {
	// Mint issues amount of stable units to the user.
	Mint(ctx context.Context, to uuid.UUID, amount *uint256.Int) error
	// TransferIn pulls amount of stable units from the payer into engine
	// custody, ahead of a burn.
	TransferIn(ctx context.Context, from uuid.UUID, amount *uint256.Int) error
	// Burn destroys amount of stable units held in engine custody.
	Burn(ctx context.Context, amount *uint256.Int) error
}

// EventSink receives the observable events of committed operations. Events
// for an aborted operation are never delivered.
type EventSink interface {
	Emit(env event.Envelope)
}
