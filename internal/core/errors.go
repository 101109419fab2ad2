package core

import "errors"

// Validation errors: rejected before any state mutation.
var (
	ErrZeroAmount         = errors.New("core: amount must be positive")
	ErrAssetNotRegistered = errors.New("core: asset not registered")
	ErrInsufficientBalance = errors.New("core: amount exceeds deposited balance")
	ErrInsufficientDebt   = errors.New("core: amount exceeds outstanding debt")
)

// Collaborator-failure errors: the whole operation rolls back.
var (
	ErrTransferFailed = errors.New("core: collateral transfer failed")
	ErrMintFailed     = errors.New("core: stable unit issuance failed")
)

// Invariant-violation errors specific to liquidation.
var (
	ErrHealthFactorOk          = errors.New("core: target health factor is not below minimum")
	ErrHealthFactorNotImproved = errors.New("core: liquidation did not improve target health factor")
)

// ErrReentrantCall is returned when a state-mutating entry point is invoked
// from within a pending operation's collaborator call.
var ErrReentrantCall = errors.New("core: reentrant call")
