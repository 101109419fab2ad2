package event

import "github.com/google/uuid"

// Amounts are decimal strings of wad-scale (or asset-native) quantities so
// payloads survive JSON without precision loss.

// CollateralDeposited is emitted when a user's deposit of an asset grows.
type CollateralDeposited struct {
	User   uuid.UUID `json:"user"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
}

func (e *CollateralDeposited) EventType() Type    { return TypeCollateralDeposited }
func (e *CollateralDeposited) Subject() uuid.UUID { return e.User }

// CollateralRedeemed is emitted when collateral leaves a position — either a
// self-service withdrawal (From == To) or a liquidation seizure.
type CollateralRedeemed struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	Asset  string    `json:"asset"`
	Amount string    `json:"amount"`
}

func (e *CollateralRedeemed) EventType() Type    { return TypeCollateralRedeemed }
func (e *CollateralRedeemed) Subject() uuid.UUID { return e.From }

// StableMinted is emitted when new stable units are issued against a
// position.
type StableMinted struct {
	User   uuid.UUID `json:"user"`
	Amount string    `json:"amount"`
}

func (e *StableMinted) EventType() Type    { return TypeStableMinted }
func (e *StableMinted) Subject() uuid.UUID { return e.User }

// StableBurned is emitted when debt is retired. Payer funds the burn; it
// differs from OnBehalfOf during liquidation.
type StableBurned struct {
	OnBehalfOf uuid.UUID `json:"on_behalf_of"`
	Payer      uuid.UUID `json:"payer"`
	Amount     string    `json:"amount"`
}

func (e *StableBurned) EventType() Type    { return TypeStableBurned }
func (e *StableBurned) Subject() uuid.UUID { return e.OnBehalfOf }

// PositionLiquidated summarizes a completed liquidation.
type PositionLiquidated struct {
	Liquidator        uuid.UUID `json:"liquidator"`
	Target            uuid.UUID `json:"target"`
	Asset             string    `json:"asset"`
	DebtCovered       string    `json:"debt_covered"`
	CollateralSeized  string    `json:"collateral_seized"`
	EndingHealthWad   string    `json:"ending_health_wad"`
	StartingHealthWad string    `json:"starting_health_wad"`
}

func (e *PositionLiquidated) EventType() Type    { return TypePositionLiquidated }
func (e *PositionLiquidated) Subject() uuid.UUID { return e.Target }
