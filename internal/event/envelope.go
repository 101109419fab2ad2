package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeCollateralDeposited
	TypeCollateralRedeemed
	TypeStableMinted
	TypeStableBurned
	TypePositionLiquidated
)

func (t Type) String() string {
	switch t {
	case TypeCollateralDeposited:
		return "CollateralDeposited"
	case TypeCollateralRedeemed:
		return "CollateralRedeemed"
	case TypeStableMinted:
		return "StableMinted"
	case TypeStableBurned:
		return "StableBurned"
	case TypePositionLiquidated:
		return "PositionLiquidated"
	default:
		return "Unknown"
	}
}

// Envelope wraps every observable event the engine emits. Sequence is the
// engine's monotonic emission order; OperationID groups the events of a
// single operation (a liquidation emits several).
type Envelope struct {
	Sequence    int64
	Type        Type
	OperationID uuid.UUID
	User        uuid.UUID
	Timestamp   time.Time
	Payload     Event
}

// Event is the interface all event payloads implement.
type Event interface {
	EventType() Type
	// Subject returns the user the event is primarily about.
	Subject() uuid.UUID
}
