package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"StableVault/internal/event"
	"StableVault/internal/observability"
)

// OutboundPublisher publishes committed engine events to NATS for
// downstream consumers. Subjects follow vault.events.{type}.
type OutboundPublisher struct {
	js      jetstream.JetStream
	in      <-chan event.Envelope
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewOutboundPublisher(
	js jetstream.JetStream,
	in <-chan event.Envelope,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *OutboundPublisher {
	return &OutboundPublisher{js: js, in: in, metrics: metrics, log: log}
}

// publishedEvent is the outbound wire form of an envelope.
type publishedEvent struct {
	Sequence    int64       `json:"sequence"`
	Type        string      `json:"type"`
	OperationID uuid.UUID   `json:"operation_id"`
	User        uuid.UUID   `json:"user"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     event.Event `json:"payload"`
}

// Run drains the input channel until it closes or the context ends.
func (p *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-p.in:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, env); err != nil {
				// Non-fatal: consumers can read the event log directly.
				if p.metrics != nil {
					p.metrics.PublishErrors.Inc()
				}
				p.log.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.Inc()
			}
		}
	}
}

func (p *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(publishedEvent{
		Sequence:    env.Sequence,
		Type:        env.Type.String(),
		OperationID: env.OperationID,
		User:        env.User,
		Timestamp:   env.Timestamp,
		Payload:     env.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", EventSubjectRoot, SubjectToken(env.Type))
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// SubjectToken maps an event type to its NATS subject token.
func SubjectToken(t event.Type) string {
	switch t {
	case event.TypeCollateralDeposited:
		return "collateral_deposited"
	case event.TypeCollateralRedeemed:
		return "collateral_redeemed"
	case event.TypeStableMinted:
		return "stable_minted"
	case event.TypeStableBurned:
		return "stable_burned"
	case event.TypePositionLiquidated:
		return "position_liquidated"
	default:
		return "unknown"
	}
}
