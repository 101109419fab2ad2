package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"StableVault/internal/observability"
	"StableVault/internal/oracle"
)

// PriceReport is the JSON wire form of one oracle observation on
// vault.prices.{feed}. Price is a decimal string in the feed's native
// decimals.
type PriceReport struct {
	FeedID    string    `json:"feed_id"`
	Price     string    `json:"price"`
	Decimals  uint32    `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceSubscriber consumes price reports from JetStream and keeps the
// oracle cache current.
type PriceSubscriber struct {
	js       jetstream.JetStream
	feed     *oracle.CachedFeed
	metrics  *observability.Metrics
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(
	js jetstream.JetStream,
	feed *oracle.CachedFeed,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *PriceSubscriber {
	return &PriceSubscriber{js: js, feed: feed, metrics: metrics, log: log}
}

// Subscribe creates a durable consumer on the price stream. Malformed
// reports are acked and dropped; the cache only ever moves forward.
func (s *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, PriceStreamName, jetstream.ConsumerConfig{
		Durable:       "vault-prices",
		FilterSubject: PriceSubjectRoot + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer vault-prices: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := s.apply(msg.Data()); err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping bad price report")
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume vault-prices: %w", err)
	}

	s.consumer = cc
	s.log.Info().Str("subject", PriceSubjectRoot+".>").Msg("subscribed to price reports")
	return nil
}

func (s *PriceSubscriber) apply(data []byte) error {
	var report PriceReport
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("unmarshal price report: %w", err)
	}
	if report.FeedID == "" {
		return fmt.Errorf("price report missing feed_id")
	}

	price, err := uint256.FromDecimal(report.Price)
	if err != nil {
		return fmt.Errorf("price %q on feed %s: %w", report.Price, report.FeedID, err)
	}

	s.feed.Update(report.FeedID, oracle.Quote{
		Price:     price,
		Decimals:  report.Decimals,
		UpdatedAt: report.UpdatedAt,
	})
	if s.metrics != nil {
		s.metrics.PriceUpdates.WithLabelValues(report.FeedID).Inc()
		s.metrics.PriceUpdateLag.WithLabelValues(report.FeedID).Observe(time.Since(report.UpdatedAt).Seconds())
	}
	return nil
}

// Stop gracefully stops the consumer.
func (s *PriceSubscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.log.Info().Msg("price subscriber stopped")
}
