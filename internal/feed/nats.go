package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PerpTrade/internal/event"
	"PerpTrade/internal/observability"
	"PerpTrade/internal/oracle"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	PriceStreamName  = "PERPTRADE_PRICES"
	PriceSubject     = "perptrade.prices.>"
	PriceConsumer    = "perptrade-prices"
	EventsStreamName = "PERPTRADE_EVENTS"
	EventsSubjects   = "perptrade.position.events.>"
)

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStreams creates the price and outbound event streams if absent.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      PriceStreamName,
			Subjects:  []string{PriceSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      EventsStreamName,
			Subjects:  []string{EventsSubjects},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// PriceSubscriber consumes mark price updates from JetStream and applies
// them to the oracle board. Board sequencing makes redelivery idempotent,
// so messages are ACKed even when dropped as stale.
type PriceSubscriber struct {
	js       jetstream.JetStream
	board    *oracle.Board
	metrics  *observability.Metrics
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewPriceSubscriber(
	js jetstream.JetStream,
	board *oracle.Board,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PriceSubscriber {
	return &PriceSubscriber{
		js:      js,
		board:   board,
		metrics: metrics,
		log:     logger,
	}
}

// Subscribe creates the durable consumer and starts consuming.
// Explicit ACK, max_deliver=5, ack_wait=30s.
func (ps *PriceSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ps.js.CreateOrUpdateConsumer(ctx, PriceStreamName, jetstream.ConsumerConfig{
		Durable:       PriceConsumer,
		FilterSubject: PriceSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", PriceConsumer, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		ps.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", PriceConsumer, err)
	}

	ps.consumer = consumerContext
	ps.log.Info().Str("subject", PriceSubject).Msg("subscribed to price feed")
	return nil
}

func (ps *PriceSubscriber) handle(msg jetstream.Msg) {
	update, err := ParseMarkPriceUpdate(msg.Data())
	if err != nil {
		// Malformed payloads never become valid: ACK so they are not
		// redelivered, and surface the failure in logs and metrics.
		ps.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("drop malformed price update")
		if ps.metrics != nil {
			ps.metrics.FeedUpdatesStale.WithLabelValues("malformed").Inc()
		}
		msg.Ack()
		return
	}

	before, _ := ps.board.State(update.Feed)
	if err := ps.board.Set(update.Feed, update.Price, update.PriceSequence, update.TimestampUs); err != nil {
		ps.log.Warn().Err(err).Str("feed", update.Feed).Msg("drop invalid price update")
		if ps.metrics != nil {
			ps.metrics.FeedUpdatesStale.WithLabelValues(update.Feed).Inc()
		}
		msg.Ack()
		return
	}

	after, _ := ps.board.State(update.Feed)
	if ps.metrics != nil {
		if after.Sequence == before.Sequence {
			ps.metrics.FeedUpdatesStale.WithLabelValues(update.Feed).Inc()
		} else {
			ps.metrics.FeedUpdatesApplied.WithLabelValues(update.Feed).Inc()
			ps.metrics.FeedLagSeconds.WithLabelValues(update.Feed).
				Set(time.Since(time.UnixMicro(update.TimestampUs)).Seconds())
		}
	}
	msg.Ack()
}

// Stop gracefully stops the consumer.
func (ps *PriceSubscriber) Stop() {
	if ps.consumer != nil {
		ps.consumer.Stop()
	}
	ps.log.Info().Msg("price subscriber stopped")
}

// ParseMarkPriceUpdate validates and decodes a price feed payload.
func ParseMarkPriceUpdate(data []byte) (*event.MarkPriceUpdate, error) {
	var update event.MarkPriceUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("parse MarkPriceUpdate: %w", err)
	}
	if update.Feed == "" {
		return nil, fmt.Errorf("MarkPriceUpdate missing feed")
	}
	if update.Price <= 0 {
		return nil, fmt.Errorf("MarkPriceUpdate price must be > 0, got %d", update.Price)
	}
	return &update, nil
}
