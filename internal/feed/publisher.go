package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"PerpTrade/internal/event"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher forwards committed engine envelopes to NATS for downstream
// consumers. Subjects follow perptrade.position.events.{event_type}.{market}.
//
// As an engine sink it must not stall the engine: envelopes are handed off
// through a buffered channel with a non-blocking send and dropped when the
// publisher falls behind. Consumers that miss events can rebuild from the
// event log.
type Publisher struct {
	js    jetstream.JetStream
	input chan *event.Envelope
	log   zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, buffer int, logger zerolog.Logger) *Publisher {
	return &Publisher{
		js:    js,
		input: make(chan *event.Envelope, buffer),
		log:   logger,
	}
}

// Emit implements the engine sink. Drops on full buffer.
func (p *Publisher) Emit(env *event.Envelope) {
	select {
	case p.input <- env:
	default:
		p.log.Warn().Int64("sequence", env.Sequence).Str("market", env.Market).Msg("publish buffer full, dropping envelope")
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-p.input:
			if err := p.publish(ctx, env); err != nil {
				// Non-fatal: the event log remains the source of truth.
				p.log.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("perptrade.position.events.%s.%s", env.Type.String(), env.Market)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
