package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PerpTrade/internal/event"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EventRow represents a row in event_log.position_events
type EventRow struct {
	Sequence  int64
	Market    string
	EventType string
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// RowFromEnvelope flattens an engine envelope into its storage row.
func RowFromEnvelope(env *event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload for seq %d: %w", env.Sequence, err)
	}
	return EventRow{
		Sequence:  env.Sequence,
		Market:    env.Market,
		EventType: env.Type.String(),
		Payload:   payload,
		StateHash: append([]byte(nil), env.StateHash[:]...),
		PrevHash:  append([]byte(nil), env.PrevHash[:]...),
		Timestamp: env.Timestamp,
	}, nil
}

// EventLogWriter writes position events to Postgres using multi-row INSERT.
// Writes are idempotent: (market, sequence) conflicts are dropped, so
// replays and retries never duplicate rows.
type EventLogWriter struct{}

func NewEventLogWriter() *EventLogWriter {
	return &EventLogWriter{}
}

// WriteEventBatch writes a batch of events to event_log.position_events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.position_events
		(sequence, market, event_type, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*7)

	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			e.Sequence, e.Market, e.EventType, e.Payload,
			e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (market, sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
