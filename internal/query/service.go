package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"PerpTrade/internal/engine"
)

// EventRecord is a persisted event as returned to API clients.
type EventRecord struct {
	Sequence  int64           `json:"sequence"`
	Market    string          `json:"market"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Service answers read requests. Live position state comes straight from
// the engines; historical events come from the Postgres event log. The db
// may be nil, in which case history queries report unavailability.
type Service struct {
	registry *engine.Registry
	db       *sql.DB
}

func NewService(registry *engine.Registry, db *sql.DB) *Service {
	return &Service{registry: registry, db: db}
}

// Engine returns the engine for a market, or an error if unknown.
func (s *Service) Engine(market string) (*engine.Engine, error) {
	e := s.registry.Get(market)
	if e == nil {
		return nil, fmt.Errorf("unknown market %q", market)
	}
	return e, nil
}

// Markets returns all registered market names.
func (s *Service) Markets() []string {
	return s.registry.Markets()
}

// PositionHistory returns the persisted events touching one position,
// oldest first.
func (s *Service) PositionHistory(ctx context.Context, market, positionID string, limit int) ([]EventRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("event history unavailable: no database configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, market, event_type, payload, timestamp
		FROM event_log.position_events
		WHERE market = $1 AND payload ->> 'position_id' = $2
		ORDER BY sequence ASC
		LIMIT $3`,
		market, positionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query position history: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// RecentEvents returns the latest persisted events for a market, newest
// first.
func (s *Service) RecentEvents(ctx context.Context, market string, limit int) ([]EventRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("event history unavailable: no database configured")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, market, event_type, payload, timestamp
		FROM event_log.position_events
		WHERE market = $1
		ORDER BY sequence DESC
		LIMIT $2`,
		market, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	out := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var payload []byte
		if err := rows.Scan(&rec.Sequence, &rec.Market, &rec.EventType, &payload, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}
