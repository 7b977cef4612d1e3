// Package audit persists discrete security facts emitted by the access
// control engine. Emission failures are logged and swallowed so that the
// mutation being described is never blocked by its own audit trail.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Fact represents a record stored in audit_logs.
type Fact struct {
	EventID  uuid.UUID
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Sink persists audit facts.
type Sink interface {
	Record(ctx context.Context, fact Fact) error
}

// PGSink writes facts into audit_logs.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a new PGSink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Record persists the fact.
func (s *PGSink) Record(ctx context.Context, fact Fact) error {
	if s == nil {
		return errors.New("audit sink not initialised")
	}
	if fact.Action == "" || fact.Entity == "" {
		return errors.New("audit fact requires action/entity")
	}
	metaJSON, err := json.Marshal(fact.Meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_logs (event_id, actor, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		fact.EventID, fact.Actor, fact.Action, fact.Entity, fact.EntityID, metaJSON, fact.At)
	return err
}

// Entry is a stored audit record returned to review endpoints.
type Entry struct {
	ID       int64          `json:"id"`
	EventID  string         `json:"eventId"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entityId"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"occurredAt"`
}

// Recent returns the newest entries up to limit.
func (s *PGSink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, event_id, actor, action, entity, entity_id, meta, occurred_at FROM audit_logs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventID uuid.UUID
		var meta []byte
		if err := rows.Scan(&e.ID, &eventID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &meta, &e.At); err != nil {
			return nil, err
		}
		e.EventID = eventID.String()
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
