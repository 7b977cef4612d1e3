package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Emitter emits audit facts on a best-effort basis. A nil *Emitter is valid
// and drops every fact, which keeps call sites unconditional.
type Emitter struct {
	sink   Sink
	logger *slog.Logger
}

// NewEmitter constructs an Emitter around a sink.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	return &Emitter{sink: sink, logger: logger}
}

// Emit records the fact, logging and swallowing any sink failure.
func (e *Emitter) Emit(ctx context.Context, actor, action, entity, entityID string, meta map[string]any) {
	if e == nil || e.sink == nil {
		return
	}
	fact := Fact{
		EventID:  uuid.New(),
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}
	if err := e.sink.Record(ctx, fact); err != nil {
		if e.logger != nil {
			e.logger.Warn("audit emit failed",
				slog.String("action", action),
				slog.String("entity", entity),
				slog.String("entity_id", entityID),
				slog.Any("error", err))
		}
	}
}
