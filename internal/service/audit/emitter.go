package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/pkg/logger"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
)

// Emitter writes audit events to the outbox table. The outbox processor
// delivers them to the broker at least once. Emit never returns an error:
// a failed audit write must not fail the action that triggered it.
type Emitter struct {
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewEmitter(outbox repository.OutboxRepository, logger *logger.Logger) *Emitter {
	return &Emitter{
		outbox: outbox,
		logger: logger,
	}
}

func (e *Emitter) Emit(ctx context.Context, eventType string, actorID uuid.UUID, targetType string, targetID uuid.UUID, metadata any) {
	event := model.AuditEvent{
		ActorID:    actorID,
		Action:     eventType,
		TargetType: targetType,
		TargetID:   targetID,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error(err, "failed to marshal audit event", "event_type", eventType)
		return
	}

	if err := e.outbox.Create(ctx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		e.logger.Error(err, "failed to enqueue audit event",
			"event_type", eventType,
			"target_id", targetID.String())
	}
}
