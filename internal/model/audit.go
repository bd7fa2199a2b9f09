package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types published through the outbox.
const (
	AuditSubmissionApproved = "SUBMISSION_APPROVED"
	AuditSubmissionRejected = "SUBMISSION_REJECTED"
	AuditSubmissionRecalled = "SUBMISSION_RECALLED"
	AuditSubmissionCreated  = "SUBMISSION_CREATED"
	AuditOverrideChanged    = "PERMISSION_OVERRIDE_CHANGED"
)

// AuditEvent is the payload emitted once per consequential action.
type AuditEvent struct {
	ActorID    uuid.UUID `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   uuid.UUID `json:"target_id"`
	Timestamp  time.Time `json:"timestamp"`
	Metadata   any       `json:"metadata,omitempty"`
}
