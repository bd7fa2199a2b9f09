package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safeflow/procedure-api/internal/model"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AppUser, error)
	GetByEmail(ctx context.Context, email string) (*model.AppUser, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type UnitRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Unit, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// IsSelfOrAncestor reports whether unitID equals descendantID or is an
	// ancestor of it in the unit tree.
	IsSelfOrAncestor(ctx context.Context, unitID, descendantID uuid.UUID) (bool, error)
}

type RBACRepository interface {
	GetRoleByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	GetRoleByCode(ctx context.Context, code string) (*model.Role, error)
	ListRolePermissionCodes(ctx context.Context, roleID uuid.UUID) ([]string, error)
	ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]*model.UserPermissionOverride, error)
	GetPermissionByCode(ctx context.Context, code string) (*model.Permission, error)
	ListPermissions(ctx context.Context) ([]*model.Permission, error)
	UpsertUserOverride(ctx context.Context, userID, permissionID uuid.UUID, granted bool) error
	DeleteUserOverride(ctx context.Context, userID, permissionID uuid.UUID) error
}

type SubmissionRepository interface {
	// Create persists the submission and its recipient rows in one
	// transaction. No partial recipient set survives a failure.
	Create(ctx context.Context, sub *model.Submission, recipients []*model.SubmissionRecipient) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	ListForViewer(ctx context.Context, userID, unitID uuid.UUID, p model.Pagination) ([]*model.Submission, error)
	// Decide flips status from submitted to the decided state and appends
	// the decision row in a single transaction. The status update is a
	// compare-and-swap on the submitted status; returns false when another
	// transition won the race.
	Decide(ctx context.Context, submissionID uuid.UUID, status model.SubmissionStatus, decision *model.ApprovalDecision) (bool, error)
	// Recall flips status from submitted to recalled. Same CAS contract as
	// Decide; no decision row is written.
	Recall(ctx context.Context, submissionID uuid.UUID, reason string, at time.Time) (bool, error)
	ListDecisions(ctx context.Context, submissionID uuid.UUID) ([]*model.ApprovalDecision, error)
	ListRecipients(ctx context.Context, submissionID uuid.UUID) ([]*model.SubmissionRecipient, error)
	// MarkRead is idempotent; re-marking an already-read recipient is a no-op.
	MarkRead(ctx context.Context, submissionID, unitID, readerID uuid.UUID) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// GetPendingEvents returns pending events due for delivery, oldest
	// first. Delivery is at least once; a crash between publish and
	// UpdateStatus re-delivers on the next poll.
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
