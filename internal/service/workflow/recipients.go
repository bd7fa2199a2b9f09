package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
)

type RecipientInput struct {
	UnitID uuid.UUID  `json:"unit_id" validate:"required"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Type   string     `json:"type" validate:"required"`
}

// Router resolves recipient tuples at submission-creation time and handles
// read-flag updates afterwards.
type Router struct {
	units repository.UnitRepository
	subs  repository.SubmissionRepository
}

func NewRouter(units repository.UnitRepository, subs repository.SubmissionRepository) *Router {
	return &Router{
		units: units,
		subs:  subs,
	}
}

// Resolve validates every tuple before any row is built so an invalid
// recipient rejects the whole set.
func (r *Router) Resolve(ctx context.Context, inputs []RecipientInput) ([]*model.SubmissionRecipient, error) {
	recipients := make([]*model.SubmissionRecipient, 0, len(inputs))
	for _, in := range inputs {
		recipientType := model.RecipientType(in.Type)
		if recipientType != model.RecipientTo && recipientType != model.RecipientCC {
			return nil, apperrors.Validation(fmt.Sprintf("invalid recipient type %q", in.Type), nil)
		}

		exists, err := r.units.Exists(ctx, in.UnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to validate recipient unit: %w", err)
		}
		if !exists {
			return nil, apperrors.Validation(fmt.Sprintf("unknown recipient unit %s", in.UnitID), nil)
		}

		recipients = append(recipients, &model.SubmissionRecipient{
			UnitID:        in.UnitID,
			RecipientUser: in.UserID,
			Type:          recipientType,
		})
	}
	return recipients, nil
}

// MarkRead flags the recipient row for the reader's unit. Idempotent:
// re-marking an already-read recipient is a no-op.
func (r *Router) MarkRead(ctx context.Context, submissionID, unitID, readerID uuid.UUID) error {
	if _, err := r.subs.GetByID(ctx, submissionID); err != nil {
		return err
	}
	return r.subs.MarkRead(ctx, submissionID, unitID, readerID)
}
