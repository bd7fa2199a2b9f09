package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"

	"github.com/safeflow/procedure-api/internal/model"
)

func (r *submissionRepository) Create(ctx context.Context, sub *model.Submission, recipients []*model.SubmissionRecipient) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	sub.ID = uuid.New()
	sub.Status = model.SubmissionStatusSubmitted
	sub.SubmittedAt = now
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
		INSERT INTO submissions (
			id, title, body, status, submitted_by, unit_id, designated_approver,
			submitted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.ExecContext(ctx, query,
		sub.ID,
		sub.Title,
		sub.Body,
		sub.Status,
		sub.SubmittedBy,
		sub.UnitID,
		sub.DesignatedApprover,
		sub.SubmittedAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	recipientQuery := `
		INSERT INTO submission_recipients (
			submission_id, unit_id, recipient_user, recipient_type, is_read, created_at
		) VALUES ($1, $2, $3, $4, false, $5)
	`
	for _, rec := range recipients {
		rec.SubmissionID = sub.ID
		rec.CreatedAt = now
		if _, err := tx.ExecContext(ctx, recipientQuery,
			rec.SubmissionID,
			rec.UnitID,
			rec.RecipientUser,
			rec.Type,
			rec.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create submission recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	query := `
		SELECT id, title, body, status, submitted_by, unit_id, designated_approver,
		       submitted_at, decided_at, recalled_at, recall_reason, created_at, updated_at
		FROM submissions
		WHERE id = $1
	`
	var sub model.Submission
	err := r.db.GetContext(ctx, &sub, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("submission", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (r *submissionRepository) ListForViewer(ctx context.Context, userID, unitID uuid.UUID, p model.Pagination) ([]*model.Submission, error) {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	query := `
		SELECT DISTINCT s.id, s.title, s.body, s.status, s.submitted_by, s.unit_id,
		       s.designated_approver, s.submitted_at, s.decided_at, s.recalled_at,
		       s.recall_reason, s.created_at, s.updated_at
		FROM submissions s
		LEFT JOIN submission_recipients sr ON sr.submission_id = s.id
		WHERE s.submitted_by = $1
		   OR s.unit_id = $2
		   OR s.designated_approver = $1
		   OR sr.unit_id = $2
		   OR sr.recipient_user = $1
		ORDER BY s.submitted_at DESC
		LIMIT $3 OFFSET $4
	`
	var subs []*model.Submission
	err := r.db.SelectContext(ctx, &subs, query, userID, unitID, p.PageSize, (p.Page-1)*p.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

// Decide performs the terminal transition and the decision append in one
// transaction. The status update is conditional on the row still being
// submitted; zero rows affected means another actor already decided or
// recalled, and the caller surfaces Conflict.
func (r *submissionRepository) Decide(ctx context.Context, submissionID uuid.UUID, status model.SubmissionStatus, decision *model.ApprovalDecision) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE submissions
		SET status = $1, decided_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	result, err := tx.ExecContext(ctx, query, status, decision.ActionDate, submissionID, model.SubmissionStatusSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to update submission status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	decision.ID = uuid.New()
	decision.SubmissionID = submissionID
	decisionQuery := `
		INSERT INTO approval_decisions (id, submission_id, approver_id, action, note, action_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.ExecContext(ctx, decisionQuery,
		decision.ID,
		decision.SubmissionID,
		decision.ApproverID,
		decision.Action,
		decision.Note,
		decision.ActionDate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append approval decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit decision: %w", err)
	}
	return true, nil
}

func (r *submissionRepository) Recall(ctx context.Context, submissionID uuid.UUID, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE submissions
		SET status = $1, recalled_at = $2, recall_reason = $3, updated_at = $2
		WHERE id = $4 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query,
		model.SubmissionStatusRecalled,
		at,
		reason,
		submissionID,
		model.SubmissionStatusSubmitted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to recall submission: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *submissionRepository) ListDecisions(ctx context.Context, submissionID uuid.UUID) ([]*model.ApprovalDecision, error) {
	query := `
		SELECT id, submission_id, approver_id, action, note, action_date
		FROM approval_decisions
		WHERE submission_id = $1
		ORDER BY action_date ASC
	`
	var decisions []*model.ApprovalDecision
	if err := r.db.SelectContext(ctx, &decisions, query, submissionID); err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return decisions, nil
}

func (r *submissionRepository) ListRecipients(ctx context.Context, submissionID uuid.UUID) ([]*model.SubmissionRecipient, error) {
	query := `
		SELECT submission_id, unit_id, recipient_user, recipient_type, is_read, created_at
		FROM submission_recipients
		WHERE submission_id = $1
		ORDER BY created_at ASC
	`
	var recipients []*model.SubmissionRecipient
	if err := r.db.SelectContext(ctx, &recipients, query, submissionID); err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, nil
}

func (r *submissionRepository) MarkRead(ctx context.Context, submissionID, unitID, readerID uuid.UUID) error {
	query := `
		UPDATE submission_recipients
		SET is_read = true
		WHERE submission_id = $1 AND unit_id = $2 AND is_read = false
	`
	_, err := r.db.ExecContext(ctx, query, submissionID, unitID)
	if err != nil {
		return fmt.Errorf("failed to mark recipient read: %w", err)
	}
	return nil
}
