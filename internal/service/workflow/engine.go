package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"
	"github.com/safeflow/procedure-api/pkg/logger"
	"github.com/safeflow/procedure-api/pkg/metrics"
	"github.com/safeflow/procedure-api/pkg/validator"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
	"github.com/safeflow/procedure-api/internal/service/audit"
	"github.com/safeflow/procedure-api/internal/service/authz"
)

const minRecallReasonLength = 10

// Engine drives the submission lifecycle. Every mutation is gated first,
// then applied as a conditional write so racing actors cannot both decide
// the same submission.
type Engine struct {
	subs     repository.SubmissionRepository
	units    repository.UnitRepository
	router   *Router
	gate     *authz.Gate
	auditor  *audit.Emitter
	validate *validator.Validator
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewEngine(
	subs repository.SubmissionRepository,
	units repository.UnitRepository,
	router *Router,
	gate *authz.Gate,
	auditor *audit.Emitter,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Engine {
	return &Engine{
		subs:     subs,
		units:    units,
		router:   router,
		gate:     gate,
		auditor:  auditor,
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger,
	}
}

type CreateInput struct {
	Title              string `validate:"required"`
	Body               string
	DesignatedApprover *uuid.UUID
	Recipients         []RecipientInput `validate:"required,min=1,dive"`
}

// Create persists a new submission with its recipient set. The recipient
// rows are written in the same transaction as the submission; an invalid
// recipient fails the whole call.
func (e *Engine) Create(ctx context.Context, claims authz.Claims, input CreateInput) (*model.Submission, error) {
	if err := e.gate.Evaluate(ctx, claims,
		authz.PermissionRequirement(model.PermProcedureCreate),
		authz.UnitRequirement(true),
	); err != nil {
		return nil, err
	}

	if err := e.validate.Struct(input); err != nil {
		return nil, apperrors.Validation("invalid submission", err)
	}

	recipients, err := e.router.Resolve(ctx, input.Recipients)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		Title:              input.Title,
		Body:               input.Body,
		SubmittedBy:        claims.UserID,
		UnitID:             claims.UnitID,
		DesignatedApprover: input.DesignatedApprover,
	}
	if err := e.subs.Create(ctx, sub, recipients); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	e.metrics.WorkflowTransitions.WithLabelValues("create", "success").Inc()
	e.auditor.Emit(ctx, model.AuditSubmissionCreated, claims.UserID, "submission", sub.ID, nil)
	return sub, nil
}

// Approve moves a submitted submission to approved and appends the
// decision row. Fails with Conflict if the submission is already terminal.
func (e *Engine) Approve(ctx context.Context, claims authz.Claims, submissionID uuid.UUID, note string) (*model.Submission, error) {
	return e.decide(ctx, claims, submissionID, model.DecisionApprove, note)
}

// Reject is Approve with a mandatory note; rejection must be explained.
func (e *Engine) Reject(ctx context.Context, claims authz.Claims, submissionID uuid.UUID, note string) (*model.Submission, error) {
	if note == "" {
		return nil, apperrors.Validation("rejection note is required", nil)
	}
	return e.decide(ctx, claims, submissionID, model.DecisionReject, note)
}

func (e *Engine) decide(ctx context.Context, claims authz.Claims, submissionID uuid.UUID, action model.DecisionAction, note string) (*model.Submission, error) {
	if err := e.gate.Evaluate(ctx, claims,
		authz.PermissionRequirement(model.PermSubmissionApprove),
	); err != nil {
		return nil, err
	}

	sub, err := e.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubmissionStatusSubmitted {
		return nil, apperrors.Conflict(fmt.Sprintf("submission already %s", sub.Status), nil)
	}

	eligible, err := e.satisfiesApproverRule(ctx, claims, sub)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, apperrors.Forbidden("not an eligible approver for this submission", nil)
	}

	status := model.SubmissionStatusApproved
	eventType := model.AuditSubmissionApproved
	if action == model.DecisionReject {
		status = model.SubmissionStatusRejected
		eventType = model.AuditSubmissionRejected
	}

	decision := &model.ApprovalDecision{
		ApproverID: claims.UserID,
		Action:     action,
		Note:       note,
		ActionDate: time.Now(),
	}
	updated, err := e.subs.Decide(ctx, submissionID, status, decision)
	if err != nil {
		e.metrics.WorkflowTransitions.WithLabelValues(string(action), "error").Inc()
		return nil, fmt.Errorf("failed to decide submission: %w", err)
	}
	if !updated {
		e.metrics.WorkflowTransitions.WithLabelValues(string(action), "conflict").Inc()
		return nil, e.conflictForCurrentState(ctx, submissionID)
	}

	e.metrics.WorkflowTransitions.WithLabelValues(string(action), "success").Inc()
	e.auditor.Emit(ctx, eventType, claims.UserID, "submission", submissionID, map[string]string{"note": note})

	return e.subs.GetByID(ctx, submissionID)
}

// Recall lets the submitter withdraw a submission before any decision is
// recorded. No decision row is written.
func (e *Engine) Recall(ctx context.Context, claims authz.Claims, submissionID uuid.UUID, reason string) (*model.Submission, error) {
	if err := e.gate.Evaluate(ctx, claims,
		authz.PermissionRequirement(model.PermSubmissionRecall),
	); err != nil {
		return nil, err
	}
	if err := e.validate.Var(reason, fmt.Sprintf("required,min=%d", minRecallReasonLength)); err != nil {
		return nil, apperrors.Validation(
			fmt.Sprintf("recall reason must be at least %d characters", minRecallReasonLength), err)
	}

	sub, err := e.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if claims.UserID != sub.SubmittedBy {
		return nil, apperrors.Forbidden("only the submitter may recall", nil)
	}
	if sub.Status != model.SubmissionStatusSubmitted {
		return nil, apperrors.Conflict(fmt.Sprintf("submission already %s", sub.Status), nil)
	}

	updated, err := e.subs.Recall(ctx, submissionID, reason, time.Now())
	if err != nil {
		e.metrics.WorkflowTransitions.WithLabelValues("recall", "error").Inc()
		return nil, fmt.Errorf("failed to recall submission: %w", err)
	}
	if !updated {
		e.metrics.WorkflowTransitions.WithLabelValues("recall", "conflict").Inc()
		return nil, e.conflictForCurrentState(ctx, submissionID)
	}

	e.metrics.WorkflowTransitions.WithLabelValues("recall", "success").Inc()
	e.auditor.Emit(ctx, model.AuditSubmissionRecalled, claims.UserID, "submission", submissionID, map[string]string{"reason": reason})

	return e.subs.GetByID(ctx, submissionID)
}

// View assembles the per-viewer projection of a submission.
func (e *Engine) View(ctx context.Context, claims authz.Claims, submissionID uuid.UUID) (*model.SubmissionView, error) {
	if err := e.gate.Evaluate(ctx, claims); err != nil {
		return nil, err
	}

	sub, err := e.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	recipients, err := e.subs.ListRecipients(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	decisions, err := e.subs.ListDecisions(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	view := &model.SubmissionView{
		Submission: *sub,
		Recipients: recipients,
		Decisions:  decisions,
		CanRecall:  e.CanRecall(claims, sub),
	}
	view.CanApprove, err = e.CanApprove(ctx, claims, sub)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// List returns submissions visible to the viewer: their own, their unit's,
// and those addressed to them.
func (e *Engine) List(ctx context.Context, claims authz.Claims, p model.Pagination) ([]*model.Submission, error) {
	if err := e.gate.Evaluate(ctx, claims); err != nil {
		return nil, err
	}
	return e.subs.ListForViewer(ctx, claims.UserID, claims.UnitID, p)
}

// CanApprove reports whether the viewer could decide the submission right
// now. Pure read-side projection, never stored.
func (e *Engine) CanApprove(ctx context.Context, claims authz.Claims, sub *model.Submission) (bool, error) {
	if sub.Status != model.SubmissionStatusSubmitted {
		return false, nil
	}
	return e.satisfiesApproverRule(ctx, claims, sub)
}

// CanRecall reports whether the viewer may withdraw the submission.
func (e *Engine) CanRecall(claims authz.Claims, sub *model.Submission) bool {
	return sub.Status == model.SubmissionStatusSubmitted && claims.UserID == sub.SubmittedBy
}

// satisfiesApproverRule: the designated approver if one is set; otherwise a
// manager or admin whose unit covers the submission's originating unit.
func (e *Engine) satisfiesApproverRule(ctx context.Context, claims authz.Claims, sub *model.Submission) (bool, error) {
	if sub.DesignatedApprover != nil {
		return claims.UserID == *sub.DesignatedApprover, nil
	}
	if claims.RoleCode != model.RoleManager && claims.RoleCode != model.RoleAdmin {
		return false, nil
	}
	return e.units.IsSelfOrAncestor(ctx, claims.UnitID, sub.UnitID)
}

func (e *Engine) conflictForCurrentState(ctx context.Context, submissionID uuid.UUID) error {
	sub, err := e.subs.GetByID(ctx, submissionID)
	if err != nil {
		return apperrors.Conflict("submission already decided", err)
	}
	return apperrors.Conflict(fmt.Sprintf("submission already %s", sub.Status), nil)
}
