package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/safeflow/procedure-api/pkg/errors"
	"github.com/safeflow/procedure-api/pkg/logger"
	"github.com/safeflow/procedure-api/pkg/metrics"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/service/audit"
	"github.com/safeflow/procedure-api/internal/service/authz"
)

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[uuid.UUID]*model.Submission
	decisions   map[uuid.UUID][]*model.ApprovalDecision
	recipients  map[uuid.UUID][]*model.SubmissionRecipient
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		submissions: make(map[uuid.UUID]*model.Submission),
		decisions:   make(map[uuid.UUID][]*model.ApprovalDecision),
		recipients:  make(map[uuid.UUID][]*model.SubmissionRecipient),
	}
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, sub *model.Submission, recipients []*model.SubmissionRecipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub.ID = uuid.New()
	sub.Status = model.SubmissionStatusSubmitted
	sub.SubmittedAt = time.Now()
	copied := *sub
	f.submissions[sub.ID] = &copied
	for _, rec := range recipients {
		rec.SubmissionID = sub.ID
		f.recipients[sub.ID] = append(f.recipients[sub.ID], rec)
	}
	return nil
}

func (f *fakeSubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.submissions[id]
	if !ok {
		return nil, apperrors.NotFound("submission", nil)
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubmissionRepo) ListForViewer(ctx context.Context, userID, unitID uuid.UUID, p model.Pagination) ([]*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.Submission
	for _, sub := range f.submissions {
		if sub.SubmittedBy == userID || sub.UnitID == unitID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) Decide(ctx context.Context, submissionID uuid.UUID, status model.SubmissionStatus, decision *model.ApprovalDecision) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.submissions[submissionID]
	if !ok || sub.Status != model.SubmissionStatusSubmitted {
		return false, nil
	}
	sub.Status = status
	sub.DecidedAt = &decision.ActionDate
	decision.ID = uuid.New()
	decision.SubmissionID = submissionID
	f.decisions[submissionID] = append(f.decisions[submissionID], decision)
	return true, nil
}

func (f *fakeSubmissionRepo) Recall(ctx context.Context, submissionID uuid.UUID, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.submissions[submissionID]
	if !ok || sub.Status != model.SubmissionStatusSubmitted {
		return false, nil
	}
	sub.Status = model.SubmissionStatusRecalled
	sub.RecalledAt = &at
	sub.RecallReason = &reason
	return true, nil
}

func (f *fakeSubmissionRepo) ListDecisions(ctx context.Context, submissionID uuid.UUID) ([]*model.ApprovalDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decisions[submissionID], nil
}

func (f *fakeSubmissionRepo) ListRecipients(ctx context.Context, submissionID uuid.UUID) ([]*model.SubmissionRecipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients[submissionID], nil
}

func (f *fakeSubmissionRepo) MarkRead(ctx context.Context, submissionID, unitID, readerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.recipients[submissionID] {
		if rec.UnitID == unitID {
			rec.IsRead = true
		}
	}
	return nil
}

type fakeUnitRepo struct {
	existing map[uuid.UUID]bool
	// key is ancestor|descendant
	lineage map[[2]uuid.UUID]bool
}

func (f *fakeUnitRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Unit, error) {
	if !f.existing[id] {
		return nil, apperrors.NotFound("unit", nil)
	}
	unit := &model.Unit{}
	unit.ID = id
	return unit, nil
}

func (f *fakeUnitRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.existing[id], nil
}

func (f *fakeUnitRepo) IsSelfOrAncestor(ctx context.Context, unitID, descendantID uuid.UUID) (bool, error) {
	if unitID == descendantID {
		return true, nil
	}
	return f.lineage[[2]uuid.UUID{unitID, descendantID}], nil
}

type allowAllChecker struct{}

func (allowAllChecker) Check(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return true, nil
}

type denyAllChecker struct{}

func (denyAllChecker) Check(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return false, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type engineFixture struct {
	engine *Engine
	subs   *fakeSubmissionRepo
	units  *fakeUnitRepo
	outbox *fakeOutboxRepo
}

func newEngineFixture(checker authz.PermissionChecker) *engineFixture {
	subs := newFakeSubmissionRepo()
	units := &fakeUnitRepo{
		existing: make(map[uuid.UUID]bool),
		lineage:  make(map[[2]uuid.UUID]bool),
	}
	outbox := &fakeOutboxRepo{}
	log := logger.NewLogger(nil)
	auditor := audit.NewEmitter(outbox, log)
	router := NewRouter(units, subs)
	gate := authz.NewGate(checker)
	engine := NewEngine(subs, units, router, gate, auditor, metrics.New("test"), log)

	return &engineFixture{
		engine: engine,
		subs:   subs,
		units:  units,
		outbox: outbox,
	}
}

func submitterClaims() authz.Claims {
	return authz.Claims{
		UserID:        uuid.New(),
		RoleCode:      model.RoleUser,
		UnitID:        uuid.New(),
		Authenticated: true,
	}
}

func (fx *engineFixture) seedSubmission(t *testing.T, submitter authz.Claims, approver *uuid.UUID) *model.Submission {
	t.Helper()

	sub := &model.Submission{
		Title:              "confined space entry",
		SubmittedBy:        submitter.UserID,
		UnitID:             submitter.UnitID,
		DesignatedApprover: approver,
	}
	require.NoError(t, fx.subs.Create(context.Background(), sub, nil))
	return sub
}

func TestApproveByDesignatedApprover(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{
		UserID:        approverID,
		RoleCode:      model.RoleUser,
		UnitID:        uuid.New(),
		Authenticated: true,
	}

	updated, err := fx.engine.Approve(context.Background(), approver, sub.ID, "looks safe")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusApproved, updated.Status)
	assert.NotNil(t, updated.DecidedAt)

	decisions, err := fx.subs.ListDecisions(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.DecisionApprove, decisions[0].Action)
	assert.Equal(t, approverID, decisions[0].ApproverID)

	// The submitter can no longer recall a decided submission.
	assert.False(t, fx.engine.CanRecall(submitter, updated))
}

func TestApproveRequiresPermission(t *testing.T) {
	fx := newEngineFixture(denyAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}
	_, err := fx.engine.Approve(context.Background(), approver, sub.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestApproveFallbackRule(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	sub := fx.seedSubmission(t, submitter, nil)

	parentUnit := uuid.New()
	fx.units.lineage[[2]uuid.UUID{parentUnit, submitter.UnitID}] = true

	tests := []struct {
		name    string
		claims  authz.Claims
		allowed bool
	}{
		{
			name: "manager in same unit",
			claims: authz.Claims{
				UserID: uuid.New(), RoleCode: model.RoleManager,
				UnitID: submitter.UnitID, Authenticated: true,
			},
			allowed: true,
		},
		{
			name: "manager in ancestor unit",
			claims: authz.Claims{
				UserID: uuid.New(), RoleCode: model.RoleManager,
				UnitID: parentUnit, Authenticated: true,
			},
			allowed: true,
		},
		{
			name: "manager in unrelated unit",
			claims: authz.Claims{
				UserID: uuid.New(), RoleCode: model.RoleManager,
				UnitID: uuid.New(), Authenticated: true,
			},
			allowed: false,
		},
		{
			name: "plain user in same unit",
			claims: authz.Claims{
				UserID: uuid.New(), RoleCode: model.RoleUser,
				UnitID: submitter.UnitID, Authenticated: true,
			},
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			can, err := fx.engine.CanApprove(context.Background(), tt.claims, sub)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, can)
		})
	}
}

func TestApproveIgnoresFallbackWhenDesignated(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	// A manager in the same unit is not eligible while a designated
	// approver is set.
	manager := authz.Claims{
		UserID: uuid.New(), RoleCode: model.RoleManager,
		UnitID: submitter.UnitID, Authenticated: true,
	}
	_, err := fx.engine.Approve(context.Background(), manager, sub.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
}

func TestRecallRequiresPermission(t *testing.T) {
	fx := newEngineFixture(denyAllChecker{})
	submitter := submitterClaims()
	sub := fx.seedSubmission(t, submitter, nil)

	_, err := fx.engine.Recall(context.Background(), submitter, sub.ID, "submitted the wrong revision")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	current, err := fx.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, current.Status)
}

func TestRejectRequiresNote(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}
	_, err := fx.engine.Reject(context.Background(), approver, sub.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

	// Nothing mutated.
	current, err := fx.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, current.Status)

	decisions, _ := fx.subs.ListDecisions(context.Background(), sub.ID)
	assert.Empty(t, decisions)
}

func TestRejectRecordsDecision(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}
	updated, err := fx.engine.Reject(context.Background(), approver, sub.ID, "missing lockout step")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusRejected, updated.Status)

	decisions, err := fx.subs.ListDecisions(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, model.DecisionReject, decisions[0].Action)
	assert.Equal(t, "missing lockout step", decisions[0].Note)
}

func TestRecall(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()

	t.Run("short reason fails validation", func(t *testing.T) {
		sub := fx.seedSubmission(t, submitter, nil)

		_, err := fx.engine.Recall(context.Background(), submitter, sub.ID, "no")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))

		current, err := fx.subs.GetByID(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SubmissionStatusSubmitted, current.Status)
		assert.Nil(t, current.RecallReason)
	})

	t.Run("only the submitter may recall", func(t *testing.T) {
		sub := fx.seedSubmission(t, submitter, nil)

		other := submitterClaims()
		_, err := fx.engine.Recall(context.Background(), other, sub.ID, "submitted the wrong revision")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))
	})

	t.Run("successful recall leaves no decision", func(t *testing.T) {
		sub := fx.seedSubmission(t, submitter, nil)

		updated, err := fx.engine.Recall(context.Background(), submitter, sub.ID, "submitted the wrong revision")
		require.NoError(t, err)
		assert.Equal(t, model.SubmissionStatusRecalled, updated.Status)
		assert.NotNil(t, updated.RecalledAt)
		require.NotNil(t, updated.RecallReason)
		assert.Equal(t, "submitted the wrong revision", *updated.RecallReason)

		decisions, _ := fx.subs.ListDecisions(context.Background(), sub.ID)
		assert.Empty(t, decisions)
	})

	t.Run("recall after decision conflicts", func(t *testing.T) {
		approverID := uuid.New()
		sub := fx.seedSubmission(t, submitter, &approverID)

		approver := authz.Claims{UserID: approverID, Authenticated: true}
		_, err := fx.engine.Approve(context.Background(), approver, sub.ID, "")
		require.NoError(t, err)

		_, err = fx.engine.Recall(context.Background(), submitter, sub.ID, "changed my mind about it")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

		current, err := fx.subs.GetByID(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SubmissionStatusApproved, current.Status)
		assert.Nil(t, current.RecallReason)
	})
}

func TestTransitionsFromTerminalStatesConflict(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}
	_, err := fx.engine.Approve(context.Background(), approver, sub.ID, "")
	require.NoError(t, err)

	_, err = fx.engine.Approve(context.Background(), approver, sub.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
	assert.Contains(t, err.Error(), "approved")

	_, err = fx.engine.Reject(context.Background(), approver, sub.ID, "second thoughts")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	decisions, _ := fx.subs.ListDecisions(context.Background(), sub.ID)
	assert.Len(t, decisions, 1, "a submission carries at most one decision")
}

func TestConcurrentDecisionAndRecall(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}

	var wg sync.WaitGroup
	var approveErr, recallErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = fx.engine.Approve(context.Background(), approver, sub.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, recallErr = fx.engine.Recall(context.Background(), submitter, sub.ID, "pulling this one back")
	}()
	wg.Wait()

	// Exactly one transition wins, the other observes a conflict.
	if approveErr == nil {
		require.Error(t, recallErr)
		assert.True(t, apperrors.IsCode(recallErr, apperrors.ErrConflict))
	} else {
		require.NoError(t, recallErr)
		assert.True(t, apperrors.IsCode(approveErr, apperrors.ErrConflict))
	}

	// The stored state matches the winner, never a mix.
	current, err := fx.subs.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	decisions, _ := fx.subs.ListDecisions(context.Background(), sub.ID)

	switch current.Status {
	case model.SubmissionStatusApproved:
		assert.Len(t, decisions, 1)
		assert.Nil(t, current.RecallReason)
	case model.SubmissionStatusRecalled:
		assert.Empty(t, decisions)
		assert.NotNil(t, current.RecallReason)
	default:
		t.Fatalf("unexpected final status %s", current.Status)
	}
}

func TestViewProjections(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()
	approverID := uuid.New()
	sub := fx.seedSubmission(t, submitter, &approverID)

	approver := authz.Claims{UserID: approverID, Authenticated: true}

	view, err := fx.engine.View(context.Background(), submitter, sub.ID)
	require.NoError(t, err)
	assert.True(t, view.CanRecall)
	assert.False(t, view.CanApprove)

	view, err = fx.engine.View(context.Background(), approver, sub.ID)
	require.NoError(t, err)
	assert.False(t, view.CanRecall)
	assert.True(t, view.CanApprove)

	_, err = fx.engine.Approve(context.Background(), approver, sub.ID, "")
	require.NoError(t, err)

	view, err = fx.engine.View(context.Background(), approver, sub.ID)
	require.NoError(t, err)
	assert.False(t, view.CanApprove)
	assert.False(t, view.CanRecall)
	require.Len(t, view.Decisions, 1)
}

func TestCreateEmitsAuditEvent(t *testing.T) {
	fx := newEngineFixture(allowAllChecker{})
	submitter := submitterClaims()

	unitID := uuid.New()
	fx.units.existing[unitID] = true

	sub, err := fx.engine.Create(context.Background(), submitter, CreateInput{
		Title: "hot work permit",
		Recipients: []RecipientInput{
			{UnitID: unitID, Type: string(model.RecipientTo)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusSubmitted, sub.Status)

	fx.outbox.mu.Lock()
	defer fx.outbox.mu.Unlock()
	require.NotEmpty(t, fx.outbox.events)
	assert.Equal(t, model.AuditSubmissionCreated, fx.outbox.events[len(fx.outbox.events)-1].EventType)
}
