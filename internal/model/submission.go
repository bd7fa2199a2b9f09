package model

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusApproved  SubmissionStatus = "approved"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
	SubmissionStatusRecalled  SubmissionStatus = "recalled"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionStatusApproved || s == SubmissionStatusRejected || s == SubmissionStatusRecalled
}

type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

type RecipientType string

const (
	RecipientTo RecipientType = "to"
	RecipientCC RecipientType = "cc"
)

type Submission struct {
	Base
	Title              string           `db:"title" json:"title"`
	Body               string           `db:"body" json:"body"`
	Status             SubmissionStatus `db:"status" json:"status"`
	SubmittedBy        uuid.UUID        `db:"submitted_by" json:"submitted_by"`
	UnitID             uuid.UUID        `db:"unit_id" json:"unit_id"`
	DesignatedApprover *uuid.UUID       `db:"designated_approver" json:"designated_approver,omitempty"`
	SubmittedAt        time.Time        `db:"submitted_at" json:"submitted_at"`
	DecidedAt          *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	RecalledAt         *time.Time       `db:"recalled_at" json:"recalled_at,omitempty"`
	RecallReason       *string          `db:"recall_reason" json:"recall_reason,omitempty"`
}

// SubmissionRecipient addresses a unit (optionally a specific user) on a
// submission as To or CC. Created once; only the read flag changes afterwards.
type SubmissionRecipient struct {
	SubmissionID  uuid.UUID     `db:"submission_id" json:"submission_id"`
	UnitID        uuid.UUID     `db:"unit_id" json:"unit_id"`
	RecipientUser *uuid.UUID    `db:"recipient_user" json:"recipient_user,omitempty"`
	Type          RecipientType `db:"recipient_type" json:"recipient_type"`
	IsRead        bool          `db:"is_read" json:"is_read"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// ApprovalDecision is an append-only log row. Never updated or deleted.
type ApprovalDecision struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	SubmissionID uuid.UUID      `db:"submission_id" json:"submission_id"`
	ApproverID   uuid.UUID      `db:"approver_id" json:"approver_id"`
	Action       DecisionAction `db:"action" json:"action"`
	Note         string         `db:"note" json:"note"`
	ActionDate   time.Time      `db:"action_date" json:"action_date"`
}

// SubmissionView is a per-viewer read projection. CanApprove and CanRecall
// are computed at query time, never stored.
type SubmissionView struct {
	Submission
	Recipients []*SubmissionRecipient `json:"recipients,omitempty"`
	Decisions  []*ApprovalDecision    `json:"decisions,omitempty"`
	CanApprove bool                   `json:"can_approve"`
	CanRecall  bool                   `json:"can_recall"`
}
