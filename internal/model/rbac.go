package model

import (
	"github.com/google/uuid"
)

// System role codes. Role codes are immutable once seeded.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// Well-known permission codes, namespaced module.action.
const (
	PermProcedureView     = "procedure.view"
	PermProcedureCreate   = "procedure.create"
	PermSubmissionApprove = "submission.approve"
	PermSubmissionRecall  = "submission.recall"
	PermPermissionManage  = "permission.manage"
)

type Role struct {
	Base
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	IsSystemRole bool   `db:"is_system_role" json:"is_system_role"`
}

type Permission struct {
	Base
	Code        string `db:"code" json:"code"`
	Module      string `db:"module" json:"module"`
	Description string `db:"description" json:"description"`
}

type RolePermission struct {
	RoleID       uuid.UUID `db:"role_id" json:"role_id"`
	PermissionID uuid.UUID `db:"permission_id" json:"permission_id"`
}

// UserPermissionOverride is a per-user grant or revoke that wins over the
// role baseline. At most one row per (user, permission).
type UserPermissionOverride struct {
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	PermissionID uuid.UUID `db:"permission_id" json:"permission_id"`
	Code         string    `db:"code" json:"code"`
	IsGranted    bool      `db:"is_granted" json:"is_granted"`
}
