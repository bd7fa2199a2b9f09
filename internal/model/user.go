package model

import (
	"time"

	"github.com/google/uuid"
)

type AppUser struct {
	Base
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	RoleID       uuid.UUID  `db:"role_id" json:"role_id"`
	UnitID       uuid.UUID  `db:"unit_id" json:"unit_id"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Unit is an organizational unit. Units form a tree via ParentUnitID.
type Unit struct {
	Base
	Name         string     `db:"name" json:"name"`
	Type         string     `db:"type" json:"type"`
	ParentUnitID *uuid.UUID `db:"parent_unit_id" json:"parent_unit_id,omitempty"`
}
