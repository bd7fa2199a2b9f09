package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/safeflow/procedure-api/internal/repository"
)

type userRepository struct {
	db *sqlx.DB
}

type unitRepository struct {
	db *sqlx.DB
}

type rbacRepository struct {
	db *sqlx.DB
}

type submissionRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func NewUnitRepository(db *sqlx.DB) repository.UnitRepository {
	return &unitRepository{db: db}
}

func NewRBACRepository(db *sqlx.DB) repository.RBACRepository {
	return &rbacRepository{db: db}
}

func NewSubmissionRepository(db *sqlx.DB) repository.SubmissionRepository {
	return &submissionRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}
