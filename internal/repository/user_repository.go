package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/chantiers-api/internal/domain"
)

// UserRepository reads credential records. The users table is owned by the
// user administration module, so this side never writes to it.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id::text, username, COALESCE(email, ''), COALESCE(full_name, ''),
        password_hash, role, status, created_at, updated_at`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id::text = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1) LIMIT 1`
	user, err := scanUser(r.db.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		id, username, email, fullName, hash, role, status string
		createdAt, updatedAt                              time.Time
	)
	if err := row.Scan(&id, &username, &email, &fullName, &hash, &role, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	parsedRole, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}
	parsedStatus, err := domain.ParseUserStatus(status)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         parsedRole,
		Status:       parsedStatus,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
