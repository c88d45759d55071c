package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/auth"
	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// UserRepository reads the assignable-user directory. User management is
// owned by the identity subsystem; this repository only answers the
// auto-assignment query.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindAssignable returns the active user matching the role (and department,
// when given) with the fewest currently-assigned open cases, tie-broken by
// user id for a stable pick. Returns nil when no user matches.
func (r *UserRepository) FindAssignable(ctx context.Context, role auth.Role, departmentID *string) (*User, error) {
	query := `
		SELECT u.id, u.role, u.department_id, u.is_active,
		       COUNT(c.id) AS open_cases
		FROM users u
		LEFT JOIN cases c
		       ON c.assigned_user_id = u.id
		      AND c.deleted_at IS NULL
		      AND c.status IN ('PENDING', 'IN_PROGRESS')
		WHERE u.is_active = TRUE
		  AND u.role = $1
		  AND ($2::text IS NULL OR u.department_id = $2)
		GROUP BY u.id, u.role, u.department_id, u.is_active
		ORDER BY open_cases ASC, u.id ASC
		LIMIT 1
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, role, departmentID).Scan(
		&u.ID,
		&u.Role,
		&u.DepartmentID,
		&u.IsActive,
		&u.OpenCases,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find assignable user")
	}
	return u, nil
}
