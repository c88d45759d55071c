package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
)

// AssignmentRepository handles stage assignment rows. The active-assignment
// swap (deactivate old, create new) always happens inside the transition
// transaction owned by the TransitionStore.
type AssignmentRepository struct {
	db *database.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *database.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `
	id, case_id, stage, assigned_user_id, assigned_at,
	due_at, is_active, notes, created_at, updated_at
`

// GetActive returns the case's single active assignment.
func (r *AssignmentRepository) GetActive(ctx context.Context, caseID string) (*StageAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM stage_assignments WHERE case_id = $1 AND is_active = TRUE`

	a, err := r.scanAssignment(r.db.QueryRow(ctx, query, caseID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("active stage assignment", caseID)
	}
	return a, err
}

// GetActiveTx is GetActive inside the transition transaction, so the swap
// sees the same row the lock protects.
func (r *AssignmentRepository) GetActiveTx(ctx context.Context, tx pgx.Tx, caseID string) (*StageAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM stage_assignments WHERE case_id = $1 AND is_active = TRUE`

	a, err := r.scanAssignment(tx.QueryRow(ctx, query, caseID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("active stage assignment", caseID)
	}
	return a, err
}

// Deactivate retires an assignment, optionally appending a note such as the
// return reason.
func (r *AssignmentRepository) Deactivate(ctx context.Context, tx pgx.Tx, id string, note *string) error {
	query := `
		UPDATE stage_assignments
		SET is_active  = FALSE,
		    notes      = COALESCE($2, notes),
		    updated_at = NOW()
		WHERE id = $1 AND is_active = TRUE
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, note).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "assignment is no longer active")
	}
	return err
}

// Create inserts a new active assignment within the transaction.
func (r *AssignmentRepository) Create(ctx context.Context, tx pgx.Tx, a *StageAssignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO stage_assignments
		    (id, case_id, stage, assigned_user_id, assigned_at, due_at, is_active, notes)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		a.ID,
		a.CaseID,
		a.Stage,
		a.AssignedUserID,
		a.AssignedAt,
		a.DueAt,
		a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create stage assignment")
	}
	a.IsActive = true
	return nil
}

// UpdateActiveUser sets the responsible user on the case's active
// assignment. Used by the best-effort auto-assignment step together with
// CaseRepository.UpdateAssignee.
func (r *AssignmentRepository) UpdateActiveUser(ctx context.Context, caseID string, userID *string) error {
	query := `
		UPDATE stage_assignments
		SET assigned_user_id = $2,
		    updated_at       = NOW()
		WHERE case_id = $1 AND is_active = TRUE
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, caseID, userID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("active stage assignment", caseID)
	}
	return err
}

// ListByCase returns all assignments for a case, oldest first.
func (r *AssignmentRepository) ListByCase(ctx context.Context, caseID string) ([]*StageAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM stage_assignments WHERE case_id = $1 ORDER BY assigned_at ASC`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list stage assignments")
	}
	defer rows.Close()

	var assignments []*StageAssignment
	for rows.Next() {
		a, err := r.scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan stage assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type assignmentScanner interface {
	Scan(dest ...any) error
}

func (r *AssignmentRepository) scanAssignment(row assignmentScanner) (*StageAssignment, error) {
	a := &StageAssignment{}
	err := row.Scan(
		&a.ID,
		&a.CaseID,
		&a.Stage,
		&a.AssignedUserID,
		&a.AssignedAt,
		&a.DueAt,
		&a.IsActive,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
