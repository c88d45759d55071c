package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-exp-cases/internal/database"
	"github.com/pesio-ai/be-exp-cases/internal/errors"
	"github.com/pesio-ai/be-exp-cases/internal/stage"
)

// CaseRepository handles reads and writes on case rows. Stage mutations are
// transactional and always go through a pgx.Tx owned by the TransitionStore.
type CaseRepository struct {
	db *database.DB
}

// NewCaseRepository creates a new CaseRepository.
func NewCaseRepository(db *database.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `
	id, file_number, current_stage, status, progress_percentage,
	assigned_user_id, supervisor_user_id, department_id,
	property_address, description, created_by,
	created_at, updated_at, deleted_at
`

// Create inserts a new case row within the given transaction.
func (r *CaseRepository) Create(ctx context.Context, tx pgx.Tx, c *Case) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO cases
		    (id, file_number, current_stage, status, progress_percentage,
		     assigned_user_id, supervisor_user_id, department_id,
		     property_address, description, created_by)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8,
		        $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := tx.QueryRow(ctx, query,
		c.ID,
		c.FileNumber,
		c.CurrentStage,
		c.Status,
		c.ProgressPercentage,
		c.AssignedUserID,
		c.SupervisorUserID,
		c.DepartmentID,
		c.PropertyAddress,
		c.Description,
		c.CreatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create case")
	}
	return nil
}

// GetByID retrieves a case by primary key, excluding soft-deleted rows.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1 AND deleted_at IS NULL`

	c, err := r.scanCase(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id)
	}
	return c, err
}

// GetByFileNumber retrieves a case by its human-readable file number.
func (r *CaseRepository) GetByFileNumber(ctx context.Context, fileNumber string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE file_number = $1 AND deleted_at IS NULL`

	c, err := r.scanCase(r.db.QueryRow(ctx, query, fileNumber))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", fileNumber)
	}
	return c, err
}

// GetForUpdate locks the case row for the duration of the transaction and
// returns its current state. This is the anchor of the concurrency
// discipline: the transition is re-validated against this freshly-read row.
func (r *CaseRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	c, err := r.scanCase(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("case", id)
	}
	return c, err
}

// UpdateStage applies the stage mutation (stage, derived status, progress)
// inside the transition transaction.
func (r *CaseRepository) UpdateStage(
	ctx context.Context,
	tx pgx.Tx,
	id string,
	stageID stage.ID,
	status CaseStatus,
	progress int,
) error {
	query := `
		UPDATE cases
		SET current_stage       = $2,
		    status              = $3,
		    progress_percentage = $4,
		    updated_at          = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id
	`

	var returnedID string
	err := tx.QueryRow(ctx, query, id, stageID, status, progress).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("case", id)
	}
	return err
}

// UpdateAssignee sets the case assignee. Used by the best-effort
// auto-assignment step, outside the transition transaction.
func (r *CaseRepository) UpdateAssignee(ctx context.Context, id string, userID *string) error {
	query := `
		UPDATE cases
		SET assigned_user_id = $2,
		    updated_at       = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, userID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("case", id)
	}
	return err
}

// List returns cases filtered by department and/or status, newest first.
func (r *CaseRepository) List(ctx context.Context, departmentID, status *string, limit, offset int) ([]*Case, error) {
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE deleted_at IS NULL
		  AND ($1::text IS NULL OR department_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, departmentID, status, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list cases")
	}
	defer rows.Close()

	var cases []*Case
	for rows.Next() {
		c, err := r.scanCase(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan case")
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// SoftDelete marks a case as deleted without removing its audit trail.
func (r *CaseRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE cases
		SET deleted_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("case", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type caseScanner interface {
	Scan(dest ...any) error
}

func (r *CaseRepository) scanCase(row caseScanner) (*Case, error) {
	c := &Case{}
	err := row.Scan(
		&c.ID,
		&c.FileNumber,
		&c.CurrentStage,
		&c.Status,
		&c.ProgressPercentage,
		&c.AssignedUserID,
		&c.SupervisorUserID,
		&c.DepartmentID,
		&c.PropertyAddress,
		&c.Description,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
